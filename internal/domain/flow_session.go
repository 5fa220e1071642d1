// Package domain contains core domain types for the flowd application.
package domain

import (
	"math"
	"time"
)

// Time-of-day buckets derived from the local start hour.
const (
	BucketNight     = "night"
	BucketMorning   = "morning"
	BucketAfternoon = "afternoon"
	BucketEvening   = "evening"
)

// TimeOfDayBucket maps an hour (0-23) to its bucket.
// Boundaries are fixed: [0,6) night, [6,12) morning, [12,18) afternoon, [18,24) evening.
func TimeOfDayBucket(hour int) string {
	switch {
	case hour < 6:
		return BucketNight
	case hour < 12:
		return BucketMorning
	case hour < 18:
		return BucketAfternoon
	default:
		return BucketEvening
	}
}

// Breaker is a logged interruption event during a session.
type Breaker struct {
	Kind      string    `json:"kind"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// FlowSession is a bounded period a user marks as deep-focus work.
type FlowSession struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	TaskContext       string     `json:"task_context,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	DurationMinutes   int        `json:"duration_minutes"`
	Quality           int        `json:"quality"`
	Triggers          []string   `json:"triggers,omitempty"`
	Breakers          []Breaker  `json:"breakers,omitempty"`
	InterruptionCount int        `json:"interruption_count"`
	TimeOfDay         string     `json:"time_of_day"`
	DayOfWeek         string     `json:"day_of_week"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewFlowSession creates an active session started at the given wall-clock time.
// Time-of-day and day-of-week are derived from the start time and never
// recomputed afterwards.
func NewFlowSession(id, userID, taskContext string, startedAt time.Time) *FlowSession {
	return &FlowSession{
		ID:          id,
		UserID:      userID,
		TaskContext: taskContext,
		StartedAt:   startedAt,
		TimeOfDay:   TimeOfDayBucket(startedAt.Hour()),
		DayOfWeek:   startedAt.Weekday().String(),
		CreatedAt:   startedAt,
		UpdatedAt:   startedAt,
	}
}

// Active reports whether the session has not been finalized yet.
func (s *FlowSession) Active() bool {
	return s.EndedAt == nil
}

// RecordInterruption appends a breaker entry and bumps the interruption count.
// Returns ErrInvalidState if the session is already finalized.
func (s *FlowSession) RecordInterruption(kind, source string, at time.Time) error {
	if !s.Active() {
		return ErrInvalidState
	}
	s.Breakers = append(s.Breakers, Breaker{Kind: kind, Source: source, Timestamp: at})
	s.InterruptionCount++
	s.UpdatedAt = at
	return nil
}

// Finalize closes the session exactly once. Duration is derived from the
// start/end distance, rounded to whole minutes and clamped to zero.
func (s *FlowSession) Finalize(at time.Time, quality int, triggers []string, breakers []Breaker) error {
	if !s.Active() {
		return ErrInvalidState
	}
	if quality < 0 || quality > 100 {
		return ErrInvalidArgument
	}
	if at.Before(s.StartedAt) {
		at = s.StartedAt
	}

	end := at
	s.EndedAt = &end
	s.DurationMinutes = int(math.Round(end.Sub(s.StartedAt).Minutes()))
	if s.DurationMinutes < 0 {
		s.DurationMinutes = 0
	}
	s.Quality = quality
	if len(triggers) > 0 {
		s.Triggers = triggers
	}
	s.Breakers = append(s.Breakers, breakers...)
	s.UpdatedAt = end
	return nil
}
