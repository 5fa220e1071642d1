package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowlabs/flowd/internal/domain"
)

// Stats holds locally computed aggregate statistics over ended sessions.
// Unlike pattern analysis this never touches the summarizer.
type Stats struct {
	SessionCount            int     `json:"session_count"`
	TotalMinutes            int     `json:"total_minutes"`
	AvgDurationMinutes      float64 `json:"avg_duration_minutes"`
	AvgQuality              float64 `json:"avg_quality"`
	InterruptionCount       int     `json:"interruption_count"`
	InterruptionsPerSession float64 `json:"interruptions_per_session"`
	BestTimeOfDay           string  `json:"best_time_of_day,omitempty"`
	BestDayOfWeek           string  `json:"best_day_of_week,omitempty"`
}

// Stats aggregates the user's ended sessions within the window.
func (s *Service) Stats(ctx context.Context, userID string, windowDays int) (Stats, error) {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	since := s.clk.Now().AddDate(0, 0, -windowDays)

	sessions, err := s.repo.ListEndedSessions(ctx, userID, since)
	if err != nil {
		return Stats{}, fmt.Errorf("list ended sessions: %w", errors.Join(domain.ErrUpstream, err))
	}
	return ComputeStats(sessions), nil
}

// ComputeStats derives summary statistics from a session list. All divisions
// are zero-safe.
func ComputeStats(sessions []*domain.FlowSession) Stats {
	var stats Stats
	stats.SessionCount = len(sessions)
	if stats.SessionCount == 0 {
		return stats
	}

	var totalQuality int
	for _, sess := range sessions {
		stats.TotalMinutes += sess.DurationMinutes
		totalQuality += sess.Quality
		stats.InterruptionCount += sess.InterruptionCount
	}
	n := float64(stats.SessionCount)
	stats.AvgDurationMinutes = float64(stats.TotalMinutes) / n
	stats.AvgQuality = float64(totalQuality) / n
	stats.InterruptionsPerSession = float64(stats.InterruptionCount) / n
	stats.BestTimeOfDay = bestGroup(sessions, func(s *domain.FlowSession) string { return s.TimeOfDay })
	stats.BestDayOfWeek = bestGroup(sessions, func(s *domain.FlowSession) string { return s.DayOfWeek })
	return stats
}

// bestGroup returns the group key with the highest average quality, ties
// broken by session count.
func bestGroup(sessions []*domain.FlowSession, key func(*domain.FlowSession) string) string {
	type acc struct {
		quality int
		count   int
	}
	groups := make(map[string]*acc)
	for _, sess := range sessions {
		k := key(sess)
		if groups[k] == nil {
			groups[k] = &acc{}
		}
		groups[k].quality += sess.Quality
		groups[k].count++
	}

	var best string
	var bestAvg float64
	var bestCount int
	for k, a := range groups {
		avg := float64(a.quality) / float64(a.count)
		if best == "" || avg > bestAvg ||
			(avg == bestAvg && (a.count > bestCount || (a.count == bestCount && k < best))) {
			best, bestAvg, bestCount = k, avg, a.count
		}
	}
	return best
}

// SessionWindow converts a day count into the window start instant.
func SessionWindow(now time.Time, windowDays int) time.Time {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	return now.AddDate(0, 0, -windowDays)
}
