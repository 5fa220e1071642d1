package domain

import (
	"encoding/json"
	"time"
)

// patternSampleCeiling is the sample count at which confidence saturates at 1.
const patternSampleCeiling = 20

// TagCount pairs a free-text tag with how often it occurred.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Fingerprint is the derived per-user summary of ideal flow conditions.
type Fingerprint struct {
	PeakTime            string `json:"peak_time"`
	IdealSessionMinutes int    `json:"ideal_session_minutes"`
	Vulnerability       string `json:"vulnerability"`
	Superpower          string `json:"superpower"`
}

// Aggregate is the summarizer-derived payload stored on a FlowPattern.
type Aggregate struct {
	BestTimesOfDay         []string    `json:"best_times_of_day"`
	BestDays               []string    `json:"best_days"`
	CommonTriggers         []TagCount  `json:"common_triggers"`
	CommonBreakers         []TagCount  `json:"common_breakers"`
	OptimalDurationMinutes int         `json:"optimal_duration_minutes"`
	Fingerprint            Fingerprint `json:"fingerprint"`
}

// ParseAggregate decodes summarizer output defensively. The summarizer is
// untrusted input: malformed JSON, a non-object payload, or out-of-range
// fields all yield the empty aggregate rather than an error. This is the
// degrade-gracefully contract for pattern analysis.
func ParseAggregate(raw []byte) Aggregate {
	var agg Aggregate
	if err := json.Unmarshal(raw, &agg); err != nil {
		return Aggregate{}
	}
	if agg.OptimalDurationMinutes < 0 {
		agg.OptimalDurationMinutes = 0
	}
	if agg.Fingerprint.IdealSessionMinutes < 0 {
		agg.Fingerprint.IdealSessionMinutes = 0
	}
	agg.BestTimesOfDay = keepKnownBuckets(agg.BestTimesOfDay)
	return agg
}

func keepKnownBuckets(buckets []string) []string {
	var out []string
	for _, b := range buckets {
		switch b {
		case BucketNight, BucketMorning, BucketAfternoon, BucketEvening:
			out = append(out, b)
		}
	}
	return out
}

// SessionSnapshot is the lightweight last-session snippet merged into a
// pattern on session end, without a full re-aggregation.
type SessionSnapshot struct {
	TimeOfDay       string    `json:"time_of_day"`
	Quality         int       `json:"quality"`
	DurationMinutes int       `json:"duration_minutes"`
	EndedAt         time.Time `json:"ended_at"`
}

// FlowPattern holds the aggregate flow profile for one user. At most one
// pattern exists per user; the analyzer overwrites it wholesale.
type FlowPattern struct {
	UserID      string           `json:"user_id"`
	Aggregate   Aggregate        `json:"aggregate"`
	SampleCount int              `json:"sample_count"`
	Confidence  float64          `json:"confidence"`
	LastSession *SessionSnapshot `json:"last_session,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ConfidenceFor computes analysis confidence from the sample count.
// Monotonic non-decreasing, capped at 1.
func ConfidenceFor(sampleCount int) float64 {
	if sampleCount <= 0 {
		return 0
	}
	c := float64(sampleCount) / patternSampleCeiling
	if c > 1 {
		return 1
	}
	return c
}

// BestTimeMatches reports whether the given bucket is one of the pattern's
// identified best times of day.
func (p *FlowPattern) BestTimeMatches(bucket string) bool {
	if p == nil {
		return false
	}
	for _, b := range p.Aggregate.BestTimesOfDay {
		if b == bucket {
			return true
		}
	}
	return false
}
