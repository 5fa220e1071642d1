// Package analyzer derives a user's flow pattern from their session history
// by delegating the aggregation to the summarizer and validating whatever
// comes back.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flowlabs/flowd/internal/clock"
	"github.com/flowlabs/flowd/internal/domain"
	"github.com/flowlabs/flowd/internal/store"
	"github.com/flowlabs/flowd/internal/summarizer"
)

const (
	// minSessions is the smallest sample that produces a pattern.
	minSessions = 3

	defaultWindowDays = 30
	summarizeTimeout  = 10 * time.Second
)

const systemPrompt = `You analyze deep-focus work sessions. Given a JSON list of sessions,
respond with a single JSON object with keys: best_times_of_day (array of
"night"/"morning"/"afternoon"/"evening"), best_days (array of weekday names),
common_triggers and common_breakers (arrays of {"tag","count"}),
optimal_duration_minutes (integer), and fingerprint ({"peak_time",
"ideal_session_minutes","vulnerability","superpower"}). Respond with JSON only.`

// Result is the outcome of a pattern analysis run. Insufficient data is a
// defined outcome, not an error.
type Result struct {
	Analyzed bool                `json:"analyzed"`
	Pattern  *domain.FlowPattern `json:"pattern,omitempty"`
	Message  string              `json:"message,omitempty"`
}

// Analyzer aggregates session history into a FlowPattern.
type Analyzer struct {
	repo      store.Repository
	completer summarizer.Completer
	clk       clock.Clock
}

// New creates a pattern analyzer.
func New(repo store.Repository, completer summarizer.Completer, clk clock.Clock) *Analyzer {
	if clk == nil {
		clk = clock.System{}
	}
	return &Analyzer{repo: repo, completer: completer, clk: clk}
}

// Analyze fetches the user's finalized sessions in the window and upserts a
// freshly derived pattern. With fewer than three sessions it returns the
// insufficient-data result and writes nothing. Summarizer failure, timeout,
// or malformed output degrades to the empty aggregate; the run still
// succeeds and the pattern row is still written.
func (a *Analyzer) Analyze(ctx context.Context, userID string, windowDays int) (*Result, error) {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	now := a.clk.Now()
	since := now.AddDate(0, 0, -windowDays)

	sessions, err := a.repo.ListEndedSessions(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list ended sessions: %w", errors.Join(domain.ErrUpstream, err))
	}

	if len(sessions) < minSessions {
		return &Result{
			Analyzed: false,
			Message:  fmt.Sprintf("need at least %d completed sessions to analyze patterns, have %d", minSessions, len(sessions)),
		}, nil
	}

	aggregate := a.summarize(ctx, userID, sessions)

	pattern := &domain.FlowPattern{
		UserID:      userID,
		Aggregate:   aggregate,
		SampleCount: len(sessions),
		Confidence:  domain.ConfidenceFor(len(sessions)),
		UpdatedAt:   now,
	}

	if err := a.repo.UpsertPattern(ctx, pattern); err != nil {
		return nil, fmt.Errorf("upsert pattern: %w", errors.Join(domain.ErrUpstream, err))
	}

	slog.Info("flow pattern refreshed",
		"user_id", userID,
		"sample_count", pattern.SampleCount,
		"confidence", pattern.Confidence)

	return &Result{Analyzed: true, Pattern: pattern}, nil
}

// summarize calls the summarizer under a timeout and always returns a usable
// aggregate. Every failure path lands on the empty aggregate.
func (a *Analyzer) summarize(ctx context.Context, userID string, sessions []*domain.FlowSession) domain.Aggregate {
	prompt, err := buildPrompt(sessions)
	if err != nil {
		slog.Warn("failed to shape sessions for summarizer", "user_id", userID, "error", err)
		return domain.Aggregate{}
	}

	ctx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()

	text, err := a.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		slog.Warn("summarizer call failed, storing empty aggregate", "user_id", userID, "error", err)
		return domain.Aggregate{}
	}

	return domain.ParseAggregate([]byte(stripCodeFences(text)))
}

// promptSession is the compact shape handed to the summarizer.
type promptSession struct {
	TimeOfDay       string   `json:"time_of_day"`
	DayOfWeek       string   `json:"day_of_week"`
	DurationMinutes int      `json:"duration_minutes"`
	Quality         int      `json:"quality"`
	Interruptions   int      `json:"interruptions"`
	Triggers        []string `json:"triggers,omitempty"`
	Breakers        []string `json:"breakers,omitempty"`
}

func buildPrompt(sessions []*domain.FlowSession) (string, error) {
	shaped := make([]promptSession, 0, len(sessions))
	for _, s := range sessions {
		ps := promptSession{
			TimeOfDay:       s.TimeOfDay,
			DayOfWeek:       s.DayOfWeek,
			DurationMinutes: s.DurationMinutes,
			Quality:         s.Quality,
			Interruptions:   s.InterruptionCount,
			Triggers:        s.Triggers,
		}
		for _, b := range s.Breakers {
			ps.Breakers = append(ps.Breakers, b.Kind)
		}
		shaped = append(shaped, ps)
	}

	data, err := json.Marshal(shaped)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// stripCodeFences removes a surrounding markdown code fence if the model
// wrapped its JSON in one.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
