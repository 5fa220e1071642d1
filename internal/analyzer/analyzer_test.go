package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flowlabs/flowd/internal/clock"
	"github.com/flowlabs/flowd/internal/domain"
	"github.com/flowlabs/flowd/internal/store/storetest"
)

// scriptedCompleter returns a fixed reply or error and records the prompt.
type scriptedCompleter struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
	calls      int
}

func (c *scriptedCompleter) Complete(_ context.Context, system, user string) (string, error) {
	c.calls++
	c.lastSystem = system
	c.lastUser = user
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func seedEnded(repo *storetest.Repo, userID string, n int, started time.Time) {
	for i := 0; i < n; i++ {
		at := started.Add(time.Duration(i) * 24 * time.Hour)
		s := domain.NewFlowSession(userID+"-s"+string(rune('a'+i)), userID, "", at)
		end := at.Add(45 * time.Minute)
		s.EndedAt = &end
		s.DurationMinutes = 45
		s.Quality = 80
		s.Triggers = []string{"music"}
		s.Breakers = []domain.Breaker{{Kind: "notification", Source: "slack", Timestamp: end}}
		s.InterruptionCount = 1
		repo.SeedSession(s)
	}
}

func TestAnalyzeInsufficientData(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	repo := storetest.New()
	completer := &scriptedCompleter{}
	a := New(repo, completer, clock.NewFake(now))

	seedEnded(repo, "u1", 2, now.AddDate(0, 0, -10))

	result, err := a.Analyze(context.Background(), "u1", 30)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Analyzed {
		t.Error("Analyzed = true with only 2 sessions")
	}
	if !strings.Contains(result.Message, "at least 3") {
		t.Errorf("Message = %q", result.Message)
	}
	if completer.calls != 0 {
		t.Error("summarizer called despite insufficient data")
	}
	if repo.PatternUpserts != 0 {
		t.Error("pattern written despite insufficient data")
	}
}

func TestAnalyzeUpsertsPattern(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	repo := storetest.New()
	completer := &scriptedCompleter{reply: `{
		"best_times_of_day": ["morning"],
		"best_days": ["Monday"],
		"common_triggers": [{"tag": "music", "count": 5}],
		"common_breakers": [{"tag": "notification", "count": 2}],
		"optimal_duration_minutes": 45,
		"fingerprint": {"peak_time": "morning", "ideal_session_minutes": 45, "vulnerability": "notifications", "superpower": "long mornings"}
	}`}
	a := New(repo, completer, clock.NewFake(now))

	seedEnded(repo, "u1", 5, now.AddDate(0, 0, -10))

	result, err := a.Analyze(context.Background(), "u1", 30)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.Analyzed || result.Pattern == nil {
		t.Fatalf("result = %+v", result)
	}
	if got := result.Pattern.SampleCount; got != 5 {
		t.Errorf("SampleCount = %d, want 5", got)
	}
	if got := result.Pattern.Confidence; got != 0.25 {
		t.Errorf("Confidence = %v, want 0.25", got)
	}
	if got := result.Pattern.Aggregate.BestTimesOfDay; len(got) != 1 || got[0] != "morning" {
		t.Errorf("BestTimesOfDay = %v", got)
	}

	stored := repo.Pattern("u1")
	if stored == nil {
		t.Fatal("pattern not persisted")
	}
	if stored.Aggregate.OptimalDurationMinutes != 45 {
		t.Errorf("persisted OptimalDurationMinutes = %d", stored.Aggregate.OptimalDurationMinutes)
	}

	// The sessions reached the summarizer in compact form.
	if !strings.Contains(completer.lastUser, `"time_of_day":"morning"`) {
		t.Errorf("prompt missing session data: %s", completer.lastUser)
	}
}

func TestAnalyzeDegradesOnSummarizerFailure(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	repo := storetest.New()
	completer := &scriptedCompleter{err: errors.New("upstream 500")}
	a := New(repo, completer, clock.NewFake(now))

	seedEnded(repo, "u1", 4, now.AddDate(0, 0, -10))

	result, err := a.Analyze(context.Background(), "u1", 30)
	if err != nil {
		t.Fatalf("Analyze should not fail on summarizer error: %v", err)
	}
	if !result.Analyzed {
		t.Fatal("run should still count as analyzed")
	}
	if len(result.Pattern.Aggregate.BestTimesOfDay) != 0 {
		t.Errorf("aggregate should be empty, got %+v", result.Pattern.Aggregate)
	}
	if result.Pattern.SampleCount != 4 {
		t.Errorf("SampleCount = %d", result.Pattern.SampleCount)
	}
	if repo.PatternUpserts != 1 {
		t.Errorf("PatternUpserts = %d, want 1", repo.PatternUpserts)
	}
}

func TestAnalyzeDegradesOnMalformedOutput(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	repo := storetest.New()
	completer := &scriptedCompleter{reply: "I had trouble producing JSON, sorry!"}
	a := New(repo, completer, clock.NewFake(now))

	seedEnded(repo, "u1", 3, now.AddDate(0, 0, -10))

	result, err := a.Analyze(context.Background(), "u1", 30)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.Analyzed {
		t.Fatal("malformed summarizer output must not fail the run")
	}
	if len(result.Pattern.Aggregate.BestTimesOfDay) != 0 || result.Pattern.Aggregate.OptimalDurationMinutes != 0 {
		t.Errorf("aggregate should be empty, got %+v", result.Pattern.Aggregate)
	}
}

func TestAnalyzeAcceptsFencedJSON(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	repo := storetest.New()
	completer := &scriptedCompleter{reply: "```json\n{\"best_times_of_day\": [\"evening\"]}\n```"}
	a := New(repo, completer, clock.NewFake(now))

	seedEnded(repo, "u1", 3, now.AddDate(0, 0, -10))

	result, err := a.Analyze(context.Background(), "u1", 30)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got := result.Pattern.Aggregate.BestTimesOfDay; len(got) != 1 || got[0] != "evening" {
		t.Errorf("BestTimesOfDay = %v, want [evening]", got)
	}
}

func TestAnalyzeWindowExcludesOldSessions(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	repo := storetest.New()
	completer := &scriptedCompleter{reply: "{}"}
	a := New(repo, completer, clock.NewFake(now))

	// Three sessions but only two inside a 7-day window.
	seedEnded(repo, "u1", 2, now.AddDate(0, 0, -3))
	seedEnded(repo, "u2", 0, now)
	old := domain.NewFlowSession("old", "u1", "", now.AddDate(0, 0, -20))
	end := old.StartedAt.Add(30 * time.Minute)
	old.EndedAt = &end
	repo.SeedSession(old)

	result, err := a.Analyze(context.Background(), "u1", 7)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Analyzed {
		t.Error("sessions outside the window should not count toward the minimum")
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := stripCodeFences(tc.in); got != tc.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
