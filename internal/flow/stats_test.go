package flow

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/flowlabs/flowd/internal/clock"
	"github.com/flowlabs/flowd/internal/domain"
	"github.com/flowlabs/flowd/internal/store/storetest"
)

func endedSession(id, userID string, started time.Time, minutes, quality, interruptions int) *domain.FlowSession {
	s := domain.NewFlowSession(id, userID, "", started)
	ended := started.Add(time.Duration(minutes) * time.Minute)
	s.EndedAt = &ended
	s.DurationMinutes = minutes
	s.Quality = quality
	s.InterruptionCount = interruptions
	s.UpdatedAt = ended
	return s
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil)
	if stats.SessionCount != 0 || stats.AvgQuality != 0 || stats.BestTimeOfDay != "" {
		t.Errorf("empty input should yield zero stats, got %+v", stats)
	}
}

func TestComputeStats(t *testing.T) {
	// Monday morning, Monday afternoon, Tuesday morning.
	monday := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	sessions := []*domain.FlowSession{
		endedSession("s1", "u1", monday, 50, 90, 1),
		endedSession("s2", "u1", monday.Add(5*time.Hour), 30, 60, 3),
		endedSession("s3", "u1", monday.Add(25*time.Hour), 40, 80, 0),
	}

	stats := ComputeStats(sessions)
	if stats.SessionCount != 3 {
		t.Errorf("SessionCount = %d", stats.SessionCount)
	}
	if stats.TotalMinutes != 120 {
		t.Errorf("TotalMinutes = %d", stats.TotalMinutes)
	}
	if stats.AvgDurationMinutes != 40 {
		t.Errorf("AvgDurationMinutes = %v", stats.AvgDurationMinutes)
	}
	if math.Abs(stats.AvgQuality-230.0/3) > 1e-9 {
		t.Errorf("AvgQuality = %v", stats.AvgQuality)
	}
	if stats.InterruptionCount != 4 {
		t.Errorf("InterruptionCount = %d", stats.InterruptionCount)
	}
	// Morning avg quality (90+80)/2 = 85 beats afternoon 60.
	if stats.BestTimeOfDay != domain.BucketMorning {
		t.Errorf("BestTimeOfDay = %q", stats.BestTimeOfDay)
	}
	// Monday avg (90+60)/2 = 75 loses to Tuesday 80.
	if stats.BestDayOfWeek != "Tuesday" {
		t.Errorf("BestDayOfWeek = %q", stats.BestDayOfWeek)
	}
}

func TestComputeStatsTieBrokenByCount(t *testing.T) {
	monday := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	sessions := []*domain.FlowSession{
		endedSession("s1", "u1", monday, 30, 80, 0),
		endedSession("s2", "u1", monday.Add(time.Hour), 30, 80, 0),
		endedSession("s3", "u1", monday.Add(5*time.Hour), 30, 80, 0),
	}
	stats := ComputeStats(sessions)
	if stats.BestTimeOfDay != domain.BucketMorning {
		t.Errorf("BestTimeOfDay = %q, want morning (two sessions to one)", stats.BestTimeOfDay)
	}
}

func TestServiceStatsWindowsOutOldSessions(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	repo := storetest.New()
	svc := NewService(repo, clock.NewFake(now))

	repo.SeedSession(endedSession("recent", "u1", now.AddDate(0, 0, -5), 30, 70, 0))
	repo.SeedSession(endedSession("ancient", "u1", now.AddDate(0, 0, -45), 90, 100, 0))
	repo.SeedSession(endedSession("other-user", "u2", now.AddDate(0, 0, -5), 30, 70, 0))
	active := domain.NewFlowSession("still-going", "u1", "", now.Add(-time.Hour))
	repo.SeedSession(active)

	stats, err := svc.Stats(context.Background(), "u1", 30)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.SessionCount != 1 {
		t.Errorf("SessionCount = %d, want 1 (window and ownership filters)", stats.SessionCount)
	}
	if stats.TotalMinutes != 30 {
		t.Errorf("TotalMinutes = %d", stats.TotalMinutes)
	}
}
