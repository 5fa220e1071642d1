package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTimeOfDayBucket(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{0, BucketNight},
		{5, BucketNight},
		{6, BucketMorning},
		{7, BucketMorning},
		{11, BucketMorning},
		{12, BucketAfternoon},
		{17, BucketAfternoon},
		{18, BucketEvening},
		{19, BucketEvening},
		{23, BucketEvening},
	}
	for _, tt := range tests {
		if got := TimeOfDayBucket(tt.hour); got != tt.want {
			t.Errorf("TimeOfDayBucket(%d) = %q, want %q", tt.hour, got, tt.want)
		}
	}
}

func TestNewFlowSessionDerivesBuckets(t *testing.T) {
	start := time.Date(2024, 3, 4, 7, 30, 0, 0, time.UTC) // a Monday
	s := NewFlowSession("s1", "u1", "write report", start)

	if s.TimeOfDay != BucketMorning {
		t.Errorf("TimeOfDay = %q, want %q", s.TimeOfDay, BucketMorning)
	}
	if s.DayOfWeek != "Monday" {
		t.Errorf("DayOfWeek = %q, want Monday", s.DayOfWeek)
	}
	if !s.Active() {
		t.Error("new session should be active")
	}
}

func TestFinalizeDuration(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s := NewFlowSession("s1", "u1", "", start)

	// 1,500,000 ms = 25 minutes.
	end := start.Add(1500000 * time.Millisecond)
	if err := s.Finalize(end, 80, []string{"coffee"}, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if s.DurationMinutes != 25 {
		t.Errorf("DurationMinutes = %d, want 25", s.DurationMinutes)
	}
	if s.Quality != 80 {
		t.Errorf("Quality = %d, want 80", s.Quality)
	}
	if s.Active() {
		t.Error("finalized session should not be active")
	}
}

func TestFinalizeClampsNegativeDuration(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s := NewFlowSession("s1", "u1", "", start)

	if err := s.Finalize(start.Add(-time.Hour), 50, nil, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if s.DurationMinutes != 0 {
		t.Errorf("DurationMinutes = %d, want 0", s.DurationMinutes)
	}
}

func TestFinalizeTwiceFails(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s := NewFlowSession("s1", "u1", "", start)

	if err := s.Finalize(start.Add(10*time.Minute), 70, nil, nil); err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	err := s.Finalize(start.Add(20*time.Minute), 90, nil, nil)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Finalize error = %v, want ErrInvalidState", err)
	}
	// The first finalization must be untouched.
	if s.Quality != 70 || s.DurationMinutes != 10 {
		t.Errorf("session mutated by rejected finalize: quality=%d duration=%d", s.Quality, s.DurationMinutes)
	}
}

func TestFinalizeRejectsOutOfRangeQuality(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	for _, quality := range []int{-1, 101} {
		s := NewFlowSession("s1", "u1", "", start)
		err := s.Finalize(start.Add(time.Minute), quality, nil, nil)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Finalize(quality=%d) error = %v, want ErrInvalidArgument", quality, err)
		}
	}
}

func TestRecordInterruption(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s := NewFlowSession("s1", "u1", "", start)

	for i := 0; i < 3; i++ {
		at := start.Add(time.Duration(i+1) * time.Minute)
		if err := s.RecordInterruption("notification", "slack", at); err != nil {
			t.Fatalf("RecordInterruption %d: %v", i, err)
		}
	}

	if s.InterruptionCount != 3 {
		t.Errorf("InterruptionCount = %d, want 3", s.InterruptionCount)
	}
	if len(s.Breakers) != 3 {
		t.Fatalf("len(Breakers) = %d, want 3", len(s.Breakers))
	}
	seen := make(map[time.Time]bool)
	for _, b := range s.Breakers {
		if seen[b.Timestamp] {
			t.Errorf("duplicate breaker timestamp %v", b.Timestamp)
		}
		seen[b.Timestamp] = true
	}
}

func TestRecordInterruptionOnEndedSessionFails(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s := NewFlowSession("s1", "u1", "", start)
	if err := s.Finalize(start.Add(time.Minute), 50, nil, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	err := s.RecordInterruption("notification", "slack", start.Add(2*time.Minute))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("RecordInterruption error = %v, want ErrInvalidState", err)
	}
}
