// Package flow implements the flow session lifecycle: starting and ending
// sessions, logging interruptions, and the focus heuristics built on top.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowlabs/flowd/internal/clock"
	"github.com/flowlabs/flowd/internal/domain"
	"github.com/flowlabs/flowd/internal/store"
	"github.com/google/uuid"
)

const defaultWindowDays = 30

// focusTips is the fixed list returned on session start.
var focusTips = []string{
	"Silence notifications before you begin.",
	"Write a one-line intent for this session.",
	"Keep a capture pad nearby for stray thoughts.",
}

// Service is the session lifecycle manager. End and LogInterruption on the
// same session are serialized through a per-session mutex; the original
// browser runtime got this guarantee for free from its single thread.
type Service struct {
	repo store.Repository
	clk  clock.Clock

	// sessionLocks maps session ID -> *sync.Mutex.
	sessionLocks sync.Map
}

// NewService creates a session lifecycle manager.
func NewService(repo store.Repository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{repo: repo, clk: clk}
}

// StartResult is returned by Start.
type StartResult struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	TimeOfDay string    `json:"time_of_day"`
	DayOfWeek string    `json:"day_of_week"`
	Tips      []string  `json:"tips"`
}

// Start opens a new active flow session for the user. The task context may
// be empty. When the user's pattern marks the current time-of-day bucket as
// a best time, an affirming tip is appended to the generic list.
func (s *Service) Start(ctx context.Context, userID, taskContext string) (*StartResult, error) {
	now := s.clk.Now()
	session := domain.NewFlowSession(uuid.NewString(), userID, taskContext, now)

	if err := s.repo.InsertSession(ctx, session); err != nil {
		return nil, fmt.Errorf("insert session: %w", errors.Join(domain.ErrUpstream, err))
	}

	tips := make([]string, len(focusTips))
	copy(tips, focusTips)

	// Pattern lookup is best-effort; a storage hiccup here must not fail
	// the start.
	pattern, err := s.repo.GetPattern(ctx, userID)
	if err != nil {
		slog.Warn("pattern lookup failed on session start", "user_id", userID, "error", err)
	} else if pattern.BestTimeMatches(session.TimeOfDay) {
		tips = append(tips, fmt.Sprintf("You usually hit your deepest focus in the %s. Good time to start.", session.TimeOfDay))
	}

	if err := s.repo.UpdateLastSeen(ctx, userID, now); err != nil {
		slog.Warn("failed to update last seen", "user_id", userID, "error", err)
	}

	slog.Info("flow session started", "user_id", userID, "session_id", session.ID, "time_of_day", session.TimeOfDay)

	return &StartResult{
		SessionID: session.ID,
		StartedAt: session.StartedAt,
		TimeOfDay: session.TimeOfDay,
		DayOfWeek: session.DayOfWeek,
		Tips:      tips,
	}, nil
}

// EndResult is returned by End.
type EndResult struct {
	SessionID         string `json:"session_id"`
	DurationMinutes   int    `json:"duration_minutes"`
	Quality           int    `json:"quality"`
	InterruptionCount int    `json:"interruption_count"`
}

// End finalizes an active session exactly once. A second End on the same
// session fails with ErrInvalidState. The quality score is validated before
// any storage call.
func (s *Service) End(ctx context.Context, userID, sessionID string, quality int, triggers []string, breakers []domain.Breaker) (*EndResult, error) {
	if quality < 0 || quality > 100 {
		return nil, fmt.Errorf("quality %d out of range: %w", quality, domain.ErrInvalidArgument)
	}

	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if err := session.Finalize(s.clk.Now(), quality, triggers, breakers); err != nil {
		return nil, fmt.Errorf("finalize session %s: %w", sessionID, err)
	}

	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist finalized session: %w", errors.Join(domain.ErrUpstream, err))
	}

	// Last-session snippet merge is a side effect, not a re-aggregation;
	// failure here never fails the End.
	snap := &domain.SessionSnapshot{
		TimeOfDay:       session.TimeOfDay,
		Quality:         session.Quality,
		DurationMinutes: session.DurationMinutes,
		EndedAt:         *session.EndedAt,
	}
	if err := s.repo.MergeLastSession(ctx, userID, snap); err != nil {
		slog.Warn("failed to merge last-session snippet", "user_id", userID, "session_id", sessionID, "error", err)
	}

	slog.Info("flow session ended",
		"user_id", userID,
		"session_id", sessionID,
		"duration_minutes", session.DurationMinutes,
		"quality", session.Quality)

	// The session is immutable now; late lockers will fail the state check
	// against storage, so dropping the mutex entry is safe.
	s.forgetSessionLock(sessionID)

	return &EndResult{
		SessionID:         session.ID,
		DurationMinutes:   session.DurationMinutes,
		Quality:           session.Quality,
		InterruptionCount: session.InterruptionCount,
	}, nil
}

// LogInterruption appends one breaker entry to an active session and bumps
// its interruption count. Logging against a finalized session fails with
// ErrInvalidState rather than silently succeeding.
func (s *Service) LogInterruption(ctx context.Context, userID, sessionID, kind, source string) (*domain.FlowSession, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if err := session.RecordInterruption(kind, source, s.clk.Now()); err != nil {
		return nil, fmt.Errorf("record interruption on %s: %w", sessionID, err)
	}

	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist interruption: %w", errors.Join(domain.ErrUpstream, err))
	}

	return session, nil
}

// GetSession returns a session owned by the user.
func (s *Service) GetSession(ctx context.Context, userID, sessionID string) (*domain.FlowSession, error) {
	return s.ownedSession(ctx, userID, sessionID)
}

func (s *Service) ownedSession(ctx context.Context, userID, sessionID string) (*domain.FlowSession, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", errors.Join(domain.ErrUpstream, err))
	}
	if session == nil || session.UserID != userID {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return session, nil
}

// lockSession serializes lifecycle operations per session id.
func (s *Service) lockSession(sessionID string) func() {
	lock, _ := s.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	return func() {
		mu.Unlock()
	}
}

// forgetSessionLock drops the per-session mutex once a session can no longer
// be mutated.
func (s *Service) forgetSessionLock(sessionID string) {
	s.sessionLocks.Delete(sessionID)
}
