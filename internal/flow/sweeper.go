package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowlabs/flowd/internal/domain"
)

const sweepInterval = 5 * time.Minute

// CleanupCallback is called for each session the sweeper force-ends, so the
// caller can tear down the session's depth tracker.
type CleanupCallback func(userID, sessionID string)

// StartSweeper runs a background goroutine that periodically force-ends
// sessions left active with no updates beyond the TTL. Abandoned sessions
// are closed with quality zero and an "abandoned" breaker; their snippet is
// not merged into the pattern.
func StartSweeper(ctx context.Context, svc *Service, ttl time.Duration, onCleanup CleanupCallback) {
	ticker := svc.clk.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("session sweeper started", "interval", sweepInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C():
				if _, err := svc.ExpireStale(ctx, ttl, onCleanup); err != nil {
					slog.Error("session sweep failed", "error", err)
				}
			case <-ctx.Done():
				slog.Info("session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// ExpireStale performs one sweep and returns how many sessions were closed.
func (s *Service) ExpireStale(ctx context.Context, ttl time.Duration, onCleanup CleanupCallback) (int, error) {
	threshold := s.clk.Now().Add(-ttl)
	stale, err := s.repo.ListStaleActiveSessions(ctx, threshold)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	slog.Info("sweeper found abandoned sessions", "count", len(stale))

	closed := 0
	for _, session := range stale {
		if err := s.forceEnd(ctx, session); err != nil {
			slog.Warn("sweeper failed to close session",
				"session_id", session.ID,
				"user_id", session.UserID,
				"error", err)
			continue
		}
		closed++
		if onCleanup != nil {
			onCleanup(session.UserID, session.ID)
		}
	}

	slog.Info("session sweep completed", "closed", closed)
	return closed, nil
}

// forceEnd closes an abandoned session under its lifecycle lock.
func (s *Service) forceEnd(ctx context.Context, session *domain.FlowSession) error {
	unlock := s.lockSession(session.ID)
	defer unlock()

	// Re-read under the lock; the owner may have ended it meanwhile.
	current, err := s.repo.GetSession(ctx, session.ID)
	if err != nil {
		return err
	}
	if current == nil || !current.Active() {
		return nil
	}

	now := s.clk.Now()
	abandoned := []domain.Breaker{{Kind: "abandoned", Source: "sweeper", Timestamp: now}}
	if err := current.Finalize(now, 0, nil, abandoned); err != nil {
		return err
	}
	if err := s.repo.UpdateSession(ctx, current); err != nil {
		return err
	}

	s.forgetSessionLock(session.ID)
	slog.Info("sweeper closed abandoned session",
		"session_id", current.ID,
		"user_id", current.UserID,
		"duration_minutes", current.DurationMinutes)
	return nil
}
