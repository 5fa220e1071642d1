package shared

import (
	"context"
	"log/slog"
	"time"
)

const (
	retryMaxAttempts = 3
	retryBaseDelay   = 100 * time.Millisecond
)

// RetrySQLite runs op, retrying with exponential backoff (100ms, 200ms, 400ms)
// on SQLite concurrency errors. Other errors are returned immediately.
func RetrySQLite(ctx context.Context, label string, op func() error) error {
	var err error
	for i := 0; i < retryMaxAttempts; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsSQLiteConflictError(err) {
			return err
		}
		if i < retryMaxAttempts-1 {
			delay := retryBaseDelay * time.Duration(1<<i)
			slog.Debug("sqlite busy, retrying", "op", label, "attempt", i+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
