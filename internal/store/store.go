// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/flowlabs/flowd/internal/domain"
)

// Repository defines the interface for persisting users, flow sessions,
// and flow patterns.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil if absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// InsertSession persists a new active flow session.
	InsertSession(ctx context.Context, session *domain.FlowSession) error

	// GetSession retrieves a session by ID. Returns nil if absent.
	GetSession(ctx context.Context, sessionID string) (*domain.FlowSession, error)

	// UpdateSession writes back mutable session fields (breaker list,
	// interruption count, end timestamp, quality, triggers, duration).
	UpdateSession(ctx context.Context, session *domain.FlowSession) error

	// ListEndedSessions retrieves finalized sessions for a user that started
	// at or after the given instant, newest first.
	ListEndedSessions(ctx context.Context, userID string, since time.Time) ([]*domain.FlowSession, error)

	// ListStaleActiveSessions retrieves active sessions whose last update is
	// older than the threshold, across all users.
	ListStaleActiveSessions(ctx context.Context, updatedBefore time.Time) ([]*domain.FlowSession, error)

	// GetPattern retrieves the flow pattern for a user. Returns nil if absent.
	GetPattern(ctx context.Context, userID string) (*domain.FlowPattern, error)

	// UpsertPattern creates or overwrites the user's flow pattern wholesale.
	UpsertPattern(ctx context.Context, pattern *domain.FlowPattern) error

	// MergeLastSession merges the last-session snippet into the user's
	// pattern row, creating an empty pattern if none exists. Aggregate,
	// sample count, and confidence are left untouched on existing rows.
	MergeLastSession(ctx context.Context, userID string, snap *domain.SessionSnapshot) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
