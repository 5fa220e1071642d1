// Package storetest provides an in-memory Repository for tests.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/flowlabs/flowd/internal/domain"
)

// Repo is an in-memory Repository implementation. Error fields let tests
// inject collaborator failures per operation.
type Repo struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	sessions map[string]*domain.FlowSession
	patterns map[string]*domain.FlowPattern

	// PatternUpserts counts UpsertPattern calls.
	PatternUpserts int

	// Error injection knobs.
	GetSessionErr    error
	UpdateSessionErr error
	InsertErr        error
	ListErr          error
	UpsertPatternErr error
	GetPatternErr    error
}

// New creates an empty in-memory repository.
func New() *Repo {
	return &Repo{
		users:    make(map[string]*domain.User),
		sessions: make(map[string]*domain.FlowSession),
		patterns: make(map[string]*domain.FlowPattern),
	}
}

func (r *Repo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (r *Repo) UpsertUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.UserID] = &copied
	return nil
}

func (r *Repo) UpdateLastSeen(_ context.Context, userID string, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.LastSeenAt = lastSeen
	}
	return nil
}

func (r *Repo) InsertSession(_ context.Context, session *domain.FlowSession) error {
	if r.InsertErr != nil {
		return r.InsertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *Repo) GetSession(_ context.Context, sessionID string) (*domain.FlowSession, error) {
	if r.GetSessionErr != nil {
		return nil, r.GetSessionErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		return cloneSession(s), nil
	}
	return nil, nil
}

func (r *Repo) UpdateSession(_ context.Context, session *domain.FlowSession) error {
	if r.UpdateSessionErr != nil {
		return r.UpdateSessionErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return domain.ErrNotFound
	}
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *Repo) ListEndedSessions(_ context.Context, userID string, since time.Time) ([]*domain.FlowSession, error) {
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.FlowSession
	for _, s := range r.sessions {
		if s.UserID == userID && !s.Active() && !s.StartedAt.Before(since) {
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

func (r *Repo) ListStaleActiveSessions(_ context.Context, updatedBefore time.Time) ([]*domain.FlowSession, error) {
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.FlowSession
	for _, s := range r.sessions {
		if s.Active() && s.UpdatedAt.Before(updatedBefore) {
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

func (r *Repo) GetPattern(_ context.Context, userID string) (*domain.FlowPattern, error) {
	if r.GetPatternErr != nil {
		return nil, r.GetPatternErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.patterns[userID]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (r *Repo) UpsertPattern(_ context.Context, pattern *domain.FlowPattern) error {
	if r.UpsertPatternErr != nil {
		return r.UpsertPatternErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PatternUpserts++
	copied := *pattern
	// Full overwrite keeps the previous last-session snippet, matching the
	// sqlite implementation's COALESCE.
	if prev, ok := r.patterns[pattern.UserID]; ok && copied.LastSession == nil {
		copied.LastSession = prev.LastSession
	}
	r.patterns[pattern.UserID] = &copied
	return nil
}

func (r *Repo) MergeLastSession(_ context.Context, userID string, snap *domain.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patterns[userID]
	if !ok {
		p = &domain.FlowPattern{UserID: userID}
		r.patterns[userID] = p
	}
	copied := *snap
	p.LastSession = &copied
	p.UpdatedAt = snap.EndedAt
	return nil
}

func (r *Repo) Ping(context.Context) error { return nil }
func (r *Repo) Close() error               { return nil }

// SeedSession stores a session directly, bypassing the service layer.
func (r *Repo) SeedSession(session *domain.FlowSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = cloneSession(session)
}

// SeedPattern stores a pattern directly.
func (r *Repo) SeedPattern(pattern *domain.FlowPattern) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *pattern
	r.patterns[pattern.UserID] = &copied
}

// Session returns the stored session by id, or nil.
func (r *Repo) Session(sessionID string) *domain.FlowSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		return cloneSession(s)
	}
	return nil
}

// Pattern returns the stored pattern for a user, or nil.
func (r *Repo) Pattern(userID string) *domain.FlowPattern {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.patterns[userID]; ok {
		copied := *p
		return &copied
	}
	return nil
}

func cloneSession(s *domain.FlowSession) *domain.FlowSession {
	copied := *s
	if s.EndedAt != nil {
		end := *s.EndedAt
		copied.EndedAt = &end
	}
	copied.Triggers = append([]string(nil), s.Triggers...)
	copied.Breakers = append([]domain.Breaker(nil), s.Breakers...)
	return &copied
}
