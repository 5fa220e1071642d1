package tracker

import (
	"log/slog"
	"sync"
)

// Registry manages live trackers keyed by user and flow session.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*Tracker // userID -> sessionID -> tracker
}

// NewRegistry creates an empty tracker registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]*Tracker),
	}
}

// Get returns the tracker for a user's session, or nil.
func (r *Registry) Get(userID, sessionID string) *Tracker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sessions, ok := r.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Register adds a tracker for a user/session. An existing tracker for the
// same key is stopped and replaced.
func (r *Registry) Register(userID, sessionID string, t *Tracker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[userID]; !exists {
		r.active[userID] = make(map[string]*Tracker)
	}

	if existing, exists := r.active[userID][sessionID]; exists && existing != t {
		existing.Stop()
	}

	r.active[userID][sessionID] = t
	slog.Info("focus tracker registered", "user_id", userID, "session_id", sessionID)
}

// Unregister stops and removes the tracker for a user/session if it is the
// given one.
func (r *Registry) Unregister(userID, sessionID string, t *Tracker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessions, ok := r.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == t {
			current.Stop()
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(r.active, userID)
			}
			slog.Info("focus tracker unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// StopSession stops and removes the tracker for a user/session regardless
// of which connection owns it. Used when a session ends or is swept.
func (r *Registry) StopSession(userID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.active[userID]
	if !ok {
		return
	}
	if t, exists := sessions[sessionID]; exists {
		t.Stop()
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.active, userID)
		}
		slog.Info("focus tracker stopped", "user_id", userID, "session_id", sessionID)
	}
}
