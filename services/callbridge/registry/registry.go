// Package registry holds the set of live call sessions keyed by call id.
package registry

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/sebas/callbridge/services/callbridge/session"
)

// ErrDuplicateID is returned by Register when the id is already present
var ErrDuplicateID = errors.New("duplicate call id")

// Store defines the registry contract so callers can be tested against
// alternative implementations.
type Store interface {
	// Register adds a session. Fails with ErrDuplicateID if id is present.
	Register(id string, s *session.Session) error

	// Lookup returns the session for id, or false.
	Lookup(id string) (*session.Session, bool)

	// Remove deletes id. No-op if absent.
	Remove(id string)

	// List returns the registered ids in unspecified order.
	List() []string

	// Sessions returns the registered sessions in unspecified order.
	Sessions() []*session.Session

	// ClearAll removes every session and returns the removed ids.
	ClearAll() []string

	// Len returns the number of registered sessions.
	Len() int
}

// Registry is the in-memory Store.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

var _ Store = (*Registry)(nil)

func New() *Registry {
	return &Registry{sessions: make(map[string]*session.Session)}
}

func (r *Registry) Register(id string, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		slog.Warn("[Registry] Duplicate call id", "call_id", id)
		return ErrDuplicateID
	}
	r.sessions[id] = s
	slog.Debug("[Registry] Registered", "call_id", id, "count", len(r.sessions))
	return nil
}

func (r *Registry) Lookup(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		slog.Debug("[Registry] Removed", "call_id", id, "count", len(r.sessions))
	}
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Sessions() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// ClearAll empties the registry. Callers disconnect the sessions first so no
// platform resources stay attached to a removed session.
func (r *Registry) ClearAll() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.sessions = make(map[string]*session.Session)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
