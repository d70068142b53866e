// Package realtime tracks connected client sessions and fans completed
// mutations out to the sessions allowed to observe them.
package realtime

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"pipeline-orchestrator/internal/domain"
)

var ErrSessionExists = errors.New("session already registered")

// Session is a live client connection bound to a verified identity. The
// identity carries the permission snapshot used for every broadcast.
type Session struct {
	ID          string          `json:"id"`
	Identity    domain.Identity `json:"identity"`
	ConnectedAt time.Time       `json:"connected_at"`
}

func (s Session) clone() Session {
	s.Identity.Permissions = slices.Clone(s.Identity.Permissions)
	return s
}

// Registry is the process-wide session table. Reads return copies, so a
// snapshot taken for a broadcast is never changed by later refreshes.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	byUser   map[string]map[string]struct{}
	onSize   func(n int)
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: map[string]Session{},
		byUser:   map[string]map[string]struct{}{},
	}
}

// OnSizeChange registers fn to be called with the session count after every
// insert or removal.
func (r *Registry) OnSizeChange(fn func(n int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSize = fn
}

// Add registers s, assigning an id when s has none.
func (r *Registry) Add(s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = time.Now().UTC()
	}
	s = s.clone()

	r.mu.Lock()
	if _, exists := r.sessions[s.ID]; exists {
		r.mu.Unlock()
		return Session{}, ErrSessionExists
	}
	r.sessions[s.ID] = s
	ids, ok := r.byUser[s.Identity.UserID]
	if !ok {
		ids = map[string]struct{}{}
		r.byUser[s.Identity.UserID] = ids
	}
	ids[s.ID] = struct{}{}
	n, onSize := len(r.sessions), r.onSize
	r.mu.Unlock()

	if onSize != nil {
		onSize(n)
	}
	return s.clone(), nil
}

// Remove drops the session and reports whether it was registered.
func (r *Registry) Remove(id string) (Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		if ids := r.byUser[s.Identity.UserID]; ids != nil {
			delete(ids, id)
			if len(ids) == 0 {
				delete(r.byUser, s.Identity.UserID)
			}
		}
	}
	n, onSize := len(r.sessions), r.onSize
	r.mu.Unlock()

	if ok && onSize != nil {
		onSize(n)
	}
	return s, ok
}

func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// ByIdentity returns every session of the user, in no particular order.
func (r *Registry) ByIdentity(userID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		out = append(out, r.sessions[id].clone())
	}
	return out
}

// Snapshot returns a consistent copy of every registered session.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.clone())
	}
	return out
}

// UpdatePermissions replaces the permission snapshot of every session of the
// user and returns how many sessions were refreshed.
func (r *Registry) UpdatePermissions(userID string, permissions []domain.Permission) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.byUser[userID]
	for id := range ids {
		s := r.sessions[id]
		s.Identity.Permissions = slices.Clone(permissions)
		r.sessions[id] = s
	}
	return len(ids)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
