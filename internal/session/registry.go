// Package session tracks live client sessions and reclaims the ones that
// stopped signaling liveness.
package session

import (
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/confluence-stream/backend/internal/model"
)

// maxIDAttempts bounds how often Create regenerates an id that is already in use.
const maxIDAttempts = 8

// IDGenerator produces candidate session ids.
type IDGenerator func() string

// NewUUID is the default IDGenerator.
func NewUUID() string {
	return uuid.NewString()
}

// Registry maps session ids to session state. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session

	newID IDGenerator
	now   func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator replaces the id generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(r *Registry) {
		r.newID = gen
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*model.Session),
		newID:    NewUUID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry's current time.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Create registers a new session for conn and returns its id.
func (r *Registry) Create(conn model.Connection) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := r.newID()
		if id == "" {
			continue
		}
		if _, taken := r.sessions[id]; taken {
			continue
		}

		now := r.now()
		r.sessions[id] = &model.Session{
			ID:          id,
			Confluences: []model.Confluence{},
			ConnectedAt: now,
			LastSeen:    now,
			Conn:        conn,
		}
		return id, nil
	}

	return "", fmt.Errorf("%w after %d attempts", model.ErrIDExhausted, maxIDAttempts)
}

// Get returns a snapshot of the session.
func (r *Registry) Get(id string) (model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return model.Session{}, model.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Touch records a liveness signal. LastSeen never moves backwards.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	if now := r.now(); now.After(s.LastSeen) {
		s.LastSeen = now
	}
}

// Update applies fn to the stored session and reports whether it existed.
// fn runs under the registry lock and must not retain the pointer.
func (r *Registry) Update(id string, fn func(*model.Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Remove deletes the session. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) (model.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return model.Session{}, false
	}
	delete(r.sessions, id)
	return *s, true
}

// Stale yields the ids of sessions idle for longer than threshold at now.
// The scan happens when the sequence is ranged over, and the lock is released
// before the first id is yielded so the caller may mutate the registry.
func (r *Registry) Stale(threshold time.Duration, now time.Time) iter.Seq[string] {
	return func(yield func(string) bool) {
		r.mu.RLock()
		var ids []string
		for id, s := range r.sessions {
			if s.Idle(now) > threshold {
				ids = append(ids, id)
			}
		}
		r.mu.RUnlock()

		for _, id := range ids {
			if !yield(id) {
				return
			}
		}
	}
}

// RemoveIfStale removes the session only if it is still stale at now, so a
// session touched after Stale listed it survives.
func (r *Registry) RemoveIfStale(id string, threshold time.Duration, now time.Time) (model.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.Idle(now) <= threshold {
		return model.Session{}, false
	}
	delete(r.sessions, id)
	return *s, true
}

// Drain removes and returns every session.
func (r *Registry) Drain() []model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, *s)
		delete(r.sessions, id)
	}
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns summaries of all live sessions, oldest first.
func (r *Registry) List() []model.SessionSummary {
	r.mu.RLock()
	out := make([]model.SessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Summary())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
