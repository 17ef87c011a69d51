// Package runtime hosts the routing core: the connection registry, the
// presence tracker, the delivery router, the message lifecycle and the
// inbound event dispatcher. It orchestrates the system without containing
// storage or transport details.
package runtime

import (
	"sync"

	"chat-direct/contract"

	"github.com/google/uuid"
)

// Registry owns the user -> live sink mapping. It is the only shared
// mutable state in the core; every access goes through the mutex so
// register/unregister/lookup interleave without lost updates or sends
// to stale channels.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]contract.EventSink
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]contract.EventSink)}
}

// Register associates exactly one live sink with a user. A new
// registration supersedes the previous one: the old sink is closed so its
// transport tears down instead of lingering on a dead mapping.
func (r *Registry) Register(userID uuid.UUID, s contract.EventSink) {
	r.mu.Lock()
	previous := r.sessions[userID]
	r.sessions[userID] = s
	r.mu.Unlock()

	if previous != nil && previous != s {
		previous.Close()
	}
}

// Unregister removes the mapping only when the given sink is still the
// current one. A superseded connection's deferred cleanup must not evict
// its replacement.
func (r *Registry) Unregister(userID uuid.UUID, s contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[userID]; ok && current == s {
		delete(r.sessions, userID)
	}
}

func (r *Registry) Lookup(userID uuid.UUID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	return s, ok
}

// Snapshot copies the current sessions for broadcast use, so callers
// never iterate under the registry lock.
func (r *Registry) Snapshot() map[uuid.UUID]contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[uuid.UUID]contract.EventSink, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = s
	}
	return out
}
