// Package hub manages the process-local real-time layer: the registry
// of live connections, the websocket client pumps, and the presence and
// typing relays. The registry is the only concurrently-mutated shared
// structure; everything it guards is pure map bookkeeping, never I/O.
package hub

import (
	"sync"

	"github.com/google/uuid"
)

// Channel is one live bidirectional connection to a client session.
// Deliver must not block: implementations queue the event and report
// whether it was accepted.
type Channel interface {
	// SessionID distinguishes connections of the same identity.
	SessionID() string
	// Deliver queues an event for the client, dropping it if the
	// session's buffer is full. Returns false when dropped or closed.
	Deliver(ev Event) bool
	// Close tears the connection down.
	Close()
}

// Registry maps each identity to its single active channel. Constructed
// once per process and injected into every component that needs it.
type Registry struct {
	mu       sync.RWMutex
	channels map[uuid.UUID]Channel
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[uuid.UUID]Channel)}
}

// Register installs ch as the active channel for id and returns the
// previously registered channel, if any. Last writer wins; the caller
// decides what to do with the displaced channel.
func (r *Registry) Register(id uuid.UUID, ch Channel) Channel {
	r.mu.Lock()
	prev := r.channels[id]
	r.channels[id] = ch
	r.mu.Unlock()
	return prev
}

// Unregister removes the mapping only if ch is still the registered
// channel for id, so a stale disconnect cannot evict a newer
// connection. Reports whether a mapping was removed.
func (r *Registry) Unregister(id uuid.UUID, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.channels[id]
	if !ok || current.SessionID() != ch.SessionID() {
		return false
	}
	delete(r.channels, id)
	return true
}

// Lookup returns the active channel for id, or nil.
func (r *Registry) Lookup(id uuid.UUID) Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[id]
}

// Online reports whether id has an active channel.
func (r *Registry) Online(id uuid.UUID) bool {
	return r.Lookup(id) != nil
}

// Identities returns a snapshot of every connected identity.
func (r *Registry) Identities() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of active connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Broadcast delivers ev to every channel except the identities in skip.
// Delivery is independent per recipient; a full or closed channel is
// skipped rather than waited on.
func (r *Registry) Broadcast(ev Event, skip ...uuid.UUID) {
	r.mu.RLock()
	targets := make([]Channel, 0, len(r.channels))
	for id, ch := range r.channels {
		excluded := false
		for _, s := range skip {
			if id == s {
				excluded = true
				break
			}
		}
		if !excluded {
			targets = append(targets, ch)
		}
	}
	r.mu.RUnlock()

	for _, ch := range targets {
		ch.Deliver(ev)
	}
}
