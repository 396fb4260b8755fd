package hub

import (
	"github.com/google/uuid"

	"github.com/nexthire/chatd/internal/metrics"
)

// Typing relays ephemeral typing signals between two identities' active
// channels. Nothing is persisted and a missing recipient is a no-op.
type Typing struct {
	registry *Registry
}

// NewTyping creates a typing relay over the given registry.
func NewTyping(registry *Registry) *Typing {
	return &Typing{registry: registry}
}

// NotifyStart forwards a typing-start signal from from to to.
func (t *Typing) NotifyStart(from, to uuid.UUID) {
	if ch := t.registry.Lookup(to); ch != nil {
		ch.Deliver(UserTypingEvent(from))
		metrics.TypingEvents.WithLabelValues("start").Inc()
	}
}

// NotifyStop forwards a typing-stop signal from from to to.
func (t *Typing) NotifyStop(from, to uuid.UUID) {
	if ch := t.registry.Lookup(to); ch != nil {
		ch.Deliver(UserStoppedTypingEvent(from))
		metrics.TypingEvents.WithLabelValues("stop").Inc()
	}
}
