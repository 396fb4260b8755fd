package hub

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nexthire/chatd/internal/identity"
	"github.com/nexthire/chatd/internal/metrics"
)

// Presence broadcasts online/offline transitions derived from registry
// membership and mirrors them to the identity service.
type Presence struct {
	registry  *Registry
	directory identity.Directory
	logger    zerolog.Logger
}

// NewPresence creates a presence broadcaster over the given registry.
func NewPresence(registry *Registry, directory identity.Directory, logger zerolog.Logger) *Presence {
	return &Presence{registry: registry, directory: directory, logger: logger}
}

// Connected announces id to every other channel and sends the full
// online snapshot to the new channel only, so it can render presence
// without waiting for future events.
func (p *Presence) Connected(id uuid.UUID, ch Channel) {
	snapshot := p.registry.Identities()

	p.registry.Broadcast(UserOnlineEvent(id), id)
	ch.Deliver(OnlineUsersEvent(snapshot))

	metrics.PresenceEvents.WithLabelValues("online").Inc()
	go p.markOnline(id, true)
}

// Disconnected announces id going offline to every remaining channel.
// Call only after a guarded unregister succeeded, so a stale disconnect
// of a superseded session does not fire a bogus offline event.
func (p *Presence) Disconnected(id uuid.UUID) {
	p.registry.Broadcast(UserOfflineEvent(id), id)

	metrics.PresenceEvents.WithLabelValues("offline").Inc()
	go p.markOnline(id, false)
}

// markOnline mirrors the presence change into the identity service.
// Fire-and-forget: a failed update only delays last-seen accuracy.
func (p *Presence) markOnline(id uuid.UUID, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.directory.SetOnline(ctx, id, online); err != nil {
		p.logger.Warn().Err(err).Stringer("user_id", id).Bool("online", online).
			Msg("presence update to identity service failed")
	}
}
