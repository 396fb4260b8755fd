// Package chat is the service layer of the messaging subsystem: the
// persist-then-push delivery pipeline and the conversation read model.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nexthire/chatd/internal/hub"
	"github.com/nexthire/chatd/internal/identity"
	"github.com/nexthire/chatd/internal/metrics"
	"github.com/nexthire/chatd/internal/models"
	"github.com/nexthire/chatd/internal/store"
)

var (
	// ErrMissingReceiver rejects a send with no receiver identity.
	ErrMissingReceiver = errors.New("receiver is required")
	// ErrForbidden rejects a send denied by the messaging policy.
	ErrForbidden = errors.New("you can only message users you follow or who follow you")
)

// Service orchestrates message delivery and the conversation read
// model over the store, the connection registry and the identity
// collaborators.
type Service struct {
	store      store.MessageStore
	registry   *hub.Registry
	authorizer identity.Authorizer
	directory  identity.Directory
	logger     zerolog.Logger
}

// NewService wires the delivery pipeline.
func NewService(st store.MessageStore, registry *hub.Registry, authorizer identity.Authorizer, directory identity.Directory, logger zerolog.Logger) *Service {
	return &Service{
		store:      st,
		registry:   registry,
		authorizer: authorizer,
		directory:  directory,
		logger:     logger,
	}
}

// Send runs one delivery attempt: validate, authorize, persist, then
// best-effort push to the receiver's live channel. Persistence is the
// durability guarantee; a failed or impossible push leaves the message
// retrievable through the thread queries.
func (s *Service) Send(ctx context.Context, sender, receiver uuid.UUID, content, kind string) (*models.Message, error) {
	if receiver == uuid.Nil {
		return nil, ErrMissingReceiver
	}

	allowed, err := s.authorizer.CanMessage(ctx, sender, receiver)
	if err != nil {
		s.logger.Error().Err(err).Msg("authorization check failed")
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}

	start := time.Now()
	msg, err := s.store.Append(ctx, sender, receiver, content, kind)
	if err != nil {
		return nil, err
	}
	metrics.StoreLatency.WithLabelValues("append").Observe(time.Since(start).Seconds())
	metrics.MessagesSent.WithLabelValues(msg.Kind).Inc()

	// Push only after the write succeeded; an offline receiver picks
	// the message up through normal pagination.
	if ch := s.registry.Lookup(receiver); ch != nil {
		ch.Deliver(hub.NewMessageEvent(msg))
		metrics.MessagesDelivered.WithLabelValues("pushed").Inc()
	} else {
		metrics.MessagesDelivered.WithLabelValues("stored_only").Inc()
	}

	return msg, nil
}

// Thread returns one page of the history with peer, oldest-first,
// without touching read state.
func (s *Service) Thread(ctx context.Context, viewer, peer uuid.UUID, page, pageSize int) ([]models.Message, error) {
	start := time.Now()
	messages, err := s.store.Thread(ctx, viewer, peer, page, pageSize)
	if err != nil {
		return nil, err
	}
	metrics.StoreLatency.WithLabelValues("thread").Observe(time.Since(start).Seconds())
	return messages, nil
}

// OpenThread returns one page of the history with peer and marks every
// unread message in that page addressed to the viewer as read. The two
// store operations stay separate so either can be exercised on its own.
func (s *Service) OpenThread(ctx context.Context, viewer, peer uuid.UUID, page, pageSize int) ([]models.Message, int64, error) {
	messages, err := s.Thread(ctx, viewer, peer, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	var unreadIDs []int64
	for _, msg := range messages {
		if msg.ReceiverID == viewer && !msg.Read {
			unreadIDs = append(unreadIDs, msg.ID)
		}
	}

	updated, err := s.store.MarkRead(ctx, unreadIDs, viewer)
	if err != nil {
		// The page itself is good; losing the read-state flip only
		// leaves the messages unread for the next fetch.
		s.logger.Warn().Err(err).Stringer("viewer", viewer).Msg("mark read after open failed")
		return messages, 0, nil
	}

	now := time.Now().UTC()
	for i := range messages {
		if messages[i].ReceiverID == viewer && !messages[i].Read {
			messages[i].Read = true
			messages[i].ReadAt = &now
		}
	}

	return messages, updated, nil
}

// Conversations returns one page of the viewer's conversation list,
// enriched with peer profiles and live online flags.
func (s *Service) Conversations(ctx context.Context, viewer uuid.UUID, page, pageSize int) ([]models.Conversation, error) {
	start := time.Now()
	conversations, err := s.store.Conversations(ctx, viewer, page, pageSize)
	if err != nil {
		return nil, err
	}
	metrics.StoreLatency.WithLabelValues("conversations").Observe(time.Since(start).Seconds())

	for i := range conversations {
		peer, err := s.directory.Lookup(ctx, conversations[i].PeerID)
		if err != nil {
			s.logger.Warn().Err(err).Stringer("peer_id", conversations[i].PeerID).Msg("peer profile lookup failed")
			continue
		}
		if peer != nil {
			peer.Online = s.registry.Online(peer.ID)
			conversations[i].Peer = peer
		}
	}

	return conversations, nil
}

// MarkPeerRead marks every unread message from peer to reader.
func (s *Service) MarkPeerRead(ctx context.Context, peer, reader uuid.UUID) (int64, error) {
	return s.store.MarkPeerRead(ctx, peer, reader)
}

// MarkRead marks the given message ids as read by reader.
func (s *Service) MarkRead(ctx context.Context, ids []int64, reader uuid.UUID) (int64, error) {
	return s.store.MarkRead(ctx, ids, reader)
}

// Delete soft-deletes a message. Only the original sender may delete.
func (s *Service) Delete(ctx context.Context, id int64, requester uuid.UUID) error {
	return s.store.SoftDelete(ctx, id, requester)
}

// UnreadCount counts unread messages addressed to viewer.
func (s *Service) UnreadCount(ctx context.Context, viewer uuid.UUID) (int64, error) {
	return s.store.CountUnread(ctx, viewer)
}
