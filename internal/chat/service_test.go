package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexthire/chatd/internal/hub"
	"github.com/nexthire/chatd/internal/models"
	"github.com/nexthire/chatd/internal/store"
)

// memStore is an in-memory MessageStore for pipeline tests.
type memStore struct {
	mu       sync.Mutex
	messages []*models.Message
	nextID   int64
	failing  bool
}

func newMemStore() *memStore { return &memStore{nextID: 1} }

func (s *memStore) Close()                         {}
func (s *memStore) Ping(ctx context.Context) error { return nil }

func (s *memStore) Append(ctx context.Context, sender, receiver uuid.UUID, content, kind string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, store.ErrUnavailable
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, store.ErrEmptyContent
	}
	if kind == "" {
		kind = models.KindText
	}
	msg := &models.Message{
		ID:         s.nextID,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Kind:       kind,
		CreatedAt:  time.Now().UTC(),
	}
	s.nextID++
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memStore) Thread(ctx context.Context, a, b uuid.UUID, page, pageSize int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.Deleted {
			continue
		}
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memStore) MarkRead(ctx context.Context, ids []int64, reader uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	now := time.Now().UTC()
	for _, m := range s.messages {
		for _, id := range ids {
			if m.ID == id && m.ReceiverID == reader && !m.Read {
				m.Read = true
				m.ReadAt = &now
				updated++
			}
		}
	}
	return updated, nil
}

func (s *memStore) MarkPeerRead(ctx context.Context, peer, reader uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	now := time.Now().UTC()
	for _, m := range s.messages {
		if m.SenderID == peer && m.ReceiverID == reader && !m.Read {
			m.Read = true
			m.ReadAt = &now
			updated++
		}
	}
	return updated, nil
}

func (s *memStore) SoftDelete(ctx context.Context, id int64, requester uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id && m.SenderID == requester {
			m.Deleted = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *memStore) CountUnread(ctx context.Context, receiver uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, m := range s.messages {
		if m.ReceiverID == receiver && !m.Read && !m.Deleted {
			count++
		}
	}
	return count, nil
}

func (s *memStore) Conversations(ctx context.Context, viewer uuid.UUID, page, pageSize int) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := make(map[uuid.UUID]*models.Message)
	unread := make(map[uuid.UUID]int)
	for _, m := range s.messages {
		if m.Deleted {
			continue
		}
		var peer uuid.UUID
		switch viewer {
		case m.SenderID:
			peer = m.ReceiverID
		case m.ReceiverID:
			peer = m.SenderID
		default:
			continue
		}
		latest[peer] = m
		if m.ReceiverID == viewer && !m.Read {
			unread[peer]++
		}
	}
	var out []models.Conversation
	for peer, m := range latest {
		out = append(out, models.Conversation{PeerID: peer, LastMessage: m, UnreadCount: unread[peer]})
	}
	return out, nil
}

// recorder is a hub.Channel capturing delivered events.
type recorder struct {
	session string
	mu      sync.Mutex
	events  []hub.Event
}

func (r *recorder) SessionID() string { return r.session }
func (r *recorder) Close()            {}

func (r *recorder) Deliver(ev hub.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recorder) Events() []hub.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hub.Event(nil), r.events...)
}

// policy is a configurable Authorizer.
type policy struct {
	allow bool
	err   error
}

func (p policy) CanMessage(ctx context.Context, sender, receiver uuid.UUID) (bool, error) {
	return p.allow, p.err
}

// profileDir is a static Directory for read-model tests.
type profileDir struct {
	users map[uuid.UUID]*models.User
}

func (d profileDir) Lookup(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return d.users[id], nil
}
func (d profileDir) SetOnline(ctx context.Context, id uuid.UUID, online bool) error { return nil }
func (d profileDir) Ping(ctx context.Context) error                                 { return nil }

func newTestService(st store.MessageStore, registry *hub.Registry, allow bool) *Service {
	return NewService(st, registry, policy{allow: allow}, profileDir{}, zerolog.Nop())
}

func TestSendPushesToOnlineReceiver(t *testing.T) {
	st := newMemStore()
	registry := hub.NewRegistry()
	svc := newTestService(st, registry, true)

	alice := uuid.New()
	bob := uuid.New()
	bobCh := &recorder{session: "b"}
	registry.Register(bob, bobCh)

	msg, err := svc.Send(context.Background(), alice, bob, "hi bob", "text")
	require.NoError(t, err)
	require.NotNil(t, msg)

	events := bobCh.Events()
	require.Len(t, events, 1)
	assert.Equal(t, hub.EventNewMessage, events[0].Type)
	pushed, ok := events[0].Payload.(*models.Message)
	require.True(t, ok)
	assert.Equal(t, msg.ID, pushed.ID, "push carries the persisted message")
}

func TestSendToOfflineReceiverStoresOnly(t *testing.T) {
	st := newMemStore()
	registry := hub.NewRegistry()
	svc := newTestService(st, registry, true)

	alice := uuid.New()
	bob := uuid.New()

	// Nobody is connected; the send must still succeed
	msg, err := svc.Send(context.Background(), alice, bob, "hi", "text")
	require.NoError(t, err)
	assert.False(t, msg.Read)

	// Bob picks it up later through the thread query
	thread, err := svc.Thread(context.Background(), bob, alice, 1, 50)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, "hi", thread[0].Content)
	assert.False(t, thread[0].Read)
}

func TestSendForbidden(t *testing.T) {
	st := newMemStore()
	registry := hub.NewRegistry()
	svc := newTestService(st, registry, false)

	_, err := svc.Send(context.Background(), uuid.New(), uuid.New(), "hi", "text")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, st.messages, "denied sends are never persisted")
}

func TestSendMissingReceiver(t *testing.T) {
	svc := newTestService(newMemStore(), hub.NewRegistry(), true)

	_, err := svc.Send(context.Background(), uuid.New(), uuid.Nil, "hi", "text")
	assert.ErrorIs(t, err, ErrMissingReceiver)
}

func TestSendPersistenceFailureSkipsPush(t *testing.T) {
	st := newMemStore()
	st.failing = true
	registry := hub.NewRegistry()
	svc := newTestService(st, registry, true)

	bob := uuid.New()
	bobCh := &recorder{session: "b"}
	registry.Register(bob, bobCh)

	_, err := svc.Send(context.Background(), uuid.New(), bob, "hi", "text")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Empty(t, bobCh.Events(), "never push an unpersisted message")
}

func TestOpenThreadMarksPageRead(t *testing.T) {
	st := newMemStore()
	registry := hub.NewRegistry()
	svc := newTestService(st, registry, true)

	alice := uuid.New()
	bob := uuid.New()

	// Scenario: alice messages offline bob
	_, err := svc.Send(context.Background(), alice, bob, "hi", "text")
	require.NoError(t, err)

	count, err := svc.UnreadCount(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Bob opens the thread: the page comes back read and the unread
	// count drops to zero
	messages, updated, err := svc.OpenThread(context.Background(), bob, alice, 1, 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, int64(1), updated)
	assert.True(t, messages[0].Read)

	count, err = svc.UnreadCount(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Alice's own outbound page never flips anything
	_, updated, err = svc.OpenThread(context.Background(), alice, bob, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)
}

func TestConversationsEnrichment(t *testing.T) {
	st := newMemStore()
	registry := hub.NewRegistry()
	alice := uuid.New()
	bob := uuid.New()

	dir := profileDir{users: map[uuid.UUID]*models.User{
		bob: {ID: bob, Username: "bob"},
	}}
	svc := NewService(st, registry, policy{allow: true}, dir, zerolog.Nop())

	_, err := svc.Send(context.Background(), bob, alice, "hello", "text")
	require.NoError(t, err)

	registry.Register(bob, &recorder{session: "b"})

	conversations, err := svc.Conversations(context.Background(), alice, 1, 20)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	require.NotNil(t, conversations[0].Peer)
	assert.Equal(t, "bob", conversations[0].Peer.Username)
	assert.True(t, conversations[0].Peer.Online, "online flag comes from the registry")
	assert.Equal(t, 1, conversations[0].UnreadCount)
}

func TestDeletePassesRequester(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st, hub.NewRegistry(), true)

	alice := uuid.New()
	bob := uuid.New()
	msg, err := svc.Send(context.Background(), alice, bob, "oops", "text")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(context.Background(), msg.ID, bob), store.ErrNotFound)
	assert.NoError(t, svc.Delete(context.Background(), msg.ID, alice))
}
