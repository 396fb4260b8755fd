package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexthire/chatd/internal/api/middleware"
	"github.com/nexthire/chatd/internal/chat"
	"github.com/nexthire/chatd/internal/hub"
	"github.com/nexthire/chatd/internal/identity"
	"github.com/nexthire/chatd/internal/models"
	"github.com/nexthire/chatd/internal/store"
)

// testAuth resolves tokens of the form "token-<uuid>" against a seeded
// user set.
type testAuth struct {
	users map[uuid.UUID]*models.User
}

func (a *testAuth) Authenticate(ctx context.Context, credential string) (*models.User, error) {
	for id, user := range a.users {
		if credential == "token-"+id.String() {
			return user, nil
		}
	}
	return nil, identity.ErrInvalidToken
}

func (a *testAuth) Lookup(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return a.users[id], nil
}

func (a *testAuth) SetOnline(ctx context.Context, id uuid.UUID, online bool) error { return nil }
func (a *testAuth) Ping(ctx context.Context) error                                 { return nil }

func (a *testAuth) CanMessage(ctx context.Context, sender, receiver uuid.UUID) (bool, error) {
	return true, nil
}

type testEnv struct {
	router *chi.Mux
	store  store.MessageStore
	alice  *models.User
	bob    *models.User
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	alice := &models.User{ID: uuid.New(), Username: "alice"}
	bob := &models.User{ID: uuid.New(), Username: "bob"}
	auth := &testAuth{users: map[uuid.UUID]*models.User{alice.ID: alice, bob.ID: bob}}

	logger := zerolog.Nop()
	registry := hub.NewRegistry()
	presence := hub.NewPresence(registry, auth, logger)
	typing := hub.NewTyping(registry)
	svc := chat.NewService(st, registry, auth, auth, logger)
	h := NewHandler(svc, registry, presence, typing, auth, st, auth, logger)

	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(auth).RequireAuth)
		r.Post("/chat/send", h.SendMessage)
		r.Get("/chat/conversations", h.ListConversations)
		r.Get("/chat/conversation/{userID}", h.GetConversation)
		r.Put("/chat/mark-read/{userID}", h.MarkRead)
		r.Delete("/chat/{messageID}", h.DeleteMessage)
		r.Get("/chat/unread-count", h.UnreadCount)
	})

	return &testEnv{router: r, store: st, alice: alice, bob: bob}
}

func (e *testEnv) request(t *testing.T, method, path string, as *models.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if as != nil {
		req.Header.Set("Authorization", "Bearer token-"+as.ID.String())
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestSendMessageEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodPost, "/chat/send", env.alice, SendMessageRequest{
		ReceiverID: env.bob.ID,
		Content:    "hello bob",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	msg := decode[models.Message](t, w)
	assert.Equal(t, env.alice.ID, msg.SenderID)
	assert.Equal(t, env.bob.ID, msg.ReceiverID)
	assert.Equal(t, "hello bob", msg.Content)
	assert.Equal(t, models.KindText, msg.Kind)
	assert.False(t, msg.Read)
}

func TestSendMessageValidation(t *testing.T) {
	env := setupTestEnv(t)

	cases := []struct {
		name string
		req  SendMessageRequest
		want int
	}{
		{"missing receiver", SendMessageRequest{Content: "hi"}, http.StatusBadRequest},
		{"blank content", SendMessageRequest{ReceiverID: env.bob.ID, Content: "   "}, http.StatusBadRequest},
		{"bad kind", SendMessageRequest{ReceiverID: env.bob.ID, Content: "hi", Kind: "video"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.request(t, http.MethodPost, "/chat/send", env.alice, tc.req)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestSendMessageRequiresAuth(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodPost, "/chat/send", nil, SendMessageRequest{
		ReceiverID: env.bob.ID,
		Content:    "hi",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetConversationMarksRead(t *testing.T) {
	env := setupTestEnv(t)

	for i := 0; i < 3; i++ {
		w := env.request(t, http.MethodPost, "/chat/send", env.alice, SendMessageRequest{
			ReceiverID: env.bob.ID,
			Content:    fmt.Sprintf("message %d", i),
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.request(t, http.MethodGet, "/chat/unread-count", env.bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(3), decode[map[string]int64](t, w)["unread_count"])

	w = env.request(t, http.MethodGet, "/chat/conversation/"+env.alice.ID.String(), env.bob, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[ThreadResponse](t, w)
	require.Len(t, resp.Messages, 3)
	assert.Equal(t, "message 0", resp.Messages[0].Content, "thread pages are oldest-first")
	for _, msg := range resp.Messages {
		assert.True(t, msg.Read)
	}
	require.NotNil(t, resp.OtherUser)
	assert.Equal(t, "alice", resp.OtherUser.Username)

	w = env.request(t, http.MethodGet, "/chat/unread-count", env.bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), decode[map[string]int64](t, w)["unread_count"])
}

func TestGetConversationBadUserID(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodGet, "/chat/conversation/not-a-uuid", env.bob, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListConversations(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodPost, "/chat/send", env.alice, SendMessageRequest{
		ReceiverID: env.bob.ID,
		Content:    "latest",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(t, http.MethodGet, "/chat/conversations", env.bob, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[ConversationsResponse](t, w)
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, env.alice.ID, resp.Conversations[0].PeerID)
	assert.Equal(t, 1, resp.Conversations[0].UnreadCount)
	require.NotNil(t, resp.Conversations[0].LastMessage)
	assert.Equal(t, "latest", resp.Conversations[0].LastMessage.Content)
}

func TestMarkReadEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodPost, "/chat/send", env.alice, SendMessageRequest{
		ReceiverID: env.bob.ID,
		Content:    "unread",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(t, http.MethodPut, "/chat/mark-read/"+env.alice.ID.String(), env.bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[map[string]int64](t, w)["updated"])

	// Idempotent
	w = env.request(t, http.MethodPut, "/chat/mark-read/"+env.alice.ID.String(), env.bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), decode[map[string]int64](t, w)["updated"])
}

func TestDeleteMessageEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodPost, "/chat/send", env.alice, SendMessageRequest{
		ReceiverID: env.bob.ID,
		Content:    "oops",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	msg := decode[models.Message](t, w)

	// The receiver cannot delete the sender's message
	w = env.request(t, http.MethodDelete, fmt.Sprintf("/chat/%d", msg.ID), env.bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.request(t, http.MethodDelete, fmt.Sprintf("/chat/%d", msg.ID), env.alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Deleted messages drop out of the thread
	w = env.request(t, http.MethodGet, "/chat/conversation/"+env.alice.ID.String(), env.bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[ThreadResponse](t, w).Messages)
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
}
