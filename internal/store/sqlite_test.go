package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexthire/chatd/internal/models"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "chatd-test.db")
	st, err := NewSQLiteStore(context.Background(), dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		st.Close()
		os.Remove(dbPath)
	})

	return st
}

func TestAppendAndThread(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	msg, err := st.Append(ctx, alice, bob, "  hi bob  ", "")
	require.NoError(t, err)
	assert.Equal(t, "hi bob", msg.Content, "content should be trimmed")
	assert.Equal(t, models.KindText, msg.Kind, "kind should default to text")
	assert.False(t, msg.CreatedAt.IsZero())

	thread, err := st.Thread(ctx, alice, bob, 1, 50)
	require.NoError(t, err)
	require.Len(t, thread, 1, "appended message appears exactly once")
	assert.Equal(t, msg.ID, thread[0].ID)
	assert.False(t, thread[0].Read)

	// Visible from either participant's perspective
	thread, err = st.Thread(ctx, bob, alice, 1, 50)
	require.NoError(t, err)
	require.Len(t, thread, 1)
}

func TestAppendValidation(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	_, err := st.Append(ctx, alice, bob, "   ", "text")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = st.Append(ctx, alice, bob, strings.Repeat("x", 1001), "text")
	assert.ErrorIs(t, err, ErrContentTooLong)

	_, err = st.Append(ctx, alice, bob, "hello", "video")
	assert.ErrorIs(t, err, ErrInvalidKind)

	// Exactly the maximum is fine
	_, err = st.Append(ctx, alice, bob, strings.Repeat("x", 1000), "text")
	assert.NoError(t, err)

	// Nothing invalid reached the store
	thread, err := st.Thread(ctx, alice, bob, 1, 50)
	require.NoError(t, err)
	assert.Len(t, thread, 1)
}

func TestThreadOrdering(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	first, err := st.Append(ctx, alice, bob, "first", "text")
	require.NoError(t, err)
	second, err := st.Append(ctx, bob, alice, "second", "text")
	require.NoError(t, err)
	third, err := st.Append(ctx, alice, bob, "third", "text")
	require.NoError(t, err)

	assert.Less(t, first.ID, second.ID, "store ids are monotonic")
	assert.Less(t, second.ID, third.ID)

	thread, err := st.Thread(ctx, alice, bob, 1, 50)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, "first", thread[0].Content, "thread returns oldest-first")
	assert.Equal(t, "second", thread[1].Content)
	assert.Equal(t, "third", thread[2].Content)
}

func TestThreadPagination(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := st.Append(ctx, alice, bob, strings.Repeat("m", i+1), "text")
		require.NoError(t, err)
	}

	// Page 1 holds the newest two, oldest-first within the page
	page1, err := st.Thread(ctx, alice, bob, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "mmmm", page1[0].Content)
	assert.Equal(t, "mmmmm", page1[1].Content)

	page3, err := st.Thread(ctx, alice, bob, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "m", page3[0].Content)
}

func TestMarkReadIdempotent(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	msg, err := st.Append(ctx, alice, bob, "hi", "text")
	require.NoError(t, err)

	updated, err := st.MarkRead(ctx, []int64{msg.ID}, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	// Second call is a no-op
	updated, err = st.MarkRead(ctx, []int64{msg.ID}, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)

	thread, err := st.Thread(ctx, alice, bob, 1, 50)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.True(t, thread[0].Read)
	require.NotNil(t, thread[0].ReadAt)
}

func TestMarkReadOnlyReceiver(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	msg, err := st.Append(ctx, alice, bob, "hi", "text")
	require.NoError(t, err)

	// The sender cannot mark their own outbound message read
	updated, err := st.MarkRead(ctx, []int64{msg.ID}, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)

	count, err := st.CountUnread(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMarkPeerRead(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := st.Append(ctx, alice, bob, "from alice", "text")
		require.NoError(t, err)
	}
	_, err := st.Append(ctx, carol, bob, "from carol", "text")
	require.NoError(t, err)

	updated, err := st.MarkPeerRead(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	count, err := st.CountUnread(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "carol's message stays unread")
}

func TestSoftDelete(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	before, err := st.Append(ctx, alice, bob, "keep me", "text")
	require.NoError(t, err)
	victim, err := st.Append(ctx, alice, bob, "delete me", "text")
	require.NoError(t, err)
	after, err := st.Append(ctx, alice, bob, "keep me too", "text")
	require.NoError(t, err)

	// Only the sender may delete
	err = st.SoftDelete(ctx, victim.ID, bob)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.SoftDelete(ctx, victim.ID, alice))

	thread, err := st.Thread(ctx, alice, bob, 1, 50)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, before.ID, thread[0].ID, "surrounding ids unchanged")
	assert.Equal(t, after.ID, thread[1].ID)

	// Deleted messages do not count as unread
	count, err := st.CountUnread(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSoftDeleteUnknownMessage(t *testing.T) {
	st := setupTestStore(t)

	err := st.SoftDelete(context.Background(), 9999, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversations(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	viewer := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	_, err := st.Append(ctx, alice, viewer, "hello from alice", "text")
	require.NoError(t, err)
	_, err = st.Append(ctx, viewer, bob, "hello bob", "text")
	require.NoError(t, err)
	latest, err := st.Append(ctx, bob, viewer, "hi back", "text")
	require.NoError(t, err)

	conversations, err := st.Conversations(ctx, viewer, 1, 20)
	require.NoError(t, err)
	require.Len(t, conversations, 2)

	// Ordered by last message time descending: bob's thread is fresher
	assert.Equal(t, bob, conversations[0].PeerID)
	assert.Equal(t, latest.ID, conversations[0].LastMessage.ID)
	assert.Equal(t, 1, conversations[0].UnreadCount)

	assert.Equal(t, alice, conversations[1].PeerID)
	assert.Equal(t, 1, conversations[1].UnreadCount)

	// Reading bob's thread clears that unread count
	_, err = st.MarkPeerRead(ctx, bob, viewer)
	require.NoError(t, err)

	conversations, err = st.Conversations(ctx, viewer, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, conversations[0].UnreadCount)
}

func TestConversationsExcludesDeletedLastMessage(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	viewer := uuid.New()
	alice := uuid.New()

	kept, err := st.Append(ctx, alice, viewer, "first", "text")
	require.NoError(t, err)
	victim, err := st.Append(ctx, alice, viewer, "second", "text")
	require.NoError(t, err)

	require.NoError(t, st.SoftDelete(ctx, victim.ID, alice))

	conversations, err := st.Conversations(ctx, viewer, 1, 20)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, kept.ID, conversations[0].LastMessage.ID, "deleted message is not the last message")
	assert.Equal(t, 1, conversations[0].UnreadCount)
}
