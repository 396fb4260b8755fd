package store

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nexthire/chatd/internal/models"
)

// Sentinel errors for the message store. Validation errors are surfaced
// to the caller and nothing is persisted; ErrUnavailable wraps driver
// failures so callers do not depend on driver error types.
var (
	ErrEmptyContent   = errors.New("message content cannot be empty")
	ErrContentTooLong = errors.New("message content too long")
	ErrInvalidKind    = errors.New("invalid message type")
	ErrNotFound       = errors.New("message not found")
	ErrUnavailable    = errors.New("message store unavailable")
)

// Default and maximum page sizes for thread and conversation queries.
const (
	DefaultThreadPageSize       = 50
	DefaultConversationPageSize = 20
	MaxPageSize                 = 100
)

// MessageStore defines the interface for durable message persistence.
// Both PostgresStore and SQLiteStore implement this interface.
type MessageStore interface {
	Close()
	Ping(ctx context.Context) error

	// Append validates, timestamps and persists a new message.
	// The returned message carries the store-assigned id, which is
	// monotonically increasing within the store.
	Append(ctx context.Context, sender, receiver uuid.UUID, content, kind string) (*models.Message, error)

	// Thread returns one page of the non-deleted message history
	// between a and b, oldest-first. Pages count from 1 and select
	// newest messages first, so page 1 holds the most recent
	// pageSize messages.
	Thread(ctx context.Context, a, b uuid.UUID, page, pageSize int) ([]models.Message, error)

	// MarkRead flips read=false to read=true for the given ids where
	// reader is the receiver, and returns the number of rows newly
	// updated. Re-marking already-read messages is a no-op.
	MarkRead(ctx context.Context, ids []int64, reader uuid.UUID) (int64, error)

	// MarkPeerRead marks every unread message from peer to reader.
	MarkPeerRead(ctx context.Context, peer, reader uuid.UUID) (int64, error)

	// SoftDelete flags a message as deleted. Only the original sender
	// may delete; anything else reports ErrNotFound.
	SoftDelete(ctx context.Context, id int64, requester uuid.UUID) error

	// CountUnread counts non-deleted unread messages addressed to receiver.
	CountUnread(ctx context.Context, receiver uuid.UUID) (int64, error)

	// Conversations returns one page of the viewer's conversations,
	// ordered by last message time descending.
	Conversations(ctx context.Context, viewer uuid.UUID, page, pageSize int) ([]models.Conversation, error)
}

// validateContent normalizes and checks message content and kind.
// Returns the trimmed content and the effective kind.
func validateContent(content, kind string) (string, string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > models.MaxContentLength {
		return "", "", ErrContentTooLong
	}
	if kind == "" {
		kind = models.KindText
	}
	if !models.ValidKind(kind) {
		return "", "", ErrInvalidKind
	}
	return content, kind, nil
}

// clampPage normalizes pagination parameters.
func clampPage(page, pageSize, defaultSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
