package models

import (
	"time"

	"github.com/google/uuid"
)

// Message kinds. "text" is the default when the client omits the field.
const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"
)

// MaxContentLength is the maximum message length in runes after trimming.
const MaxContentLength = 1000

// Message represents a direct message between two users.
type Message struct {
	ID         int64      `json:"id"`
	SenderID   uuid.UUID  `json:"sender_id"`
	ReceiverID uuid.UUID  `json:"receiver_id"`
	Content    string     `json:"content"`
	Kind       string     `json:"message_type"`
	Read       bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
	Deleted    bool       `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ValidKind reports whether kind is one of the supported message kinds.
func ValidKind(kind string) bool {
	switch kind {
	case KindText, KindImage, KindFile:
		return true
	}
	return false
}

// Conversation is the derived view of a thread with one peer: the most
// recent non-deleted message plus the viewer's unread count. It is
// recomputed on demand and never stored.
type Conversation struct {
	PeerID      uuid.UUID `json:"peer_id"`
	Peer        *User     `json:"peer,omitempty"`
	LastMessage *Message  `json:"last_message"`
	UnreadCount int       `json:"unread_count"`
}
