package hub

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/nexthire/chatd/internal/models"
)

// Event types pushed to clients.
const (
	EventNewMessage        = "new_message"
	EventMessageSent       = "message_sent"
	EventMessageError      = "message_error"
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
	EventOnlineUsers       = "online_users"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
)

// Event types consumed from clients.
const (
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
)

// Event is the outbound websocket wire envelope.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Inbound is the envelope of a client-sent event; the payload stays raw
// until the dispatcher knows the event type.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// userPayload carries a single identity.
type userPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

// NewMessageEvent notifies the receiver of a freshly persisted message.
func NewMessageEvent(msg *models.Message) Event {
	return Event{Type: EventNewMessage, Payload: msg}
}

// MessageSentEvent acknowledges persistence back to the sender.
func MessageSentEvent(msg *models.Message) Event {
	return Event{Type: EventMessageSent, Payload: msg}
}

// MessageErrorEvent reports a failed send back to the sender.
func MessageErrorEvent(reason string) Event {
	return Event{Type: EventMessageError, Payload: map[string]string{"reason": reason}}
}

// UserOnlineEvent announces an identity coming online.
func UserOnlineEvent(id uuid.UUID) Event {
	return Event{Type: EventUserOnline, Payload: userPayload{UserID: id}}
}

// UserOfflineEvent announces an identity going offline.
func UserOfflineEvent(id uuid.UUID) Event {
	return Event{Type: EventUserOffline, Payload: userPayload{UserID: id}}
}

// OnlineUsersEvent carries the full presence snapshot, sent to a
// channel once at connect time.
func OnlineUsersEvent(ids []uuid.UUID) Event {
	return Event{Type: EventOnlineUsers, Payload: map[string][]uuid.UUID{"user_ids": ids}}
}

// UserTypingEvent relays a typing-start signal.
func UserTypingEvent(from uuid.UUID) Event {
	return Event{Type: EventUserTyping, Payload: userPayload{UserID: from}}
}

// UserStoppedTypingEvent relays a typing-stop signal.
func UserStoppedTypingEvent(from uuid.UUID) Event {
	return Event{Type: EventUserStoppedTyping, Payload: userPayload{UserID: from}}
}
