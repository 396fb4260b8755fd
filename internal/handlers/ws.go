package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nexthire/chatd/internal/api/middleware"
	"github.com/nexthire/chatd/internal/hub"
	"github.com/nexthire/chatd/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser origins vary across deployments; the bearer token is
		// the admission control.
		return true
	},
}

// sendMessagePayload is the payload of an inbound send_message event.
type sendMessagePayload struct {
	ReceiverID uuid.UUID `json:"receiver_id"`
	Content    string    `json:"content"`
	Kind       string    `json:"message_type"`
}

// typingPayload is the payload of inbound typing events.
type typingPayload struct {
	ReceiverID uuid.UUID `json:"receiver_id"`
}

// ServeWS authenticates the handshake, admits the channel into the
// registry and starts the connection's read and write loops. The
// credential is checked before the upgrade; an unauthenticated request
// never reaches the registry.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	credential := middleware.BearerToken(r)
	if credential == "" {
		h.Error(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	user, err := h.auth.Authenticate(r.Context(), credential)
	if err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid or expired credential")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(user.ID, conn, h.logger)

	// Last connection wins: displace and close any earlier session.
	if prev := h.registry.Register(user.ID, client); prev != nil {
		prev.Close()
	}
	metrics.ActiveConnections.Set(float64(h.registry.Count()))

	h.presence.Connected(user.ID, client)

	h.logger.Info().Stringer("user_id", user.ID).Str("session", client.SessionID()).
		Msg("websocket connected")

	go client.WriteLoop()
	go h.runClient(client)
}

// runClient owns the connection's lifecycle: it blocks on the read
// loop and tears the registration down when the peer goes away.
func (h *Handler) runClient(client *hub.Client) {
	defer func() {
		client.Close()
		if h.registry.Unregister(client.UserID, client) {
			h.presence.Disconnected(client.UserID)
		}
		metrics.ActiveConnections.Set(float64(h.registry.Count()))
		h.logger.Info().Stringer("user_id", client.UserID).Str("session", client.SessionID()).
			Msg("websocket disconnected")
	}()

	client.ReadLoop(h.dispatch)
}

// dispatch routes one inbound event from a connected client.
func (h *Handler) dispatch(client *hub.Client, ev hub.Inbound) {
	switch ev.Type {
	case hub.EventSendMessage:
		var payload sendMessagePayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			client.Deliver(hub.MessageErrorEvent("malformed send_message payload"))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		msg, err := h.chat.Send(ctx, client.UserID, payload.ReceiverID, payload.Content, payload.Kind)
		if err != nil {
			client.Deliver(hub.MessageErrorEvent(err.Error()))
			return
		}
		// Ack with the persisted message regardless of whether the
		// receiver push landed; persistence is the guarantee.
		client.Deliver(hub.MessageSentEvent(msg))

	case hub.EventTypingStart:
		var payload typingPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.ReceiverID == uuid.Nil {
			return
		}
		h.typing.NotifyStart(client.UserID, payload.ReceiverID)

	case hub.EventTypingStop:
		var payload typingPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.ReceiverID == uuid.Nil {
			return
		}
		h.typing.NotifyStop(client.UserID, payload.ReceiverID)

	default:
		h.logger.Debug().Str("type", ev.Type).Msg("ignoring unknown event type")
	}
}
