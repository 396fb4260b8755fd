package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexthire/chatd/internal/api/middleware"
	"github.com/nexthire/chatd/internal/models"
	"github.com/nexthire/chatd/internal/store"
)

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ReceiverID uuid.UUID `json:"receiver_id"`
	Content    string    `json:"content"`
	Kind       string    `json:"message_type"`
}

// Pagination is the envelope describing the requested page.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

// ThreadResponse represents one page of a conversation thread.
type ThreadResponse struct {
	Messages   []models.Message `json:"messages"`
	OtherUser  *models.User     `json:"other_user,omitempty"`
	Pagination Pagination       `json:"pagination"`
}

// ConversationsResponse represents one page of the conversation list.
type ConversationsResponse struct {
	Conversations []models.Conversation `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

// SendMessage handles sending a direct message over the REST surface.
// The delivery pipeline is the same one the websocket path uses, so an
// online receiver still gets the live push.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sender := middleware.GetUserFromContext(r.Context())
	if sender == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.chat.Send(r.Context(), sender.ID, req.ReceiverID, req.Content, req.Kind)
	if err != nil {
		h.chatError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

// GetConversation returns one page of the thread with another user,
// oldest-first, and marks the page's unread messages as read.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.GetUserFromContext(r.Context())
	if viewer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	peerID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	page, limit := pageParams(r, store.DefaultThreadPageSize)

	messages, _, err := h.chat.OpenThread(r.Context(), viewer.ID, peerID, page, limit)
	if err != nil {
		h.chatError(w, err)
		return
	}

	peer, err := h.directory.Lookup(r.Context(), peerID)
	if err == nil && peer != nil {
		peer.Online = h.registry.Online(peer.ID)
	}

	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, ThreadResponse{
		Messages:  messages,
		OtherUser: peer,
		Pagination: Pagination{
			Page:    page,
			Limit:   limit,
			HasMore: len(messages) == limit,
		},
	})
}

// ListConversations returns one page of the viewer's conversations.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.GetUserFromContext(r.Context())
	if viewer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	page, limit := pageParams(r, store.DefaultConversationPageSize)

	conversations, err := h.chat.Conversations(r.Context(), viewer.ID, page, limit)
	if err != nil {
		h.chatError(w, err)
		return
	}

	if conversations == nil {
		conversations = []models.Conversation{}
	}

	h.JSON(w, http.StatusOK, ConversationsResponse{
		Conversations: conversations,
		Pagination: Pagination{
			Page:    page,
			Limit:   limit,
			HasMore: len(conversations) == limit,
		},
	})
}

// MarkRead marks every unread message from the given peer as read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.GetUserFromContext(r.Context())
	if viewer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	peerID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	updated, err := h.chat.MarkPeerRead(r.Context(), peerID, viewer.ID)
	if err != nil {
		h.chatError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// DeleteMessage soft-deletes a message. Sender-only.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetUserFromContext(r.Context())
	if requester == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid message ID format")
		return
	}

	if err := h.chat.Delete(r.Context(), id, requester.ID); err != nil {
		h.chatError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"message": "message deleted"})
}

// UnreadCount returns the viewer's total unread message count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.GetUserFromContext(r.Context())
	if viewer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	count, err := h.chat.UnreadCount(r.Context(), viewer.ID)
	if err != nil {
		h.chatError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]int64{"unread_count": count})
}

// pageParams parses page/limit query parameters with defaults.
func pageParams(r *http.Request, defaultLimit int) (int, int) {
	page := 1
	limit := defaultLimit
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= store.MaxPageSize {
			limit = parsed
		}
	}
	return page, limit
}
