package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nexthire/chatd/internal/chat"
	"github.com/nexthire/chatd/internal/hub"
	"github.com/nexthire/chatd/internal/identity"
	"github.com/nexthire/chatd/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	chat      *chat.Service
	registry  *hub.Registry
	presence  *hub.Presence
	typing    *hub.Typing
	auth      identity.Authenticator
	store     store.MessageStore
	directory identity.Directory
	logger    zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(
	svc *chat.Service,
	registry *hub.Registry,
	presence *hub.Presence,
	typing *hub.Typing,
	auth identity.Authenticator,
	st store.MessageStore,
	directory identity.Directory,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		chat:      svc,
		registry:  registry,
		presence:  presence,
		typing:    typing,
		auth:      auth,
		store:     st,
		directory: directory,
		logger:    logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// chatError maps a service-layer error to an HTTP response.
func (h *Handler) chatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrEmptyContent),
		errors.Is(err, store.ErrContentTooLong),
		errors.Is(err, store.ErrInvalidKind),
		errors.Is(err, chat.ErrMissingReceiver):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrForbidden):
		h.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		h.Error(w, http.StatusNotFound, "message not found or you are not authorized to delete it")
	case errors.Is(err, store.ErrUnavailable):
		h.Error(w, http.StatusServiceUnavailable, "message store unavailable")
	default:
		h.logger.Error().Err(err).Msg("unexpected chat error")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}
