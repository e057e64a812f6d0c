package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/messagely/internal/apperror"
	"github.com/sakif/messagely/internal/auth"
	"github.com/sakif/messagely/internal/model"
)

// Messenger is what MessageHandler needs from the service layer.
// *service.MessageService satisfies it.
type Messenger interface {
	Create(ctx context.Context, from, to, body string) (*model.Message, error)
	Get(ctx context.Context, requester, id string) (*model.MessageDetail, error)
	MarkRead(ctx context.Context, requester, id string) (*model.ReadReceipt, error)
}

// MessageHandler serves the /messages routes. Every route runs behind
// auth.RequireAuth, so the caller's username is in the request context.
type MessageHandler struct {
	messages Messenger
	logger   *slog.Logger
}

func NewMessageHandler(messages Messenger, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

type createMessageRequest struct {
	ToUsername string `json:"to_username"`
	Body       string `json:"body"`
}

// HandleGet returns a message the caller sent or received.
//
// HTTP: GET /messages/{id}
// RESPONSE: {"message": {id, body, sent_at, read_at, from_user, to_user}}
func (h *MessageHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	requester, ok := requireUsername(w, r, h.logger)
	if !ok {
		return
	}

	msg, err := h.messages.Get(r.Context(), requester, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

// HandleCreate sends a message from the caller.
//
// HTTP: POST /messages
// REQUEST BODY: {"to_username": "...", "body": "..."}
// RESPONSE: 201 {"message": {id, from_username, to_username, body, sent_at}}
//
// The sender is always the token's username; a from_username in the body is ignored.
func (h *MessageHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	from, ok := requireUsername(w, r, h.logger)
	if !ok {
		return
	}

	var req createMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid JSON body", slog.String("path", r.URL.Path))
		writeError(w, h.logger, err)
		return
	}

	msg, err := h.messages.Create(r.Context(), from, req.ToUsername, req.Body)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

// HandleMarkRead marks a message read. Only its recipient may.
//
// HTTP: POST /messages/{id}/read
// RESPONSE: {"message": {id, read_at}}
func (h *MessageHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	requester, ok := requireUsername(w, r, h.logger)
	if !ok {
		return
	}

	receipt, err := h.messages.MarkRead(r.Context(), requester, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": receipt})
}

// requireUsername pulls the authenticated username out of the context, or
// writes a 401 if the route was mounted without RequireAuth.
func requireUsername(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (string, bool) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeError(w, logger, apperror.Unauthorized("valid authentication required"))
		return "", false
	}
	return username, true
}
