package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/messagely/internal/model"
)

// UserReader is what UserHandler needs from the service layer.
// *service.UserService satisfies it.
type UserReader interface {
	All(ctx context.Context) ([]model.UserProfile, error)
	Get(ctx context.Context, username string) (*model.User, error)
	MessagesFrom(ctx context.Context, username string) ([]model.SentMessage, error)
	MessagesTo(ctx context.Context, username string) ([]model.ReceivedMessage, error)
}

// UserHandler serves the /users routes.
//
// Authorization happens in the router: /users needs a valid token,
// /users/{username}/... also needs the token to belong to {username}.
type UserHandler struct {
	users  UserReader
	logger *slog.Logger
}

func NewUserHandler(users UserReader, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleList returns every user's public profile.
//
// HTTP: GET /users
// RESPONSE: {"users": [{username, first_name, last_name, phone}, ...]}
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.All(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// HandleGet returns one user's full profile.
//
// HTTP: GET /users/{username}
// RESPONSE: {"user": {username, first_name, last_name, phone, join_at, last_login_at}}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// HandleMessagesTo returns the user's inbox.
//
// HTTP: GET /users/{username}/to
// RESPONSE: {"messages": [{id, body, sent_at, read_at, from_user}, ...]}
func (h *UserHandler) HandleMessagesTo(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.users.MessagesTo(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// HandleMessagesFrom returns the user's outbox.
//
// HTTP: GET /users/{username}/from
// RESPONSE: {"messages": [{id, body, sent_at, read_at, to_user}, ...]}
func (h *UserHandler) HandleMessagesFrom(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.users.MessagesFrom(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
