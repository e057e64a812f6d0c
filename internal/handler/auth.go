package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/messagely/internal/model"
)

// Authenticator is what AuthHandler needs from the service layer.
// *service.AuthService satisfies it.
type Authenticator interface {
	Register(ctx context.Context, nu model.NewUser) (string, error)
	Login(ctx context.Context, username, password string) (string, error)
}

// AuthHandler serves registration and login. Both answer with a token the
// client sends back on every later request.
type AuthHandler struct {
	auth   Authenticator
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(auth Authenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// TokenResponse is the body of a successful login or registration.
type TokenResponse struct {
	Token string `json:"token"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin checks credentials and issues a token.
//
// HTTP: POST /login
// REQUEST BODY: {"username": "...", "password": "..."}
// RESPONSE: 200 {"token": "..."}, 401 on bad credentials
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid JSON body", slog.String("path", r.URL.Path))
		writeError(w, h.logger, err)
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// HandleRegister creates an account and logs it in.
//
// HTTP: POST /register
// REQUEST BODY: {"username", "password", "first_name", "last_name", "phone"}
// RESPONSE: 201 {"token": "..."}, 409 if the username is taken
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.NewUser
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid JSON body", slog.String("path", r.URL.Path))
		writeError(w, h.logger, err)
		return
	}

	token, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, TokenResponse{Token: token})
}
