package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of type contextKey, so only this package
// can read or write the username stored in the context.
type contextKey string

const usernameKey contextKey = "username"

// maxTokenBodyBytes bounds how much of a JSON body is buffered while looking
// for a "_token" field.
const maxTokenBodyBytes = 1 << 20

// RequireAuth is the "logged in" check: any valid, correctly-signed token
// lets the request through.
//
// The token is read from, in order:
//  1. the Authorization header ("Bearer <jwt>")
//  2. the "_token" query parameter
//  3. a "_token" field in a JSON request body
//
// On success the username is stored in the request context. If the token is
// missing or invalid, it answers 401 and stops the chain.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new http.Handler that
// wraps it. Chi applies them in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := extractToken(r)
			if err != nil || raw == "" {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}

			username, err := tokens.Validate(raw)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUsername(r.Context(), username)))
		})
	}
}

// RequireCorrectUser is the "correct user" check: the token's username must
// equal the route's {param} URL parameter. Mount it after RequireAuth.
//
//	r.With(auth.RequireCorrectUser("username")).Get("/users/{username}", ...)
func RequireCorrectUser(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, ok := UsernameFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}

			if target := chi.URLParam(r, param); target != username {
				writeAuthError(w, http.StatusForbidden, "forbidden", "you may only access your own resources")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ContextWithUsername returns a copy of ctx carrying the authenticated username.
func ContextWithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// UsernameFromContext retrieves the authenticated username from the request context.
//
// Returns ("", false) if the request is anonymous (no valid token was present).
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok && username != ""
}

// extractToken finds the raw token string on the request. A JSON body that
// has to be inspected is buffered and put back, so handlers can still decode it.
func extractToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token), nil
		}
	}

	if t := r.URL.Query().Get("_token"); t != "" {
		return t, nil
	}

	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxTokenBodyBytes))
	if err != nil {
		return "", err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		Token string `json:"_token"`
	}
	// A malformed body is the handler's problem to report, not ours.
	_ = json.Unmarshal(body, &payload)
	return payload.Token, nil
}

// writeAuthError writes the same {"error","message"} shape the handlers use.
func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
