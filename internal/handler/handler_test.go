package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/messagely/internal/apperror"
	"github.com/sakif/messagely/internal/auth"
	"github.com/sakif/messagely/internal/handler"
	"github.com/sakif/messagely/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// decodeBody unmarshals the recorded response into a generic map.
func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

// withUser runs the request as if RequireAuth had accepted a token for username.
func withUser(r *http.Request, username string) *http.Request {
	return r.WithContext(auth.ContextWithUsername(r.Context(), username))
}

// withURLParams attaches chi route parameters so handlers can be called directly.
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// =========================================================================
// AUTH HANDLER
// =========================================================================

type fakeAuthenticator struct {
	gotNewUser  model.NewUser
	gotUsername string
	gotPassword string
	token       string
	err         error
}

func (f *fakeAuthenticator) Register(_ context.Context, nu model.NewUser) (string, error) {
	f.gotNewUser = nu
	return f.token, f.err
}

func (f *fakeAuthenticator) Login(_ context.Context, username, password string) (string, error) {
	f.gotUsername, f.gotPassword = username, password
	return f.token, f.err
}

func TestAuthHandler_HandleLogin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		fake := &fakeAuthenticator{token: "tok"}
		h := handler.NewAuthHandler(fake, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"alice","password":"pw"}`))
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "alice", fake.gotUsername)
		assert.Equal(t, "pw", fake.gotPassword)
		assert.Equal(t, "tok", decodeBody(t, rr)["token"])
	})

	t.Run("bad credentials", func(t *testing.T) {
		fake := &fakeAuthenticator{err: apperror.Unauthorized("Invalid username or password")}
		h := handler.NewAuthHandler(fake, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"alice","password":"no"}`))
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, "unauthorized", body["error"])
		assert.Equal(t, "Invalid username or password", body["message"])
	})

	t.Run("malformed JSON", func(t *testing.T) {
		h := handler.NewAuthHandler(&fakeAuthenticator{}, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":`))
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "validation_error", decodeBody(t, rr)["error"])
	})
}

func TestAuthHandler_HandleRegister(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		fake := &fakeAuthenticator{token: "tok"}
		h := handler.NewAuthHandler(fake, testLogger())

		body := `{"username":"alice","password":"pw","first_name":"Alice","last_name":"A","phone":"+1555"}`
		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.HandleRegister(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, model.NewUser{
			Username: "alice", Password: "pw", FirstName: "Alice", LastName: "A", Phone: "+1555",
		}, fake.gotNewUser)
		assert.Equal(t, "tok", decodeBody(t, rr)["token"])
	})

	t.Run("duplicate", func(t *testing.T) {
		fake := &fakeAuthenticator{err: apperror.Conflict("user", "alice")}
		h := handler.NewAuthHandler(fake, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"username":"alice"}`))
		rr := httptest.NewRecorder()
		h.HandleRegister(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "conflict", decodeBody(t, rr)["error"])
	})

	t.Run("validation error names the field", func(t *testing.T) {
		fake := &fakeAuthenticator{err: apperror.ValidationFailed("phone", "phone is required")}
		h := handler.NewAuthHandler(fake, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"username":"alice"}`))
		rr := httptest.NewRecorder()
		h.HandleRegister(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, "validation_error", body["error"])
		assert.Equal(t, "phone", body["field"])
	})

	t.Run("internal error is not leaked", func(t *testing.T) {
		var logs bytes.Buffer
		fake := &fakeAuthenticator{err: errors.New("sqlite: disk I/O error at /var/db")}
		h := handler.NewAuthHandler(fake, slog.New(slog.NewTextHandler(&logs, nil)))

		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()
		h.HandleRegister(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "/var/db")
		// The cause goes to the server log instead.
		assert.Contains(t, logs.String(), "unhandled error")
		assert.Contains(t, logs.String(), "/var/db")
	})

	t.Run("client errors are not logged as failures", func(t *testing.T) {
		var logs bytes.Buffer
		fake := &fakeAuthenticator{err: apperror.Conflict("user", "alice")}
		h := handler.NewAuthHandler(fake, slog.New(slog.NewTextHandler(&logs, nil)))

		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()
		h.HandleRegister(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.NotContains(t, logs.String(), "unhandled error")
	})
}

// =========================================================================
// USER HANDLER
// =========================================================================

type fakeUserReader struct {
	users []model.UserProfile
	user  *model.User
	from  []model.SentMessage
	to    []model.ReceivedMessage
	err   error
}

func (f *fakeUserReader) All(context.Context) ([]model.UserProfile, error) { return f.users, f.err }

func (f *fakeUserReader) Get(_ context.Context, username string) (*model.User, error) {
	if f.user == nil || f.user.Username != username {
		return nil, apperror.NotFound("user", username)
	}
	return f.user, nil
}

func (f *fakeUserReader) MessagesFrom(context.Context, string) ([]model.SentMessage, error) {
	return f.from, f.err
}

func (f *fakeUserReader) MessagesTo(context.Context, string) ([]model.ReceivedMessage, error) {
	return f.to, f.err
}

func TestUserHandler_HandleList(t *testing.T) {
	fake := &fakeUserReader{users: []model.UserProfile{
		{Username: "alice", FirstName: "Alice", LastName: "A", Phone: "1"},
		{Username: "bob", FirstName: "Bob", LastName: "B", Phone: "2"},
	}}
	h := handler.NewUserHandler(fake, testLogger())

	rr := httptest.NewRecorder()
	h.HandleList(rr, httptest.NewRequest(http.MethodGet, "/users", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	users := decodeBody(t, rr)["users"].([]any)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[1].(map[string]any)["username"])
	assert.NotContains(t, rr.Body.String(), "password")
}

func TestUserHandler_HandleGet(t *testing.T) {
	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeUserReader{user: &model.User{
		Username: "alice", Password: "$2a$hash", FirstName: "Alice", LastName: "A", Phone: "1",
		JoinAt: joined, LastLoginAt: joined,
	}}
	h := handler.NewUserHandler(fake, testLogger())

	t.Run("found", func(t *testing.T) {
		req := withURLParams(httptest.NewRequest(http.MethodGet, "/users/alice", nil), "username", "alice")
		rr := httptest.NewRecorder()
		h.HandleGet(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		user := decodeBody(t, rr)["user"].(map[string]any)
		assert.Equal(t, "alice", user["username"])
		assert.Equal(t, "2026-03-01T12:00:00Z", user["join_at"])
		assert.NotContains(t, user, "password")
	})

	t.Run("not found", func(t *testing.T) {
		req := withURLParams(httptest.NewRequest(http.MethodGet, "/users/zed", nil), "username", "zed")
		rr := httptest.NewRecorder()
		h.HandleGet(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "not_found", decodeBody(t, rr)["error"])
	})
}

func TestUserHandler_MessageLists(t *testing.T) {
	fake := &fakeUserReader{
		from: []model.SentMessage{
			{ID: "m1", Body: "one", ToUser: model.UserProfile{Username: "bob"}},
			{ID: "m2", Body: "two", ToUser: model.UserProfile{Username: "bob"}},
		},
		to: []model.ReceivedMessage{},
	}
	h := handler.NewUserHandler(fake, testLogger())

	rr := httptest.NewRecorder()
	h.HandleMessagesFrom(rr, withURLParams(httptest.NewRequest(http.MethodGet, "/users/alice/from", nil), "username", "alice"))
	assert.Equal(t, http.StatusOK, rr.Code)
	from := decodeBody(t, rr)["messages"].([]any)
	require.Len(t, from, 2)
	first := from[0].(map[string]any)
	assert.Equal(t, "bob", first["to_user"].(map[string]any)["username"])
	assert.Nil(t, first["read_at"])

	rr = httptest.NewRecorder()
	h.HandleMessagesTo(rr, withURLParams(httptest.NewRequest(http.MethodGet, "/users/alice/to", nil), "username", "alice"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"messages":[]}`, rr.Body.String())
}

// =========================================================================
// MESSAGE HANDLER
// =========================================================================

type fakeMessenger struct {
	gotFrom, gotTo, gotBody string
	gotRequester, gotID     string
	msg                     *model.Message
	detail                  *model.MessageDetail
	receipt                 *model.ReadReceipt
	err                     error
}

func (f *fakeMessenger) Create(_ context.Context, from, to, body string) (*model.Message, error) {
	f.gotFrom, f.gotTo, f.gotBody = from, to, body
	return f.msg, f.err
}

func (f *fakeMessenger) Get(_ context.Context, requester, id string) (*model.MessageDetail, error) {
	f.gotRequester, f.gotID = requester, id
	return f.detail, f.err
}

func (f *fakeMessenger) MarkRead(_ context.Context, requester, id string) (*model.ReadReceipt, error) {
	f.gotRequester, f.gotID = requester, id
	return f.receipt, f.err
}

func TestMessageHandler_HandleCreate(t *testing.T) {
	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeMessenger{msg: &model.Message{
		ID: "m1", FromUsername: "alice", ToUsername: "bob", Body: "hi", SentAt: sent,
	}}
	h := handler.NewMessageHandler(fake, testLogger())

	// from_username in the body must be ignored in favour of the token identity
	body := `{"from_username":"mallory","to_username":"bob","body":"hi"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body)), "alice")
	rr := httptest.NewRecorder()
	h.HandleCreate(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "alice", fake.gotFrom)
	assert.Equal(t, "bob", fake.gotTo)
	assert.Equal(t, "hi", fake.gotBody)
	assert.JSONEq(t,
		`{"message":{"id":"m1","from_username":"alice","to_username":"bob","body":"hi","sent_at":"2026-03-01T12:00:00Z"}}`,
		rr.Body.String())
}

func TestMessageHandler_HandleCreate_Unauthenticated(t *testing.T) {
	h := handler.NewMessageHandler(&fakeMessenger{}, testLogger())

	rr := httptest.NewRecorder()
	h.HandleCreate(rr, httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMessageHandler_HandleGet(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"participant", nil, http.StatusOK},
		{"outsider", apperror.Forbidden("cannot read this message"), http.StatusForbidden},
		{"missing", apperror.NotFound("message", "m1"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMessenger{
				detail: &model.MessageDetail{ID: "m1", Body: "hi",
					FromUser: model.UserProfile{Username: "alice"}, ToUser: model.UserProfile{Username: "bob"}},
				err: tt.err,
			}
			h := handler.NewMessageHandler(fake, testLogger())

			req := withURLParams(httptest.NewRequest(http.MethodGet, "/messages/m1", nil), "id", "m1")
			req = withUser(req, "carol")
			rr := httptest.NewRecorder()
			h.HandleGet(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "carol", fake.gotRequester)
			assert.Equal(t, "m1", fake.gotID)
			if tt.wantStatus == http.StatusOK {
				msg := decodeBody(t, rr)["message"].(map[string]any)
				assert.Equal(t, "alice", msg["from_user"].(map[string]any)["username"])
			}
		})
	}
}

func TestMessageHandler_HandleMarkRead(t *testing.T) {
	readAt := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	fake := &fakeMessenger{receipt: &model.ReadReceipt{ID: "m1", ReadAt: readAt}}
	h := handler.NewMessageHandler(fake, testLogger())

	req := withURLParams(httptest.NewRequest(http.MethodPost, "/messages/m1/read", nil), "id", "m1")
	req = withUser(req, "bob")
	rr := httptest.NewRecorder()
	h.HandleMarkRead(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "bob", fake.gotRequester)
	assert.JSONEq(t, `{"message":{"id":"m1","read_at":"2026-03-01T13:00:00Z"}}`, rr.Body.String())
}

// =========================================================================
// HEALTH HANDLER
// =========================================================================

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	handler.NewHealthHandler(fakePinger{}, testLogger()).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	handler.NewHealthHandler(fakePinger{err: errors.New("closed")}, testLogger()).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
