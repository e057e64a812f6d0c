package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/sakif/messagely/internal/apperror"
	"github.com/sakif/messagely/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory implementation of both repository interfaces.
// Using a fake (not a mock framework) keeps tests dependency-free and easy
// to read: you can see exactly what the fake does.
type fakeStore struct {
	users    map[string]*model.User
	messages map[string]*model.Message
	order    []string // message ids in insertion order
	nextID   int

	// set to a non-nil error to simulate a database failure
	createUserErr error
	listErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*model.User),
		messages: make(map[string]*model.Message),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	if f.createUserErr != nil {
		return f.createUserErr
	}
	if _, ok := f.users[user.Username]; ok {
		return apperror.Conflict("user", user.Username)
	}
	now := time.Now().UTC()
	user.JoinAt = now
	user.LastLoginAt = now
	stored := *user
	f.users[user.Username] = &stored
	return nil
}

func (f *fakeStore) PasswordHash(_ context.Context, username string) (string, error) {
	u, ok := f.users[username]
	if !ok {
		return "", apperror.NotFound("user", username)
	}
	return u.Password, nil
}

func (f *fakeStore) TouchLastLogin(_ context.Context, username string, at time.Time) error {
	u, ok := f.users[username]
	if !ok {
		return apperror.NotFound("user", username)
	}
	u.LastLoginAt = at
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, username string) (*model.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, apperror.NotFound("user", username)
	}
	result := *u
	result.Password = ""
	return &result, nil
}

func (f *fakeStore) ListUsers(_ context.Context) ([]model.UserProfile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.UserProfile, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u.Profile())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeStore) CreateMessage(_ context.Context, msg *model.Message) error {
	if _, ok := f.users[msg.FromUsername]; !ok {
		return apperror.ValidationFailed("to_username", "recipient does not exist")
	}
	if _, ok := f.users[msg.ToUsername]; !ok {
		return apperror.ValidationFailed("to_username", "recipient does not exist")
	}
	f.nextID++
	msg.ID = fmt.Sprintf("msg-%d", f.nextID)
	msg.SentAt = time.Now().UTC()
	stored := *msg
	f.messages[msg.ID] = &stored
	f.order = append(f.order, msg.ID)
	return nil
}

func (f *fakeStore) GetMessage(_ context.Context, id string) (*model.MessageDetail, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, apperror.NotFound("message", id)
	}
	return &model.MessageDetail{
		ID:       m.ID,
		Body:     m.Body,
		SentAt:   m.SentAt,
		ReadAt:   m.ReadAt,
		FromUser: f.users[m.FromUsername].Profile(),
		ToUser:   f.users[m.ToUsername].Profile(),
	}, nil
}

func (f *fakeStore) MarkRead(_ context.Context, id string, at time.Time) (time.Time, error) {
	m, ok := f.messages[id]
	if !ok {
		return time.Time{}, apperror.NotFound("message", id)
	}
	if m.ReadAt == nil {
		m.ReadAt = &at
	}
	return *m.ReadAt, nil
}

func (f *fakeStore) MessagesFrom(_ context.Context, username string) ([]model.SentMessage, error) {
	out := []model.SentMessage{}
	for _, id := range f.order {
		m := f.messages[id]
		if m.FromUsername == username {
			out = append(out, model.SentMessage{
				ID: m.ID, Body: m.Body, SentAt: m.SentAt, ReadAt: m.ReadAt,
				ToUser: f.users[m.ToUsername].Profile(),
			})
		}
	}
	return out, nil
}

func (f *fakeStore) MessagesTo(_ context.Context, username string) ([]model.ReceivedMessage, error) {
	out := []model.ReceivedMessage{}
	for _, id := range f.order {
		m := f.messages[id]
		if m.ToUsername == username {
			out = append(out, model.ReceivedMessage{
				ID: m.ID, Body: m.Body, SentAt: m.SentAt, ReadAt: m.ReadAt,
				FromUser: f.users[m.FromUsername].Profile(),
			})
		}
	}
	return out, nil
}

// addUser puts a user straight into the fake, bypassing hashing.
func (f *fakeStore) addUser(username string) {
	f.users[username] = &model.User{
		Username:  username,
		Password:  "unused",
		FirstName: "First-" + username,
		LastName:  "Last-" + username,
		Phone:     "+15550000000",
	}
}
