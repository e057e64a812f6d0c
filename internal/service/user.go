package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/messagely/internal/apperror"
	"github.com/sakif/messagely/internal/model"
	"github.com/sakif/messagely/internal/repository"
)

// UserService serves the read side of users: the directory, one profile, and
// a user's inbox and outbox.
//
// Who may call what (logged in vs. correct user) is decided by middleware
// before these methods run.
type UserService struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	logger   *slog.Logger
}

func NewUserService(users repository.UserRepository, messages repository.MessageRepository, logger *slog.Logger) *UserService {
	return &UserService{
		users:    users,
		messages: messages,
		logger:   logger,
	}
}

// All returns every user's public profile.
func (s *UserService) All(ctx context.Context) ([]model.UserProfile, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		logStoreFailure(s.logger, "listing users", err)
		return nil, fmt.Errorf("service/user: listing users: %w", err)
	}
	return users, nil
}

// Get returns the full profile for username, timestamps included.
func (s *UserService) Get(ctx context.Context, username string) (*model.User, error) {
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		logStoreFailure(s.logger, "getting user", err)
		return nil, fmt.Errorf("service/user: getting %s: %w", username, err)
	}
	return user, nil
}

// MessagesFrom returns everything username has sent, oldest first.
func (s *UserService) MessagesFrom(ctx context.Context, username string) ([]model.SentMessage, error) {
	msgs, err := s.messages.MessagesFrom(ctx, username)
	if err != nil {
		logStoreFailure(s.logger, "listing sent messages", err)
		return nil, fmt.Errorf("service/user: messages from %s: %w", username, err)
	}
	return msgs, nil
}

// MessagesTo returns everything username has received, oldest first.
func (s *UserService) MessagesTo(ctx context.Context, username string) ([]model.ReceivedMessage, error) {
	msgs, err := s.messages.MessagesTo(ctx, username)
	if err != nil {
		logStoreFailure(s.logger, "listing received messages", err)
		return nil, fmt.Errorf("service/user: messages to %s: %w", username, err)
	}
	return msgs, nil
}

// logStoreFailure logs err at Error unless it is an apperror (not found,
// conflict, ...), which the caller reports to the client as a normal outcome.
func logStoreFailure(logger *slog.Logger, op string, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return
	}
	logger.Error("store failure", slog.String("op", op), slog.String("error", err.Error()))
}
