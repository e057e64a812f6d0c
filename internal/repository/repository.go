// Package repository declares the storage interfaces the service layer
// depends on. internal/repository/sqlite implements them.
package repository

import (
	"context"
	"time"

	"github.com/sakif/messagely/internal/model"
)

// UserRepository is the credential store.
//
// Failures are reported as apperror values: Conflict for a duplicate
// username, NotFound for an unknown one.
type UserRepository interface {
	// CreateUser inserts a user whose Password is already hashed and stamps
	// JoinAt and LastLoginAt on the passed struct.
	CreateUser(ctx context.Context, user *model.User) error
	// PasswordHash returns the stored hash for username.
	PasswordHash(ctx context.Context, username string) (string, error)
	// TouchLastLogin sets last_login_at to at.
	TouchLastLogin(ctx context.Context, username string, at time.Time) error
	GetUser(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.UserProfile, error)
}

// MessageRepository is the message store.
type MessageRepository interface {
	// CreateMessage inserts msg, filling ID and SentAt. An unknown sender or
	// recipient is a validation error.
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.MessageDetail, error)
	// MarkRead sets read_at to at unless it is already set, and returns the
	// stored value either way.
	MarkRead(ctx context.Context, id string, at time.Time) (time.Time, error)
	MessagesFrom(ctx context.Context, username string) ([]model.SentMessage, error)
	MessagesTo(ctx context.Context, username string) ([]model.ReceivedMessage, error)
}
