package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sakif/messagely/internal/apperror"
	"github.com/sakif/messagely/internal/model"
	"github.com/sakif/messagely/internal/repository"
)

// MaxBodyLength caps a message body, counted in characters after sanitising.
const MaxBodyLength = 5000

// MessageService enforces the message rules:
//
//   - only a participant (sender or recipient) may read a message
//   - only the recipient may mark it read, and only the first mark sticks
//   - bodies are stripped of HTML before they are stored
type MessageService struct {
	repo     repository.MessageRepository
	sanitize *bluemonday.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewMessageService creates a MessageService.
//
// bluemonday's StrictPolicy removes every HTML element and keeps only the
// text, so a body rendered by some client later can't carry markup.
func NewMessageService(repo repository.MessageRepository, logger *slog.Logger) *MessageService {
	return &MessageService{
		repo:     repo,
		sanitize: bluemonday.StrictPolicy(),
		logger:   logger,
		now:      time.Now,
	}
}

// Create sends body from one user to another and returns the stored message.
//
// from is the authenticated identity; the handler never takes it from the
// request body.
func (s *MessageService) Create(ctx context.Context, from, to, body string) (*model.Message, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, apperror.ValidationFailed("to_username", "to_username is required")
	}

	body = strings.TrimSpace(s.plainText(body))
	if body == "" {
		return nil, apperror.ValidationFailed("body", "message body is required")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return nil, apperror.ValidationFailed("body",
			fmt.Sprintf("message body must be %d characters or less", MaxBodyLength))
	}

	msg := &model.Message{
		FromUsername: from,
		ToUsername:   to,
		Body:         body,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		logStoreFailure(s.logger, "creating message", err)
		return nil, fmt.Errorf("service/message: creating message: %w", err)
	}

	s.logger.Info("message sent",
		slog.String("id", msg.ID),
		slog.String("from", msg.FromUsername),
		slog.String("to", msg.ToUsername),
	)

	return msg, nil
}

// plainText strips markup from body and returns the remaining text as the
// user typed it. Sanitize escapes &, <, > and quotes in the text it keeps,
// so the result is unescaped again; bodies are served as JSON strings, not HTML.
func (s *MessageService) plainText(body string) string {
	return html.UnescapeString(s.sanitize.Sanitize(body))
}

// Get returns a message with both participants' profiles. Anyone other than
// the sender or recipient gets apperror.ErrForbidden.
func (s *MessageService) Get(ctx context.Context, requester, id string) (*model.MessageDetail, error) {
	msg, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/message: getting %s: %w", id, err)
	}

	if requester != msg.FromUser.Username && requester != msg.ToUser.Username {
		return nil, apperror.Forbidden("cannot read this message")
	}

	return msg, nil
}

// MarkRead records that the recipient has read message id and returns when.
//
// Only the recipient may do this. A second call succeeds and reports the
// time of the first one.
func (s *MessageService) MarkRead(ctx context.Context, requester, id string) (*model.ReadReceipt, error) {
	msg, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/message: marking %s read: %w", id, err)
	}

	if requester != msg.ToUser.Username {
		return nil, apperror.Forbidden("only the recipient can mark a message read")
	}

	readAt, err := s.repo.MarkRead(ctx, id, s.now().UTC())
	if err != nil {
		logStoreFailure(s.logger, "marking message read", err)
		return nil, fmt.Errorf("service/message: marking %s read: %w", id, err)
	}

	if msg.ReadAt == nil {
		s.logger.Info("message read", slog.String("id", id), slog.String("by", requester))
	}

	return &model.ReadReceipt{ID: id, ReadAt: readAt}, nil
}
