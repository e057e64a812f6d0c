package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/messagely/internal/apperror"
	"github.com/sakif/messagely/internal/model"
	"github.com/sakif/messagely/internal/repository"
)

// compile-time check that *DB implements repository.MessageRepository
var _ repository.MessageRepository = (*DB)(nil)

// CreateMessage inserts a new message and fills in its ID and SentAt.
//
// WHY XID?
// xid IDs are 20 chars, URL-safe, and sort by creation time, which keeps
// ORDER BY sent_at, id stable when two messages share a timestamp.
//
// Both usernames are foreign keys into users. If either is unknown the
// insert fails the FOREIGN KEY constraint and the caller gets a validation
// error naming to_username (the sender comes from the token and exists).
func (db *DB) CreateMessage(ctx context.Context, msg *model.Message) error {
	msg.ID = xid.New().String()
	msg.SentAt = time.Now().UTC()
	msg.ReadAt = nil

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO messages (id, from_username, to_username, body, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID,
		msg.FromUsername,
		msg.ToUsername,
		msg.Body,
		msg.SentAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.ValidationFailed("to_username", "recipient does not exist")
		}
		return fmt.Errorf("sqlite: inserting message: %w", err)
	}

	return nil
}

// GetMessage retrieves a message joined with both participants' profiles.
// Returns apperror.ErrNotFound if no message exists with that ID.
func (db *DB) GetMessage(ctx context.Context, id string) (*model.MessageDetail, error) {
	var (
		m      model.MessageDetail
		readAt sql.NullTime
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT m.id, m.body, m.sent_at, m.read_at,
		        f.username, f.first_name, f.last_name, f.phone,
		        t.username, t.first_name, t.last_name, t.phone
		 FROM messages AS m
		 JOIN users AS f ON f.username = m.from_username
		 JOIN users AS t ON t.username = m.to_username
		 WHERE m.id = ?`,
		id,
	).Scan(
		&m.ID, &m.Body, &m.SentAt, &readAt,
		&m.FromUser.Username, &m.FromUser.FirstName, &m.FromUser.LastName, &m.FromUser.Phone,
		&m.ToUser.Username, &m.ToUser.FirstName, &m.ToUser.LastName, &m.ToUser.Phone,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("message", id)
		}
		return nil, fmt.Errorf("sqlite: getting message %s: %w", id, err)
	}

	m.ReadAt = nullTimePtr(readAt)
	return &m, nil
}

// MarkRead stamps read_at on a message the first time it is called.
//
// The UPDATE only matches rows whose read_at is still NULL, so a second call
// leaves the original timestamp alone. The SELECT afterwards returns whatever
// is stored, and doubles as the existence check.
func (db *DB) MarkRead(ctx context.Context, id string, at time.Time) (time.Time, error) {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE messages SET read_at = ? WHERE id = ? AND read_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: marking message %s read: %w", id, err)
	}

	var readAt sql.NullTime
	err = db.conn.QueryRowContext(ctx,
		`SELECT read_at FROM messages WHERE id = ?`, id,
	).Scan(&readAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, apperror.NotFound("message", id)
		}
		return time.Time{}, fmt.Errorf("sqlite: reading read_at for message %s: %w", id, err)
	}

	return readAt.Time, nil
}

// MessagesFrom returns every message sent by username, oldest first, each
// with the recipient's profile.
func (db *DB) MessagesFrom(ctx context.Context, username string) ([]model.SentMessage, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT m.id, m.body, m.sent_at, m.read_at,
		        t.username, t.first_name, t.last_name, t.phone
		 FROM messages AS m
		 JOIN users AS t ON t.username = m.to_username
		 WHERE m.from_username = ?
		 ORDER BY m.sent_at, m.id`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages from %s: %w", username, err)
	}
	defer rows.Close()

	messages := []model.SentMessage{}
	for rows.Next() {
		var (
			m      model.SentMessage
			readAt sql.NullTime
		)
		if err := rows.Scan(
			&m.ID, &m.Body, &m.SentAt, &readAt,
			&m.ToUser.Username, &m.ToUser.FirstName, &m.ToUser.LastName, &m.ToUser.Phone,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning sent message row: %w", err)
		}
		m.ReadAt = nullTimePtr(readAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating sent message rows: %w", err)
	}

	return messages, nil
}

// MessagesTo returns every message received by username, oldest first, each
// with the sender's profile.
func (db *DB) MessagesTo(ctx context.Context, username string) ([]model.ReceivedMessage, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT m.id, m.body, m.sent_at, m.read_at,
		        f.username, f.first_name, f.last_name, f.phone
		 FROM messages AS m
		 JOIN users AS f ON f.username = m.from_username
		 WHERE m.to_username = ?
		 ORDER BY m.sent_at, m.id`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages to %s: %w", username, err)
	}
	defer rows.Close()

	messages := []model.ReceivedMessage{}
	for rows.Next() {
		var (
			m      model.ReceivedMessage
			readAt sql.NullTime
		)
		if err := rows.Scan(
			&m.ID, &m.Body, &m.SentAt, &readAt,
			&m.FromUser.Username, &m.FromUser.FirstName, &m.FromUser.LastName, &m.FromUser.Phone,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning received message row: %w", err)
		}
		m.ReadAt = nullTimePtr(readAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating received message rows: %w", err)
	}

	return messages, nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
