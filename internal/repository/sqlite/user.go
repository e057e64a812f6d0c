package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/messagely/internal/apperror"
	"github.com/sakif/messagely/internal/model"
	"github.com/sakif/messagely/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new user. The caller hashes the password first; this
// layer never sees plaintext.
//
// join_at and last_login_at both start as "now" and are written back onto
// the passed struct (pointer receiver), so the caller sees what was stored.
//
// The username is the primary key. A second registration under the same
// name fails the PRIMARY KEY constraint, which is reported as apperror.Conflict
// instead of a raw driver error.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.JoinAt = now
	user.LastLoginAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, password, first_name, last_name, phone, join_at, last_login_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Username,
		user.Password,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.JoinAt,
		user.LastLoginAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}

	return nil
}

// PasswordHash returns the stored password hash for username.
// Returns apperror.ErrNotFound if no such user exists.
func (db *DB) PasswordHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := db.conn.QueryRowContext(ctx,
		`SELECT password FROM users WHERE username = ?`, username,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("user", username)
		}
		return "", fmt.Errorf("sqlite: reading password for %s: %w", username, err)
	}
	return hash, nil
}

// TouchLastLogin records a successful login.
//
// RowsAffected tells us whether the WHERE clause matched anything. Zero rows
// means the username doesn't exist.
func (db *DB) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE username = ?`,
		at.UTC(), username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating last login for %s: %w", username, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", username)
	}
	return nil
}

// GetUser retrieves the full public record for username. The password hash
// is left empty.
func (db *DB) GetUser(ctx context.Context, username string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT username, first_name, last_name, phone, join_at, last_login_at
		 FROM users WHERE username = ?`,
		username,
	).Scan(
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.Phone,
		&u.JoinAt,
		&u.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", username, err)
	}

	return &u, nil
}

// ListUsers returns every user's basic profile, ordered by username.
//
// An empty table yields an empty (non-nil) slice, which encodes as [] in JSON.
func (db *DB) ListUsers(ctx context.Context) ([]model.UserProfile, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT username, first_name, last_name, phone
		 FROM users ORDER BY username`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	// ALWAYS close rows. Leaking them holds the connection.
	defer rows.Close()

	users := []model.UserProfile{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.Username, &u.FirstName, &u.LastName, &u.Phone); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, u.Profile())
	}
	// rows.Err() reports errors that ended the iteration early.
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}

	return users, nil
}
