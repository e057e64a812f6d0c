// Package service holds the business rules between handlers and storage.
//
// AuthService is the business logic layer for registration and login. It sits
// between the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordHasher (bcrypt/argon2id)
//
// KEY RESPONSIBILITIES:
//   - Validate registration fields before anything is hashed or stored
//   - Hash passwords on the way in, verify them on login
//   - Stamp last_login_at and issue a token on every successful login
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sakif/messagely/internal/apperror"
	"github.com/sakif/messagely/internal/auth"
	"github.com/sakif/messagely/internal/model"
	"github.com/sakif/messagely/internal/repository"
)

// MaxUsernameLength bounds usernames; they show up in URLs and tokens.
const MaxUsernameLength = 50

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// errBadCredentials is the one answer for both an unknown username and a
// wrong password, so login doesn't reveal which usernames exist.
var errBadCredentials = apperror.Unauthorized("Invalid username or password")

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → generate/validate JWTs
//   - passwords  auth.PasswordHasher        → adaptive password hashing
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords auth.PasswordHasher
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuthService creates an AuthService with all required dependencies.
// Call this in server.go (or main.go) when wiring the dependency graph.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords auth.PasswordHasher,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		now:       time.Now,
	}
}

// Register validates nu, stores the user with a hashed password and returns
// a token for them, so a fresh account is logged in straight away.
//
// Fails with apperror.ErrValidation for a missing or malformed field and
// apperror.ErrConflict if the username is taken.
func (s *AuthService) Register(ctx context.Context, nu model.NewUser) (string, error) {
	user, err := validateNewUser(nu)
	if err != nil {
		return "", err
	}

	hash, err := s.passwords.Hash(nu.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
		}
		return "", fmt.Errorf("service/auth: hashing password: %w", err)
	}
	user.Password = hash

	if err := s.users.CreateUser(ctx, user); err != nil {
		return "", fmt.Errorf("service/auth: registering %s: %w", user.Username, err)
	}

	if err := s.UpdateLoginTimestamp(ctx, user.Username); err != nil {
		return "", err
	}

	s.logger.Info("user registered", slog.String("username", user.Username))

	return s.issueToken(user.Username)
}

// Login checks the credentials, records the login and returns a new token.
//
// Unknown usernames and wrong passwords both come back as the same
// apperror.ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" {
		return "", apperror.ValidationFailed("username", "username is required")
	}
	if password == "" {
		return "", apperror.ValidationFailed("password", "password is required")
	}

	ok, err := s.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", errBadCredentials
		}
		return "", err
	}
	if !ok {
		s.logger.Debug("login rejected", slog.String("username", username))
		return "", errBadCredentials
	}

	if err := s.UpdateLoginTimestamp(ctx, username); err != nil {
		return "", err
	}

	return s.issueToken(username)
}

// Authenticate reports whether password matches the stored hash for
// username. An unknown username is apperror.ErrNotFound, not false.
//
// The comparison is the hasher's own, which runs in constant time.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (bool, error) {
	hash, err := s.users.PasswordHash(ctx, username)
	if err != nil {
		return false, fmt.Errorf("service/auth: authenticating %s: %w", username, err)
	}

	ok, err := s.passwords.Compare(hash, password)
	if err != nil {
		return false, fmt.Errorf("service/auth: authenticating %s: %w", username, err)
	}
	return ok, nil
}

// UpdateLoginTimestamp sets last_login_at to now.
func (s *AuthService) UpdateLoginTimestamp(ctx context.Context, username string) error {
	if err := s.users.TouchLastLogin(ctx, username, s.now()); err != nil {
		return fmt.Errorf("service/auth: updating login timestamp for %s: %w", username, err)
	}
	return nil
}

// ValidateToken validates a JWT string and returns the username it encodes.
//
// This is a thin delegation to TokenService.Validate. Having it on
// AuthService means callers only need to import the service package, not
// the auth package directly.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	username, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return username, nil
}

func (s *AuthService) issueToken(username string) (string, error) {
	token, err := s.tokens.Generate(username)
	if err != nil {
		return "", fmt.Errorf("service/auth: generating token for %s: %w", username, err)
	}
	return token, nil
}

// validateNewUser checks every registration field and returns the user to
// store, with profile fields trimmed. The password is left for the caller to hash.
//
// Usernames and passwords are not trimmed: " alice" is rejected by the
// pattern, and leading spaces in a password are part of the password.
func validateNewUser(nu model.NewUser) (*model.User, error) {
	if nu.Username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if len(nu.Username) > MaxUsernameLength {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	if !usernamePattern.MatchString(nu.Username) {
		return nil, apperror.ValidationFailed("username",
			"username may only contain letters, digits, '.', '_' and '-'")
	}
	if strings.TrimSpace(nu.Password) == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	user := &model.User{
		Username:  nu.Username,
		FirstName: strings.TrimSpace(nu.FirstName),
		LastName:  strings.TrimSpace(nu.LastName),
		Phone:     strings.TrimSpace(nu.Phone),
	}

	required := []struct{ field, value string }{
		{"first_name", user.FirstName},
		{"last_name", user.LastName},
		{"phone", user.Phone},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, apperror.ValidationFailed(r.field, r.field+" is required")
		}
	}

	return user, nil
}
