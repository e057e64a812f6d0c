// Package config loads the server's settings from the environment.
//
// A .env file in the working directory is read first (godotenv), then real
// environment variables. godotenv.Load never overrides a variable that is
// already set, so the process environment always wins over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/messagely/internal/auth"
)

// minSecretLength matches what auth.NewTokenService accepts.
const minSecretLength = 16

// Config holds everything main needs to build the server.
type Config struct {
	// Port is the HTTP listen port.
	Port int
	// DBPath is the SQLite file, or ":memory:".
	DBPath string
	// JWTSecret signs and verifies tokens. Required.
	JWTSecret string
	// TokenTTL is how long an issued token stays valid.
	TokenTTL time.Duration
	// PasswordHasher is "bcrypt" or "argon2id".
	PasswordHasher string
	// BcryptCost is the bcrypt work factor.
	BcryptCost int
	// LogLevel filters the slog output.
	LogLevel slog.Level
}

// Default returns the settings used when a variable is unset. JWTSecret has
// no default.
func Default() Config {
	return Config{
		Port:           8080,
		DBPath:         "data/messagely.db",
		TokenTTL:       auth.DefaultTokenTTL,
		PasswordHasher: auth.HasherBcrypt,
		BcryptCost:     auth.DefaultCost,
		LogLevel:       slog.LevelInfo,
	}
}

// Load reads .env (if present) and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup, which has the signature of
// os.LookupEnv. Tests pass a map-backed function instead.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs []error

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("PORT must be a number between 1 and 65535, got %q", v))
		} else {
			cfg.Port = port
		}
	}

	if v, ok := get("DB_PATH"); ok {
		cfg.DBPath = v
	}

	if v, ok := get("JWT_SECRET"); !ok {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(v) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength))
	} else {
		cfg.JWTSecret = v
	}

	if v, ok := get("TOKEN_TTL"); ok {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			errs = append(errs, fmt.Errorf("TOKEN_TTL must be a positive duration like 24h, got %q", v))
		} else {
			cfg.TokenTTL = ttl
		}
	}

	if v, ok := get("PASSWORD_HASHER"); ok {
		switch v = strings.ToLower(v); v {
		case auth.HasherBcrypt, auth.HasherArgon2id:
			cfg.PasswordHasher = v
		default:
			errs = append(errs, fmt.Errorf("PASSWORD_HASHER must be %q or %q, got %q",
				auth.HasherBcrypt, auth.HasherArgon2id, v))
		}
	}

	if v, ok := get("BCRYPT_WORK_FACTOR"); ok {
		cost, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BCRYPT_WORK_FACTOR must be a number, got %q", v))
		} else {
			cfg.BcryptCost = cost
		}
	}

	if v, ok := get("LOG_LEVEL"); ok {
		// slog.Level understands DEBUG, INFO, WARN, ERROR in any case.
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", v))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
