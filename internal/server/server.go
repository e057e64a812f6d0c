// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and routes.
// It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes (logged in vs. correct user)
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and builds the logger, then:
//
//	Server.New() creates: sqlite.DB → services → handlers
//
// This is the "composition root" pattern: all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/messagely/internal/auth"
	"github.com/sakif/messagely/internal/config"
	"github.com/sakif/messagely/internal/handler"
	"github.com/sakif/messagely/internal/middleware"
	sqliteRepo "github.com/sakif/messagely/internal/repository/sqlite"
	"github.com/sakif/messagely/internal/service"
)

// shutdownTimeout is how long in-flight requests get to finish.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection (db). When the server shuts down,
// we must close it to flush the WAL and release the file lock.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database and wires every layer together.
//
// Each layer only receives what it needs:
// - Services get the repository interfaces (not the concrete sqlite.DB)
// - Handlers get the services through small interfaces
//
// IMPORT ALIAS:
// We import repository/sqlite as `sqliteRepo` to avoid confusion with
// the sqlite driver package.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	passwords, err := auth.NewPasswordHasher(cfg.PasswordHasher, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("creating password hasher: %w", err)
	}

	return NewWithDeps(cfg, logger, tokens, passwords)
}

// NewWithDeps is New with the token service and password hasher supplied by
// the caller. Tests use it to get a cheap hasher.
func NewWithDeps(cfg config.Config, logger *slog.Logger, tokens *auth.TokenService, passwords auth.PasswordHasher) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	s.setupRoutes(tokens, passwords)

	return s, nil
}

// Handler returns the fully wired router. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /login                 → token for valid credentials
// POST   /register              → create account, token
// GET    /healthz               → store ping
// GET    /users                 → logged in
// GET    /users/{username}      → correct user
// GET    /users/{username}/to   → correct user
// GET    /users/{username}/from → correct user
// POST   /messages              → logged in (sender = token user)
// GET    /messages/{id}         → logged in, sender or recipient
// POST   /messages/{id}/read    → logged in, recipient
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (the logger reads it)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Logger: logs each request with timing info
// 4. Recoverer: catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes(tokens *auth.TokenService, passwords auth.PasswordHasher) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	authService := service.NewAuthService(s.db, tokens, passwords, s.logger)
	userService := service.NewUserService(s.db, s.db, s.logger)
	messageService := service.NewMessageService(s.db, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	messageHandler := handler.NewMessageHandler(messageService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.router.Post("/login", authHandler.HandleLogin)
	s.router.Post("/register", authHandler.HandleRegister)
	s.router.Get("/healthz", healthHandler.HandleHealth)

	s.router.Route("/users", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/", userHandler.HandleList)

		r.Route("/{username}", func(r chi.Router) {
			r.Use(auth.RequireCorrectUser("username"))
			r.Get("/", userHandler.HandleGet)
			r.Get("/to", userHandler.HandleMessagesTo)
			r.Get("/from", userHandler.HandleMessagesFrom)
		})
	})

	s.router.Route("/messages", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Post("/", messageHandler.HandleCreate)
		r.Get("/{id}", messageHandler.HandleGet)
		r.Post("/{id}/read", messageHandler.HandleMarkRead)
	})
}

// Start serves HTTP until ctx is cancelled (main cancels it on SIGINT/SIGTERM),
// then shuts down gracefully:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database connection
func (s *Server) Start(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("password_hasher", s.config.PasswordHasher),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
