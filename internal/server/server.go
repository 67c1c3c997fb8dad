// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it:
// - Testable (we can create a test server without running main)
// - Reusable (multiple entry points could use the same server config)
// - Clean (main.go stays minimal — just "start the server")
//
// DEPENDENCY INJECTION FLOW:
// main.go reads config and passes it here. New() then assembles:
//
//	sqlite.DB → TokenService → AuthService     → AuthHandler
//	         └→ feed.Hub    → BookmarkService  → BookmarkHandler
//	                        └→ EventsHandler
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/bookmarkbox/internal/auth"
	"github.com/sakif/bookmarkbox/internal/feed"
	"github.com/sakif/bookmarkbox/internal/handler"
	"github.com/sakif/bookmarkbox/internal/middleware"
	sqliteRepo "github.com/sakif/bookmarkbox/internal/repository/sqlite"
	"github.com/sakif/bookmarkbox/internal/service"
)

// Config holds server configuration.
// Using a struct for config (instead of individual parameters) makes it easy to:
// - Add new config options without changing function signatures
// - Pass config around as a single value
// - Load config from files/env vars in one place
type Config struct {
	Port      int
	StaticDir string
	DBPath    string // path to the SQLite database file

	// Auth configuration. JWTSecret signs session tokens; the GitHub
	// values come from the OAuth app registration.
	JWTSecret          string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns a database connection (db) and the change feed hub.
// When the server shuts down we must close the connection to flush any
// pending writes and release the file lock. Open event streams end when
// their request contexts are cancelled by Shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	hub    *feed.Hub
}

// New creates a new Server with the given config.
//
// IMPORT ALIAS:
// We import repository/sqlite as `sqliteRepo` to avoid confusion with
// the sqlite driver package. Import aliases are common in Go when
// package names would otherwise collide or be unclear.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	// === CREATE DATABASE ===
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		hub:    feed.NewHub(logger),
	}

	// Set up middleware and routes
	if err := s.setupRoutes(); err != nil {
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /                           → app page (static)
//	GET    /login                      → sign-in page (static)
//	GET    /static/*                   → static files (CSS, JS, images)
//	GET    /auth/github/login          → start the OAuth flow
//	GET    /auth/github/callback       → complete the OAuth flow
//	POST   /auth/logout                → clear the session cookie
//	GET    /api/me                     → current user profile       [auth]
//	GET    /api/bookmarks              → list bookmarks (JSON)      [auth]
//	POST   /api/bookmarks              → create bookmark            [auth]
//	PUT    /api/bookmarks/{id}         → update bookmark            [auth]
//	PUT    /api/bookmarks/{id}/favorite→ set/clear favorite flag    [auth]
//	DELETE /api/bookmarks/{id}         → delete bookmark            [auth]
//	GET    /api/events                 → SSE change feed            [auth]
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Recoverer — catches panics and returns 500 instead of crashing
// 4. Logger — logs each request with timing info
func (s *Server) setupRoutes() error {
	// === Global Middleware ===
	// These run on EVERY request, in order

	s.router.Use(chimiddleware.RequestID) // Adds X-Request-ID header
	s.router.Use(chimiddleware.RealIP)    // Extracts real IP from X-Forwarded-For
	s.router.Use(chimiddleware.Recoverer) // Recovers from panics, returns 500

	// Our custom logging middleware
	s.router.Use(middleware.Logger(s.logger))

	// === Auth Plumbing ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	github := auth.NewGitHubProvider(
		s.config.GitHubClientID,
		s.config.GitHubClientSecret,
		s.config.GitHubCallbackURL,
	)

	// === Services ===
	// DEPENDENCY CHAIN:
	//   s.db (sqlite.DB) → implements repository.BookmarkRepository
	//                      and repository.UserRepository
	//   Services receive the repository interfaces
	//   Handlers receive the services
	//
	// Notice: handlers never touch the database directly.
	// Services never touch HTTP. Clean separation!
	authService := service.NewAuthService(s.db, tokens, s.logger)
	bookmarkService := service.NewBookmarkService(s.db, s.hub, s.logger)

	authHandler := handler.NewAuthHandler(github, authService, s.logger)
	bookmarkHandler := handler.NewBookmarkHandler(bookmarkService, s.logger)
	eventsHandler := handler.NewEventsHandler(s.hub, s.logger)

	// === Static Files ===
	// http.FileServer serves files from the filesystem.
	// http.StripPrefix removes "/static/" from the URL path before looking up the file.
	// So GET /static/css/style.css → serves {StaticDir}/css/style.css
	fileServer := http.FileServer(http.Dir(s.config.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	// The app and the sign-in page are the same single-page bundle; the
	// page itself decides what to render based on the path and session.
	index := filepath.Join(s.config.StaticDir, "index.html")
	serveIndex := func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, index)
	}
	s.router.Get("/", serveIndex)
	s.router.Get("/login", serveIndex)

	// === OAuth Routes (no auth required — this is how you GET a session) ===
	s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
	s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	s.router.Post("/auth/logout", authHandler.HandleLogout)

	// === Protected API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/me", authHandler.HandleMe)

		r.Get("/bookmarks", bookmarkHandler.HandleList)
		r.Post("/bookmarks", bookmarkHandler.HandleCreate)
		r.Put("/bookmarks/{id}", bookmarkHandler.HandleUpdate)
		r.Put("/bookmarks/{id}/favorite", bookmarkHandler.HandleFavorite)
		r.Delete("/bookmarks/{id}", bookmarkHandler.HandleDelete)

		r.Get("/events", eventsHandler.HandleStream)
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
//
// THE SSE WRINKLE:
// Shutdown() waits for active requests but does NOT cancel them — and an
// open event stream never finishes on its own, so a plain Shutdown would
// hang until the timeout. The fix: hand every request a cancellable
// BaseContext and register the cancel with RegisterOnShutdown. When
// Shutdown starts, every stream's r.Context() is cancelled, the stream
// loops return, and the wait completes immediately.
//
// If we skip step 3, the database file might be left in an inconsistent state.
// The `defer s.db.Close()` ensures this happens even if something panics.
func (s *Server) Start() error {
	// Ensure the database is closed when the server stops.
	// This runs AFTER everything else in this function finishes.
	defer s.db.Close()

	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	// NO WriteTimeout:
	// The /api/events stream is a deliberately long-lived response. A
	// WriteTimeout would kill every stream after that interval, and Go's
	// http.Server applies it per-connection, not per-write. ReadTimeout
	// and IdleTimeout still protect against slow/stuck clients.
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelStreams)

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	// Start the server in a goroutine (so it doesn't block)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		// Server failed to start
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		// Received shutdown signal
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
