// Package server owns the HTTP surface: router construction, middleware
// chain and lifecycle. Routing is thin; every decision lives in the verifier
// and service layers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tonbeats/tonbeats/internal/handler"
	"github.com/tonbeats/tonbeats/internal/server/middleware"
	"github.com/tonbeats/tonbeats/internal/service"
	"github.com/tonbeats/tonbeats/internal/storage"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RatePerMinute   int
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		RatePerMinute:   120,
	}
}

// Server is the top-level HTTP server. It owns the chi router and the
// wired handlers.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *storage.Store
	sessions   *service.SessionStore
	httpServer *http.Server
	logger     *slog.Logger
}

// Deps bundles everything the router needs.
type Deps struct {
	Store    *storage.Store
	Sessions *service.SessionStore
	Creds    *service.CredentialIssuer
	Auth     *handler.AuthHandler
	Listen   *handler.ListenHandler
}

// New builds the server and wires all routes and middleware. Call
// ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		logger:   logger,
	}
	s.setupRouter(deps)
	return s
}

func (s *Server) setupRouter(deps Deps) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimit(s.cfg.RatePerMinute))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/api/v1", func(r chi.Router) {
		// Trust establishment; no credential required yet.
		r.Post("/auth/challenge", deps.Auth.Challenge)
		r.Post("/auth/login", deps.Auth.Login)
		r.Post("/auth/apikey", deps.Auth.IssueAPIKey)
		r.Post("/auth/signdata", deps.Auth.VerifySignData)

		// Public read side of the counters.
		r.Get("/nft/{address}/listens", deps.Listen.NFTStats)
		r.Get("/listens/top", deps.Listen.Top)

		// Everything below requires a verified identity.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(deps.Creds, deps.Sessions))
			r.Use(middleware.RateLimitByKey(s.cfg.RatePerMinute))

			r.Get("/me", deps.Auth.Me)
			r.Post("/auth/logout", deps.Auth.Logout)
			r.Post("/listen", deps.Listen.Record)
		})
	})

	s.router = r
}

// Router exposes the router for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the server and blocks until SIGINT/SIGTERM, then
// shuts down gracefully within the configured timeout.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", s.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
