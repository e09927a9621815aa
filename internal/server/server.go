// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

// Package server exposes the session loop over a small JSON HTTP API:
// run a session, inspect or resume stored ones.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/turnwise-dev/turnwise/internal/provider"
	"github.com/turnwise-dev/turnwise/internal/store"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

// Defaults are the session parameters applied when a request omits them.
type Defaults struct {
	SystemPrompt string
	MaxTurns     int
	TokenLimit   int
	CallTimeout  time.Duration
}

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Defaults     Defaults
}

// Server runs sessions against a single backend and persists their results.
type Server struct {
	router  chi.Router
	cfg     Config
	backend provider.Generator
	store   store.SessionStore
	log     *slog.Logger
}

// New wires the router. The backend and store are required; sessions started
// over HTTP carry no caller tools beyond the built-in completion tool.
func New(cfg Config, backend provider.Generator, st store.SessionStore, log *slog.Logger) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, twerr.New(twerr.CodeServerStartFailure, "server: listen address is required")
	}
	if backend == nil {
		return nil, twerr.New(twerr.CodeServerStartFailure, "server: backend is required")
	}
	if st == nil {
		return nil, twerr.New(twerr.CodeServerStartFailure, "server: store is required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Session runs are synchronous; the write timeout bounds them.
		cfg.WriteTimeout = 10 * time.Minute
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		cfg:     cfg,
		backend: backend,
		store:   st,
		log:     log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.Get("/health", s.handleHealth)
	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleRunSession)
		r.Get("/", s.handleListSessions)
		r.Get("/{id}", s.handleGetSession)
		r.Delete("/{id}", s.handleDeleteSession)
		r.Post("/{id}/resume", s.handleResumeSession)
	})

	s.router = r
	return s, nil
}

// Handler returns the underlying http.Handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return twerr.Wrapf(err, twerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info("http server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return twerr.Wrap(err, twerr.CodeServerStartFailure, "serving http")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return twerr.Wrap(err, twerr.CodeServerStartFailure, "shutting down")
	}
	return <-errCh
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
