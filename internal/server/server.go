// Package server exposes the job queue and playbook library over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"offbook/internal/library"
	"offbook/internal/queue"
)

// Server is the offbook HTTP API server.
type Server struct {
	httpServer *http.Server
	store      *queue.Store
	library    *library.Library
	logger     *slog.Logger

	defaultChunkSize int
	defaultProvider  string
}

// Config holds server configuration.
type Config struct {
	// Listen is the address to bind to (default: 127.0.0.1:8470)
	Listen string
	// Store is the job queue.
	Store *queue.Store
	// Library is the playbook store.
	Library *library.Library
	// DefaultChunkSize is applied to jobs enqueued without one.
	DefaultChunkSize int
	// DefaultProvider is applied to jobs enqueued without one.
	DefaultProvider string
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) *Server {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:8470"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		store:            cfg.Store,
		library:          cfg.Library,
		logger:           cfg.Logger,
		defaultChunkSize: cfg.DefaultChunkSize,
		defaultProvider:  cfg.DefaultProvider,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the route handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
