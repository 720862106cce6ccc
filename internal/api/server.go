package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/RNCC-Cubesat/kubos/internal/auth"
)

// Default HTTP server timeouts.
const (
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 60 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
)

// Options configure a Server. Zero timeouts use the defaults.
type Options struct {
	// Auth enables bearer-token authentication and scope checks when set.
	Auth *auth.Middleware

	// Status reports the bus adapter on /health. Optional.
	Status StatusPort

	// Events serves the /events stream. Optional.
	Events EventsPort

	// Addr is the listen address used by Start.
	Addr string

	Logger  *slog.Logger
	Version string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server represents the HTTP API server.
type Server struct {
	httpServer     *http.Server
	orchestrator   OrchestratorPort
	status         StatusPort
	events         EventsPort
	authMiddleware *auth.Middleware
	schema         graphql.Schema
	logger         *slog.Logger
	version        string
	startTime      time.Time
}

// NewServer creates a new API server.
func NewServer(orchestrator OrchestratorPort, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		orchestrator:   orchestrator,
		status:         opts.Status,
		events:         opts.Events,
		authMiddleware: opts.Auth,
		logger:         logger,
		version:        opts.Version,
		startTime:      time.Now(),
	}

	schema, err := s.buildSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	s.schema = schema

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  orDefault(opts.ReadTimeout, DefaultReadTimeout),
		WriteTimeout: orDefault(opts.WriteTimeout, DefaultWriteTimeout),
		IdleTimeout:  orDefault(opts.IdleTimeout, DefaultIdleTimeout),
	}

	return s, nil
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Start serves on Options.Addr and blocks until Stop.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr, "auth", s.authMiddleware != nil)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
