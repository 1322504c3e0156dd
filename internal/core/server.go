// Package core provides the API chassis for FareWatch. It builds a chi
// router, applies the cross-cutting middleware (panic recovery, request ids,
// logging, security headers, CORS, latency metrics) and leaves domain routes
// to registrars supplied by the entry point.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"farewatch/internal/config"
	"farewatch/internal/metrics"
)

// RouteRegistrar mounts a group of handlers under /v1.
type RouteRegistrar func(r chi.Router)

// Server holds the router and its shared dependencies.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	Metrics      metrics.Recorder
	HealthProbes []HealthProbe

	// V1RouteRegistrars are invoked by MountRoutes inside the /v1 group.
	// Handler packages register here so core does not import them.
	V1RouteRegistrars []RouteRegistrar

	// OnShutdown hooks run in order during Shutdown (e.g. closing the pool).
	OnShutdown []func()

	router *chi.Mux
}

// NewServer initializes the router. Routes are not mounted until
// MountRoutes is called, so callers can add registrars and probes first.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		Metrics:   metrics.Noop{},
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs the registered shutdown hooks.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	for _, fn := range s.OnShutdown {
		fn()
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
