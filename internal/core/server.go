// Package core provides the API chassis: a chi router usable both behind
// the Lambda proxy adapter and as a plain http.Handler for local runs, with
// the cross-cutting middleware (panic recovery, request IDs, logging,
// service authentication) applied before requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"deedhive/internal/config"
)

// V1RouteRegistrar mounts one domain handler's routes under /v1. The entry
// point populates these, keeping core free of handler imports.
type V1RouteRegistrar func(r chi.Router)

// Server bundles the router with the dependencies every handler needs.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	V1RouteRegistrars []V1RouteRegistrar

	router *chi.Mux
}

// NewServer creates the server chassis. Routes are mounted separately via
// MountRoutes so tests can register their own.
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
		router:    chi.NewRouter(),
	}, nil
}

// MountRoutes registers the global middleware chain, the /v1 group, and the
// health endpoint. Middleware order matters: the recoverer is outermost so
// it catches everything, and authentication runs only inside /v1 so health
// stays open for load balancer probes.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.ServiceAuthMiddleware)
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// Handler returns the router as an http.Handler, for http.ListenAndServe
// locally and the chi Lambda adapter in production.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for tests that mount routes
// directly.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// HandleHealth reports liveness. Unauthenticated.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{
		"status":      "ok",
		"environment": s.Config.Environment,
	}})
}

// Shutdown releases server-held resources. The database pool is owned by
// the entry point, so there is little to do beyond logging, but the hook
// keeps local graceful shutdown uniform with the workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
