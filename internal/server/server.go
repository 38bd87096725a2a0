// Package server exposes the admin HTTP surface: request submission,
// scheduler state and controls, health, and version.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/observability"
	"github.com/quotaflow/quotaflow/internal/server/handlers"
	servermw "github.com/quotaflow/quotaflow/internal/server/middleware"
)

// Server is the admin HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	host      string
	port      int
	scheduler *handlers.SchedulerHandler
}

// New creates the server around a scheduler handler set.
func New(host string, port int, scheduler *handlers.SchedulerHandler) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestLogging)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.HandleError(w, req, apperrors.NewNotFoundError("the requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.HandleError(w, req, apperrors.NewMethodNotAllowedError("the requested method is not allowed for this resource"))
	})

	s := &Server{
		router:    r,
		host:      host,
		port:      port,
		scheduler: scheduler,
	}

	handlers.SetHTTPErrorResponder(apperrors.HandleError)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/version", handlers.VersionHandler)

	if s.scheduler != nil {
		s.router.Post("/requests", s.scheduler.Submit)
		s.router.Get("/state", s.scheduler.State)
		s.router.Get("/metrics", s.scheduler.Metrics)
		s.router.Post("/pause", s.scheduler.Pause)
		s.router.Post("/resume", s.scheduler.Resume)
		s.router.Post("/queue/clear", s.scheduler.ClearQueue)
		s.router.Post("/metrics/reset", s.scheduler.ResetMetrics)
	}
}

// Router returns the HTTP handler, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving and blocks until the listener fails or is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if logger := observability.ServerLogger; logger != nil {
		logger.Info("admin server listening",
			zap.String("host", s.host),
			zap.Int("port", s.port),
			zap.String("addr", addr))
	}

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
