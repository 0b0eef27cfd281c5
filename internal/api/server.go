// Package api provides the HTTP surface of the alert engine.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fraudops/kestrel/internal/alerting"
	"github.com/fraudops/kestrel/internal/domain"
	"github.com/fraudops/kestrel/internal/metrics"
	"github.com/fraudops/kestrel/internal/priority"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, store domain.Store, cache domain.Cache, bus domain.EventBus, driver *alerting.Driver, scheduler *priority.Scheduler, collector *metrics.Collector, version string) *Server {
	handler := NewHandler(store, cache, bus, driver, scheduler, collector, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if collector != nil {
		router.Handle("/metrics", collector.Handler())
	}

	// Transaction ingestion and retrieval
	router.Post("/transactions", handler.IngestTransaction)
	router.Get("/transactions/{id}", handler.GetTransaction)

	// Batch evaluation
	router.Post("/process", handler.ProcessPending)

	// Alert triage
	router.Get("/alerts", handler.AlertQueue)
	router.Post("/alerts/bulk", handler.BulkUpdateStatus)
	router.Get("/alerts/{id}", handler.GetAlert)
	router.Patch("/alerts/{id}/status", handler.UpdateAlertStatus)
	router.Post("/alerts/{id}/assign", handler.AssignAlert)
	router.Get("/alerts/{id}/audit", handler.GetAuditTrail)

	// Customer insight
	router.Get("/customers/{id}/profile", handler.GetCustomerProfile)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
