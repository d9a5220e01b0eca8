package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, svc *audit.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, viewTTL time.Duration, version string) *Server {
	handler := NewHandler(svc, repo, cache, bus, viewTTL, cfg.MaxUploadBytes, version)
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
	router.Get("/version", handler.Version)

	// Ingestion
	router.Route("/ingest", func(r chi.Router) {
		r.Post("/", handler.Ingest)
		r.Post("/results", handler.IngestResults)
		r.Post("/async", handler.IngestAsync)
		r.Get("/batches/{id}", handler.GetBatch)
	})

	// Cases and adjudication
	router.Route("/cases", func(r chi.Router) {
		r.Get("/", handler.ListCases)
		r.Get("/{id}", handler.GetCase)
		r.Get("/{id}/clusters", handler.CaseClusters)
		r.Post("/{id}/adjudicate", handler.Adjudicate)
	})

	// Intervention history
	router.Route("/interventions", func(r chi.Router) {
		r.Get("/", handler.ListInterventions)
		r.Get("/summary", handler.InterventionSummary)
		r.Delete("/", handler.ResetInterventions)
	})

	// Derived views
	router.Route("/stats", func(r chi.Router) {
		r.Get("/headline", handler.Headline)
		r.Get("/phases", handler.Phases)
		r.Get("/programs", handler.Programs)
		r.Get("/status", handler.StatusBreakdown)
	})
	router.Get("/network/clusters", handler.Clusters)
	router.Get("/dashboard", handler.Dashboard)

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
