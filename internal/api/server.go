package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/workflow"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, svc *workflow.Service, repo domain.Repository, cache domain.Cache, engine *fraud.Engine, version string) *Server {
	handler := NewHandler(svc, repo, cache, engine, version)
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

	// Claim lifecycle
	router.Route("/claims", func(r chi.Router) {
		r.Post("/", handler.CreateClaim)
		r.Get("/", handler.ListClaims)
		r.Get("/{id}", handler.GetClaim)
		r.Post("/{id}/documents", handler.AttachDocument)
		r.Post("/{id}/submit", handler.SubmitClaim)
		r.Post("/{id}/transition", handler.TransitionClaim)
		r.Post("/{id}/fraud-flag", handler.FlagClaimFraud)
		r.Post("/{id}/evaluate", handler.EvaluateClaim)
		r.Get("/{id}/flags", handler.ListClaimFlags)
	})

	// Premium quoting and recommendations
	router.Post("/quotes", handler.QuotePremium)
	router.Post("/recommendations", handler.RankRecommendations)

	// Policy catalog
	router.Route("/policies", func(r chi.Router) {
		r.Get("/", handler.ListPolicies)
		r.Post("/", handler.CreatePolicy)
		r.Get("/{id}", handler.GetPolicy)
	})

	// Fraud rule management
	router.Route("/fraud-rules", func(r chi.Router) {
		r.Get("/", handler.ListFraudRules)
		r.Get("/{code}", handler.GetFraudRule)
		r.Post("/", handler.CreateFraudRule)
		r.Post("/reload", handler.ReloadFraudRules)
	})

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
