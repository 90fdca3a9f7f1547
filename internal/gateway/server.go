// Package gateway exposes the orchestration service over HTTP: the
// orchestrate and session endpoints, provider and health probes, and
// the metrics exposition.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prismllm/prism/internal/config"
	"github.com/prismllm/prism/internal/observability"
	"github.com/prismllm/prism/internal/providers"
	"github.com/prismllm/prism/internal/sessions"
	"github.com/prismllm/prism/pkg/models"
)

// Executor runs one orchestration request. The agent orchestrator is
// the production implementation.
type Executor interface {
	Execute(ctx context.Context, req *models.OrchestrationRequest) (*models.OrchestrationResponse, error)
}

// ProviderLister reports adapter availability for the providers
// endpoint.
type ProviderLister interface {
	List(ctx context.Context) []providers.ProviderInfo
}

// Server is the HTTP front of the service.
type Server struct {
	cfg          *config.Config
	executor     Executor
	store        sessions.Store
	providerList ProviderLister
	metrics      *observability.Metrics
	logger       *observability.Logger
	version      string
	startTime    time.Time

	httpServer *http.Server
}

// NewServer wires the HTTP layer over the orchestration core.
func NewServer(cfg *config.Config, executor Executor, store sessions.Store, providerList ProviderLister, metrics *observability.Metrics, logger *observability.Logger, version string) *Server {
	return &Server{
		cfg:          cfg,
		executor:     executor,
		store:        store,
		providerList: providerList,
		metrics:      metrics,
		logger:       logger,
		version:      version,
		startTime:    time.Now(),
	}
}

// Handler builds the routed and middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/orchestrate", s.handleOrchestrate)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleSessionHistory)
	mux.HandleFunc("GET /api/sessions/{id}/metrics", s.handleSessionMetrics)
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)

	return s.withRequestID(s.withLogging(s.withCORS(mux)))
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info(context.Background(), "starting http server",
		"addr", addr, "environment", s.cfg.Environment)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
