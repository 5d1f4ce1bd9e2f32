// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/newthinker/equicurve/internal/api/handler/api"
	"github.com/newthinker/equicurve/internal/api/job"
	"github.com/newthinker/equicurve/internal/api/middleware"
	"github.com/newthinker/equicurve/internal/commentary"
	"github.com/newthinker/equicurve/internal/ingest"
	"github.com/newthinker/equicurve/internal/metrics"
	"github.com/newthinker/equicurve/internal/notifier"
	"github.com/newthinker/equicurve/internal/plans"
	"github.com/newthinker/equicurve/internal/portfolio"
	"github.com/newthinker/equicurve/internal/storage/repo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	router     chi.Router
	jobs       *job.Store
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	APIKey         string
	CORSOrigins    []string
	MaxUploadBytes int64
	RequestTimeout time.Duration

	MetricsEnabled bool
	MetricsPath    string

	StatsRiskFreeRate float64
	StatsJobTimeout   time.Duration
	RunTimeout        time.Duration

	BacktestsPerMinute int
	FeedbackPerHour    int
}

// Dependencies holds the services the routes are served from.
type Dependencies struct {
	Repo       repo.Repository
	Ingestor   *ingest.Ingestor
	Portfolio  *portfolio.Service
	Limiter    *plans.Limiter
	Commentary *commentary.Writer
	Notifiers  *notifier.Registry
	Metrics    *metrics.Registry
	Jobs       *job.Store
}

func (c *Config) applyDefaults() {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 50 << 20
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 2 * time.Minute
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.StatsJobTimeout <= 0 {
		c.StatsJobTimeout = 10 * time.Minute
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 2 * time.Minute
	}
	if c.BacktestsPerMinute <= 0 {
		c.BacktestsPerMinute = 15
	}
	if c.FeedbackPerHour <= 0 {
		c.FeedbackPerHour = 30
	}
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Repo == nil || deps.Ingestor == nil || deps.Portfolio == nil || deps.Limiter == nil {
		return nil, fmt.Errorf("api: repository, ingestor, portfolio and limiter are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}
	if deps.Notifiers == nil {
		deps.Notifiers = notifier.NewRegistry(logger)
	}
	if deps.Jobs == nil {
		deps.Jobs = job.NewStore(1000, 24*time.Hour)
	}
	if deps.Commentary == nil {
		deps.Commentary = commentary.NewWriter(nil, logger)
	}
	cfg.applyDefaults()

	s := &Server{
		logger: logger,
		router: chi.NewRouter(),
		jobs:   deps.Jobs,
	}
	s.setupRoutes(cfg, deps)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	r := s.router

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(metrics.LoggingMiddleware(s.logger))
	if cfg.MetricsEnabled {
		r.Use(metrics.HTTPMiddleware(deps.Metrics))
	}
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(chimw.Compress(5, "application/json"))

	r.Get("/health", s.handleHealth)
	if cfg.MetricsEnabled {
		r.Handle(cfg.MetricsPath, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	uploads := api.NewUploadHandler(deps.Ingestor, deps.Limiter, deps.Notifiers, deps.Metrics, cfg.MaxUploadBytes, s.logger)
	stats := api.NewStatsHandler(deps.Jobs, deps.Metrics, cfg.StatsRiskFreeRate, cfg.StatsJobTimeout, cfg.MaxUploadBytes, s.logger)
	jobs := api.NewJobHandler(deps.Jobs, nil, s.logger)
	runs := api.NewPortfolioHandler(deps.Portfolio, deps.Limiter, deps.Commentary, deps.Notifiers, deps.Metrics, cfg.RunTimeout, s.logger)
	backtests := api.NewBacktestHandler(deps.Jobs, s.logger)
	feedback := api.NewFeedbackHandler(deps.Repo, s.logger)

	backtestLimit := middleware.NewRateLimiter(cfg.BacktestsPerMinute, time.Minute, middleware.ClientKey, s.logger)
	feedbackLimit := middleware.NewRateLimiter(cfg.FeedbackPerHour, time.Hour, middleware.ClientKey, s.logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKey))
		r.Use(middleware.Identity(deps.Repo, s.logger))

		r.Post("/uploads", uploads.Create)
		r.Post("/uploads/summary", uploads.Summary)

		r.Post("/stats", stats.Create)
		r.Get("/jobs/{id}", jobs.Get)
		r.Get("/jobs/{id}/stream", jobs.Stream)

		r.Post("/portfolio/run", runs.Run)
		r.Get("/portfolio/{batchId}", runs.List)
		r.Post("/portfolio/runs/{runId}/commentary", runs.Commentary)

		r.With(backtestLimit.Handler).Post("/backtests", backtests.Create)
		r.Get("/backtests/{id}", backtests.Get)

		r.With(feedbackLimit.Handler).Post("/feedback", feedback.Create)
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
