// Package app assembles the equicurve services from configuration.
package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/equicurve/internal/api"
	"github.com/newthinker/equicurve/internal/api/job"
	"github.com/newthinker/equicurve/internal/commentary"
	"github.com/newthinker/equicurve/internal/config"
	"github.com/newthinker/equicurve/internal/ingest"
	"github.com/newthinker/equicurve/internal/llm/factory"
	"github.com/newthinker/equicurve/internal/metrics"
	"github.com/newthinker/equicurve/internal/notifier"
	"github.com/newthinker/equicurve/internal/notifier/telegram"
	"github.com/newthinker/equicurve/internal/notifier/webhook"
	"github.com/newthinker/equicurve/internal/plans"
	"github.com/newthinker/equicurve/internal/portfolio"
	"github.com/newthinker/equicurve/internal/storage/object"
	"github.com/newthinker/equicurve/internal/storage/repo"
)

// App holds every long-lived service of one process.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Objects    object.Store
	Repo       *repo.MemoryStore
	Ingestor   *ingest.Ingestor
	Portfolio  *portfolio.Service
	Limiter    *plans.Limiter
	Commentary *commentary.Writer
	Notifiers  *notifier.Registry
	Metrics    *metrics.Registry
	Jobs       *job.Store
}

// New builds the services described by cfg. cfg is expected to be validated.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	objects, err := NewObjectStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	provider, err := factory.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating llm provider: %w", err)
	}

	reg := metrics.NewRegistry()
	notifiers, err := NewNotifiers(cfg.Notifiers, reg, logger)
	if err != nil {
		return nil, err
	}

	r := repo.NewMemoryStore(cfg.Storage.MaxFeedback)
	runs := portfolio.NewService(objects, r, portfolio.Options{
		DefaultCapital:  cfg.Portfolio.TotalCapitalDefault,
		DefaultCurrency: cfg.Portfolio.DefaultCurrency,
		LoadConcurrency: cfg.Portfolio.LoadConcurrency,
	}, logger.Named("portfolio"))

	a := &App{
		cfg:        cfg,
		logger:     logger,
		Objects:    objects,
		Repo:       r,
		Ingestor:   ingest.New(objects, r, logger.Named("ingest")),
		Portfolio:  runs,
		Limiter:    plans.NewLimiter(r, cfg.Plans),
		Commentary: commentary.NewWriter(provider, logger.Named("commentary")),
		Notifiers:  notifiers,
		Metrics:    reg,
		Jobs:       job.NewStore(cfg.Server.MaxJobs, cfg.JobTTL()),
	}

	logger.Info("services initialized",
		zap.String("storage", storageType(cfg.Storage)),
		zap.Int("notifiers", notifiers.Len()),
		zap.Bool("commentary", a.Commentary.Enabled()),
	)
	return a, nil
}

func storageType(cfg config.StorageConfig) string {
	if cfg.Type == "" {
		return "localfs"
	}
	return cfg.Type
}

// NewObjectStore opens the configured object store.
func NewObjectStore(cfg config.StorageConfig) (object.Store, error) {
	switch storageType(cfg) {
	case "localfs":
		store, err := object.NewLocalFS(cfg.Path, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("creating local storage: %w", err)
		}
		return store, nil
	case "s3":
		store, err := object.NewS3(object.S3Config{
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// NewNotifiers registers every enabled notifier. Deliveries are counted
// in reg.
func NewNotifiers(cfgs map[string]config.NotifierConfig, reg *metrics.Registry, logger *zap.Logger) (*notifier.Registry, error) {
	notifiers := notifier.NewRegistry(logger.Named("notifier"))
	if reg != nil {
		notifiers.OnDelivery(reg.RecordNotification)
	}

	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		nc := cfgs[name]
		if !nc.Enabled {
			continue
		}
		var n notifier.Notifier
		switch nc.Type {
		case "", "webhook":
			n = webhook.New(name, nc.URL, nc.Headers)
		case "telegram":
			n = telegram.New(name, nc.BotToken, nc.ChatID)
		default:
			return nil, fmt.Errorf("notifier %s: unknown type %q", name, nc.Type)
		}
		if err := notifiers.Register(n, nc.Events...); err != nil {
			return nil, fmt.Errorf("registering notifier %s: %w", name, err)
		}
		logger.Info("notifier enabled", zap.String("name", name), zap.Strings("events", nc.Events))
	}
	return notifiers, nil
}

// ServerConfig maps the process configuration onto the HTTP server.
func (a *App) ServerConfig() api.Config {
	c := a.cfg
	return api.Config{
		Host:               c.Server.Host,
		Port:               c.Server.Port,
		APIKey:             c.Server.APIKey,
		CORSOrigins:        c.Server.CORSOrigins,
		MaxUploadBytes:     int64(c.Server.MaxUploadMB) << 20,
		RequestTimeout:     time.Duration(c.Server.RequestTimeout) * time.Second,
		MetricsEnabled:     c.Metrics.Enabled,
		MetricsPath:        c.Metrics.Path,
		StatsRiskFreeRate:  c.Stats.RiskFreeRate,
		StatsJobTimeout:    time.Duration(c.Stats.JobTimeoutSecs) * time.Second,
		RunTimeout:         time.Duration(c.Portfolio.RunTimeoutSeconds) * time.Second,
		BacktestsPerMinute: c.RateLimit.BacktestsPerMinute,
		FeedbackPerHour:    c.RateLimit.FeedbackPerHour,
	}
}

// Server creates the HTTP server over the app's services.
func (a *App) Server() (*api.Server, error) {
	return api.NewServer(a.ServerConfig(), api.Dependencies{
		Repo:       a.Repo,
		Ingestor:   a.Ingestor,
		Portfolio:  a.Portfolio,
		Limiter:    a.Limiter,
		Commentary: a.Commentary,
		Notifiers:  a.Notifiers,
		Metrics:    a.Metrics,
		Jobs:       a.Jobs,
	}, a.logger.Named("api"))
}

// Prepare makes sure the upload bucket exists.
func (a *App) Prepare(ctx context.Context) error {
	if err := a.Objects.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("preparing storage: %w", err)
	}
	return nil
}

// Close waits for queued notifications until ctx is done.
func (a *App) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.Notifiers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the running services.
func (a *App) Stats() map[string]any {
	return map[string]any{
		"storage":    storageType(a.cfg.Storage),
		"notifiers":  a.Notifiers.Len(),
		"commentary": a.Commentary.Enabled(),
		"jobs":       len(a.Jobs.List()),
		"stats_jobs": a.Jobs.Active("stats"),
	}
}
