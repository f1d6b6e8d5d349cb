package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ArxivDigest/internal/config"
	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/infrastructure/llm"
	"ArxivDigest/internal/infrastructure/parser"
	"ArxivDigest/internal/infrastructure/resilience"
	"ArxivDigest/internal/infrastructure/scheduler"
	"ArxivDigest/internal/infrastructure/webhook"
	"ArxivDigest/internal/logging"
	"ArxivDigest/internal/observability/metrics"
	"ArxivDigest/internal/ports"
	"ArxivDigest/internal/scanner"
	"ArxivDigest/internal/usecase"
)

// Application wires config to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	metrics   *metrics.PipelineMetrics
}

// New builds a runnable application instance from validated configuration.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	filterLevel, err := domain.ParseFilterLevel(cfg.Digest.FilterLevel)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewArxivScanner(nil))
	source := parser.NewStrategySource(registry, cfg.Sites, baseLogger.With("component", "source"))

	exec := resilience.NewExecutor(resilience.Config{
		MaxAttempts:    cfg.Resilience.MaxAttempts,
		InitialBackoff: cfg.Resilience.InitialBackoff(),
		MaxBackoff:     cfg.Resilience.MaxBackoff(),
		Multiplier:     cfg.Resilience.Multiplier,
		BreakerEnabled: cfg.Resilience.BreakerEnabled,
	}, baseLogger.With("component", "resilience"))

	pipelineMetrics := metrics.NewPipelineMetrics()

	client := llm.NewClient(llm.Options{
		Endpoint:          cfg.OpenAI.Endpoint,
		Model:             cfg.OpenAI.Model,
		APIKey:            cfg.OpenAI.APIKey,
		RequestTimeout:    cfg.OpenAI.RequestTimeout(),
		RequestsPerMinute: cfg.Limits.RequestsPerMinute,
		Executor:          exec,
		Observer:          pipelineMetrics,
		Logger:            baseLogger.With("component", "llm"),
	})

	var notifier ports.Notifier
	if cfg.Webhook.URL != "" {
		notifier = webhook.NewNotifier(
			cfg.Webhook.URL,
			cfg.Digest.MaxPapersPerMessage,
			exec,
			baseLogger.With("component", "webhook"),
		)
	} else {
		baseLogger.Warn("webhook url not set, digests will not be delivered")
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:        source,
		Scorer:        client,
		Summarizer:    client,
		Translator:    client,
		Notifier:      notifier,
		Metrics:       pipelineMetrics,
		Logger:        baseLogger.With("component", "pipeline"),
		Category:      categoryLabel(cfg.Sites),
		Interest:      cfg.Digest.UserInterest,
		FilterLevel:   filterLevel,
		Language:      cfg.Digest.Language,
		MaxConcurrent: cfg.Limits.MaxConcurrent,
	})

	cronDriver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location())

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(cronDriver, pipeline, baseLogger.With("component", "scheduler")),
		metrics:   pipelineMetrics,
	}, nil
}

// RunOnce executes a single digest run for the current day.
func (a *Application) RunOnce(ctx context.Context) error {
	now := time.Now().In(a.cfg.Scheduler.Location())
	return a.pipeline.ProcessDay(ctx, now)
}

// Run starts the scheduler (and metrics endpoint, when configured) and blocks
// until the context is canceled.
func (a *Application) Run(ctx context.Context) error {
	var metricsServer *http.Server
	if a.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		metricsServer = &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}
		go func() {
			a.logger.Info("metrics endpoint listening", "addr", a.cfg.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression, "timezone", a.cfg.Scheduler.Timezone)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Error("scheduler stop", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown", "error", err)
		}
	}

	return nil
}

func categoryLabel(sites []config.SiteConfig) string {
	var names []string
	for _, site := range sites {
		for _, cat := range site.Categories {
			names = append(names, cat.Name)
		}
	}
	if len(names) == 0 {
		return "arxiv"
	}
	return strings.Join(names, ", ")
}
