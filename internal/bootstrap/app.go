package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/paygate/internal/controller"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/cassiomorais/paygate/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Gateway  *service.GatewayService
	Router   *chi.Mux
	Storage  *Storage

	tracer *sdktrace.TracerProvider
}

// New loads configuration and wires the gateway for the configured storage
// backend. The caller must Close the returned App.
func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg, serviceName, metricsNamespace)
}

func NewWithConfig(ctx context.Context, cfg *config.Config, serviceName string, metricsNamespace string) (*App, error) {
	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout, serviceName)
	logger.Info().Str("environment", cfg.Providers.Environment).Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing && cfg.Observability.JaegerEndpoint != "" {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = observability.NewMetrics(metricsNamespace, app.Registry)

	storage, err := OpenStorage(ctx, cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Storage = storage
	logger.Info().Str("backend", cfg.Storage.Backend).Msg("Storage ready")

	registry := NewProviderRegistry(cfg.Providers, app.Metrics, logger)
	app.Gateway = service.NewGatewayService(registry, storage.Orders, app.Metrics, logger)

	app.Router = controller.NewRouter(controller.RouterDeps{
		Gateway:          app.Gateway,
		IdempotencyStore: storage.Idempotency,
		Locker:           storage.Locker,
		IdempotencyTTL:   cfg.Storage.IdempotencyTTL,
		HealthChecks:     storage.Checks,
		Metrics:          app.Metrics,
		Gatherer:         app.Registry,
		CORSConfig:       cfg.Server.CORS,
		RateLimit:        cfg.Server.RateLimit,
		ServiceName:      serviceName,
		Logger:           logger,
	})

	return app, nil
}

func (a *App) Close() {
	if a.Storage != nil {
		a.Storage.Close()
	}
	if a.tracer != nil {
		if err := observability.Shutdown(context.Background(), a.tracer); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
}
