package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/cookbook/internal/config"
	"github.com/davidbz/cookbook/internal/domain"
	httpapi "github.com/davidbz/cookbook/internal/http"
	"github.com/davidbz/cookbook/internal/http/middleware"
	"github.com/davidbz/cookbook/internal/observability"
	"github.com/davidbz/cookbook/internal/provider/anthropic"
	"github.com/davidbz/cookbook/internal/provider/ollama"
	"github.com/davidbz/cookbook/internal/provider/openai"
	"github.com/davidbz/cookbook/internal/provider/registry"
	"github.com/davidbz/cookbook/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *httpapi.Server, logger *zap.Logger, cfg *domain.ProviderConfig) error {
		defer func() { _ = logger.Sync() }()

		logger.Info("LLM provider configured",
			observability.String("provider", string(cfg.Provider)),
			observability.String("model", cfg.Model),
			observability.Bool("ai_enabled", cfg.AIEnabled),
			observability.Int("max_attempts", cfg.MaxAttempts))
		if cfg.Provider.RequiresAPIKey() && cfg.APIKey == "" {
			logger.Warn("no API key configured; calls will fail with auth errors")
		}

		return run(server)
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func run(server *httpapi.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(func() *prometheus.Registry {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		return reg
	}); err != nil {
		log.Fatalf("Failed to provide metrics registry: %v", err)
	}
	if err := container.Provide(func(reg *prometheus.Registry) (*observability.Metrics, error) {
		return observability.NewMetrics(reg)
	}); err != nil {
		log.Fatalf("Failed to provide metrics: %v", err)
	}

	// Provider adapters
	if err := container.Provide(func() (domain.AdapterRegistry, error) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		for _, adapter := range []domain.Adapter{
			openai.NewAdapter(),
			anthropic.NewAdapter(),
			ollama.NewAdapter(),
		} {
			if err := reg.Register(ctx, adapter); err != nil {
				return nil, fmt.Errorf("failed to register %s adapter: %w", adapter.Name(), err)
			}
		}

		return reg, nil
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// Transport
	if err := container.Provide(func(cfg *domain.ProviderConfig, metrics *observability.Metrics) domain.Transport {
		return transport.NewClient(cfg, metrics)
	}); err != nil {
		log.Fatalf("Failed to provide transport: %v", err)
	}

	// Domain Services
	if err := container.Provide(func(
		cfg *domain.ProviderConfig,
		adapters domain.AdapterRegistry,
		tr domain.Transport,
		metrics *observability.Metrics,
	) *domain.Client {
		return domain.NewClient(cfg, adapters, tr, metrics)
	}); err != nil {
		log.Fatalf("Failed to provide LLM client: %v", err)
	}
	if err := container.Provide(func(client *domain.Client) httpapi.LLMService {
		return client
	}); err != nil {
		log.Fatalf("Failed to provide LLM service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(httpapi.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(httpapi.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}
