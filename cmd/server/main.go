package main

import (
	"context"
	"log"

	"github.com/shipshift/orchestrator/internal/config"
	"github.com/shipshift/orchestrator/internal/domain"
	"github.com/shipshift/orchestrator/internal/handler"
	"github.com/shipshift/orchestrator/internal/metrics"
	"github.com/shipshift/orchestrator/internal/observability"
	"github.com/shipshift/orchestrator/internal/stabilize"
	"github.com/shipshift/orchestrator/internal/store"
	"github.com/shipshift/orchestrator/internal/strategy"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	// Rollout history is optional: run without it if the DB is down
	var history *store.History
	if pool, err := store.NewPool(ctx, cfg.DatabaseURL); err != nil {
		log.Printf("Running without rollout history: %v", err)
	} else {
		history, err = store.NewHistory(ctx, pool)
		if err != nil {
			log.Printf("Running without rollout history: %v", err)
		}
	}

	var provider domain.MetricsProvider
	if cfg.PrometheusURL != "" {
		provider = metrics.NewPrometheusProvider(cfg.PrometheusURL)
		log.Printf("Using Prometheus metrics provider at %s", cfg.PrometheusURL)
	} else {
		provider = metrics.NewStaticProvider()
		log.Println("No PROMETHEUS_URL configured, using static metrics provider")
	}

	deps := strategy.Deps{
		Provider:   provider,
		Stabilizer: stabilize.NewService(provider),
	}

	registry := domain.NewClusterRegistry()
	m := observability.NewMetrics()

	r := handler.SetupRouter(
		handler.NewDeploymentHandler(registry, deps, history, m),
		handler.NewClusterHandler(registry, cfg),
		handler.NewHistoryHandler(history),
		m,
		cfg.CORSAllowOrigin,
	)

	log.Printf("shipshift orchestrator starting on :%s", cfg.ServerPort)
	if err := r.Run(":" + cfg.ServerPort); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
