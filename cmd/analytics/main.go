package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/cropsight/veg-analytics-service/internal/adapter/http"
	kafkaadapter "github.com/cropsight/veg-analytics-service/internal/adapter/kafka"
	"github.com/cropsight/veg-analytics-service/internal/adapter/soilgrid"
	"github.com/cropsight/veg-analytics-service/internal/config"
	"github.com/cropsight/veg-analytics-service/internal/domain"
	"github.com/cropsight/veg-analytics-service/internal/observability"
	"github.com/cropsight/veg-analytics-service/internal/pipeline"
	"github.com/cropsight/veg-analytics-service/internal/policy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	policies, err := loadPolicies(cfg, logger)
	if err != nil {
		logger.Error("failed to load rate policies", "error", err, "path", cfg.RatePolicyPath)
		os.Exit(1)
	}

	// Soil enrichment is feature-flagged via SOILGRID_ENABLED.
	var soil domain.SoilProvider
	if cfg.SoilGridEnabled {
		client := soilgrid.NewClient(cfg.SoilGridBaseURL, cfg.SoilGridTimeout, metrics, logger)
		soil = soilgrid.NewCachedProvider(client, cfg.SoilGridCacheSize, metrics)
		metrics.SoilEnabled.Set(1)
		logger.Info("soil enrichment enabled", "base_url", cfg.SoilGridBaseURL, "cache_size", cfg.SoilGridCacheSize)
	} else {
		logger.Info("soil enrichment disabled")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	evaluator := pipeline.NewEvaluator(pipeline.EvaluatorConfig{
		Smoother:  cfg.SmootherConfig(),
		Baseline:  cfg.BaselineConfig(),
		Detector:  cfg.DetectorConfig(),
		Trend:     cfg.TrendConfig(),
		Phenology: cfg.PhenologyConfig(),
		Change:    cfg.ChangeConfig(),
		Zone:      cfg.ZoneConfig(),
	}, policies, soil, logger, metrics)

	p := pipeline.New(reader, evaluator, writer, logger, metrics, cfg.BatchSize, cfg.WorkerCount)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, evaluator, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start analytics pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func loadPolicies(cfg *config.Config, logger *slog.Logger) (domain.RatePolicyTable, error) {
	if cfg.RatePolicyPath == "" {
		logger.Info("using built-in rate policies")
		return policy.Default(), nil
	}
	table, err := policy.Load(cfg.RatePolicyPath)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded rate policies", "path", cfg.RatePolicyPath, "inputs", len(table))
	return table, nil
}
