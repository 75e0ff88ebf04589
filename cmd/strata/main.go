package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stratadb/strata/internal/config"
	"github.com/stratadb/strata/internal/health"
	"github.com/stratadb/strata/internal/metrics"
	"github.com/stratadb/strata/internal/server"
	"github.com/stratadb/strata/internal/service"
	"github.com/stratadb/strata/internal/storage/lineage"
	"github.com/stratadb/strata/internal/storage/versionstore"
	"github.com/stratadb/strata/internal/tier"
	"github.com/stratadb/strata/internal/util/workerpool"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("node_id", cfg.Engine.NodeID),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.Int("hot_capacity", cfg.Tiers.HotCapacity))

	// Create data directories
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}
	if err := os.MkdirAll(cfg.Storage.CommitLogDir, 0755); err != nil {
		logger.Fatal("Failed to create commit log directory", zap.Error(err))
	}

	// Initialize metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(cfg.Engine.NodeID)
	}

	// Initialize commit log
	commitLogSvc, err := service.NewCommitLogService(
		&service.CommitLogConfig{
			SegmentSize: cfg.CommitLog.SegmentSize,
			SyncWrites:  cfg.CommitLog.SyncWrites,
		},
		cfg.Storage.CommitLogDir,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize commit log service", zap.Error(err))
	}
	defer commitLogSvc.Close()

	// Initialize engine state
	store := versionstore.NewStore()
	graph := lineage.NewGraph()
	tiers := tier.NewManager(
		&tier.ManagerConfig{
			HotCapacity:  cfg.Tiers.HotCapacity,
			WarmCapacity: cfg.Tiers.WarmCapacity,
		},
		logger,
	)

	storageSvc := service.NewStorageService(commitLogSvc, store, graph, tiers, m, logger)

	// Recover state from the commit log before accepting traffic
	logger.Info("Starting commit log recovery")
	if err := storageSvc.Recover(context.Background()); err != nil {
		logger.Fatal("Commit log recovery failed", zap.Error(err))
	}

	stats := storageSvc.Stats()
	logger.Info("Recovery complete",
		zap.Int("keys", stats.KeyCount),
		zap.Int("versions", stats.VersionCount),
		zap.Int("lineage_nodes", stats.LineageNodes))

	// Start background consolidation
	pool := workerpool.NewWorkerPool(&workerpool.Config{
		Name:       "consolidation",
		MaxWorkers: cfg.WorkerPool.MaxWorkers,
		QueueSize:  cfg.WorkerPool.QueueSize,
		Logger:     logger,
	})

	consolidationSvc := service.NewConsolidationService(
		&service.ConsolidationConfig{
			HotSweepInterval:  cfg.Consolidation.HotSweepInterval,
			WarmSweepInterval: cfg.Consolidation.WarmSweepInterval,
			ColdSweepInterval: cfg.Consolidation.ColdSweepInterval,
			HotIdleThreshold:  cfg.Consolidation.HotIdleThreshold,
			WarmIdleThreshold: cfg.Consolidation.WarmIdleThreshold,
			FitnessThreshold:  cfg.Consolidation.FitnessThreshold,
			RecencyWeight:     cfg.Consolidation.RecencyWeight,
			FrequencyWeight:   cfg.Consolidation.FrequencyWeight,
			DescendantWeight:  cfg.Consolidation.DescendantWeight,
		},
		tiers,
		graph,
		pool,
		m,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consolidationSvc.Start(ctx)
	defer consolidationSvc.Stop()

	// Start health checker
	healthChecker := health.NewHealthChecker(
		&health.HealthCheckConfig{
			NodeID:       cfg.Engine.NodeID,
			CommitLogDir: cfg.Storage.CommitLogDir,
		},
		storageSvc,
		consolidationSvc,
		logger,
	)
	go healthChecker.Start(ctx)

	// Start metrics server
	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = server.NewMetricsServer(
			&server.MetricsServerConfig{Port: cfg.Metrics.Port},
			m,
			storageSvc,
			logger,
		)
		if err := metricsServer.Start(); err != nil {
			logger.Fatal("Failed to start metrics server", zap.Error(err))
		}
	}

	logger.Info("Engine started", zap.String("node_id", cfg.Engine.NodeID))

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	healthChecker.SetReadiness(false)

	consolidationSvc.Stop()
	pool.Stop(cfg.Engine.ShutdownTimeout)

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}

	if err := commitLogSvc.Close(); err != nil {
		logger.Error("Failed to close commit log", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// initLogger initializes the zap logger from logging configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level = level

	if cfg.Format == "console" {
		zapCfg.Encoding = "console"
	}

	return zapCfg.Build()
}
