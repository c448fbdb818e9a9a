package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fastmem/fastmem/internal/config"
	"github.com/fastmem/fastmem/internal/health"
	"github.com/fastmem/fastmem/internal/metrics"
	"github.com/fastmem/fastmem/internal/persist"
	"github.com/fastmem/fastmem/internal/server"
	"github.com/fastmem/fastmem/internal/service"
	"github.com/fastmem/fastmem/internal/util/workerpool"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	var cfg *config.Config
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	// Initialize logger
	logger, err := initLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.Int("shards", cfg.Engine.Shards),
		zap.Int("max_entries", cfg.Engine.MaxEntries),
		zap.String("eviction_policy", cfg.Eviction.Policy))

	// Initialize metrics
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	// Initialize services
	storeSvc := service.NewStoreService(
		&service.StoreConfig{
			Shards:      cfg.Engine.Shards,
			LockTimeout: cfg.Engine.LockTimeout,
		},
		&service.EvictionConfig{
			Policy:         service.Policy(cfg.Eviction.Policy),
			MaxEntries:     cfg.Engine.MaxEntries,
			MaxMemoryBytes: cfg.Engine.MaxMemoryBytes,
			EvictionBudget: cfg.Eviction.EvictionBudget,
			SweepInterval:  cfg.Eviction.SweepInterval,
		},
		m,
		logger,
	)

	pool := workerpool.NewWorkerPool(&workerpool.Config{
		Name:       "maintenance",
		MaxWorkers: cfg.Maintenance.Workers,
		QueueSize:  cfg.Maintenance.QueueSize,
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Restore from snapshot
	var snapshot *persist.Snapshot
	if cfg.Snapshot.Path != "" {
		snapshot = persist.NewSnapshot(cfg.Snapshot.Path, logger)
		if cfg.Snapshot.LoadOnStartup && snapshot.Exists() {
			records, err := snapshot.Read()
			if err != nil {
				logger.Error("Failed to read snapshot", zap.Error(err))
			} else if err := storeSvc.Import(ctx, records); err != nil {
				logger.Error("Failed to import snapshot", zap.Error(err))
			}
		}
	}

	// Start background expiry sweeps
	storeSvc.StartSweeper(ctx, pool)

	// Start health checker
	checker := health.NewHealthChecker(
		&health.HealthCheckConfig{
			MaxEntries:     cfg.Engine.MaxEntries,
			MaxMemoryBytes: cfg.Engine.MaxMemoryBytes,
		},
		storeSvc.Stats,
		logger,
	)
	go checker.Start(ctx)

	// Start metrics server
	var metricsSrv *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsSrv = server.NewMetricsServer(
			&server.MetricsServerConfig{Port: cfg.Metrics.Port, Path: cfg.Metrics.Path},
			registry,
			storeSvc,
			checker,
			logger,
		)
		if err := metricsSrv.Start(); err != nil {
			logger.Fatal("Failed to start metrics server", zap.Error(err))
		}
	}

	logger.Info("Store started")

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Stop(); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}

	// Final snapshot
	if snapshot != nil && cfg.Snapshot.SaveOnShutdown {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 30*time.Second)
		records, err := storeSvc.Export(saveCtx)
		if err != nil {
			logger.Error("Failed to export snapshot during shutdown", zap.Error(err))
		} else if err := snapshot.Write(records); err != nil {
			logger.Error("Failed to write snapshot during shutdown", zap.Error(err))
		}
		saveCancel()
	}

	if err := pool.Stop(10 * time.Second); err != nil {
		logger.Error("Worker pool stop failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// initLogger initializes the zap logger
func initLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
