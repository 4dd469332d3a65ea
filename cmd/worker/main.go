package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/lingzc/dormlife/internal/config"
	"github.com/lingzc/dormlife/internal/elec"
	"github.com/lingzc/dormlife/internal/jobs"
	"github.com/lingzc/dormlife/internal/storage/sqlite"
	"github.com/lingzc/dormlife/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogFormat)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	portal := elec.NewClient(cfg.PortalLoginURL, cfg.PortalSearchURL)
	collector := elec.NewCollector(store, portal, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Collector: collector,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("init worker", "error", err)
		os.Exit(1)
	}

	logger.Info("worker starting", "redis", cfg.RedisAddr)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
