package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"finease/internal/amqp"
	"finease/internal/config"
	"finease/internal/log"
	"finease/internal/storage"
	"finease/internal/worker"
)

// startupCheckLimit is how many recent events are read on startup.
const startupCheckLimit = 10

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := log.ParseLevel(cfg.LogLevel)
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := log.New(log.Config{Level: level, Component: log.ComponentWorker, Output: os.Stdout, Handler: handler})
	log.SetDefault(logger)

	logger.Info("Starting finease-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker", log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := worker.NewActivityWorker(repo, cfg.ActivityRetention, logger)

	if err := w.StartupCheck(ctx, startupCheckLimit); err != nil {
		logger.Error("Startup check failed", log.FieldError, err)
	}
	if n, err := w.Prune(ctx); err != nil {
		logger.Error("Initial prune failed", log.FieldError, err)
	} else if n > 0 {
		logger.Info("Pruned old activity", log.FieldCount, n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeActivity(gctx, w.HandleActivityMessage)
	})
	g.Go(func() error {
		return w.PeriodicPrune(gctx, cfg.PruneInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
