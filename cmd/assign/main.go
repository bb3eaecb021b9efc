// Command assign runs the weekly chore scheduler once for every group.
// It is meant to be triggered by cron early each Sunday; re-running it in
// the same week assigns nothing new.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmynk/roommates/internal/config"
	"github.com/mmynk/roommates/internal/service"
	"github.com/mmynk/roommates/internal/storage/sqlite"
	"github.com/mmynk/roommates/internal/telemetry"
	"github.com/mmynk/roommates/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Weekly assignment failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "roommates-assign", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	tasks := service.NewTaskService(store, store, nil, service.Options{
		Location:     cfg.Location(),
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
	})

	results, err := tasks.RunAllGroups(ctx)
	assigned := 0
	for _, r := range results {
		assigned += r.Assigned
	}
	logger.Info("Weekly assignment finished", "groups", len(results), "tasks_assigned", assigned)
	return err
}
