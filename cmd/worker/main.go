// Package main is the entry point of the CourseHub background worker.
//
// The worker relays the transactional outbox to the event bus and delivers
// notifications for payment and completion events. It requires PostgreSQL:
// the in-process store is only visible to the API process that owns it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coursehub/coursehub-core/config"
	"github.com/coursehub/coursehub-core/internal/app"
	"github.com/coursehub/coursehub-core/internal/infrastructure/scheduler/jobs"
	"github.com/coursehub/coursehub-core/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration & logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.UseMemoryStore() {
		return errors.New("worker requires DATABASE_URL; the in-process store relays from the API")
	}
	if !cfg.Scheduler.Enabled {
		return errors.New("SCHEDULER_ENABLED=false leaves the worker nothing to do")
	}

	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	log := logger.New(opts).With(logger.String("service", cfg.App.Name+"-worker"))
	log.Info("starting CourseHub worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.Duration("relay_interval", cfg.Scheduler.RelayInterval),
		logger.Int("relay_batch_size", cfg.Scheduler.RelayBatchSize),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Infrastructure & subscribers
	// ─────────────────────────────────────────────────────────────────────────
	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Subscribe(true); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Scheduler
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := rt.Scheduler()
	if err != nil {
		return err
	}

	// Drain whatever accumulated while no worker was running.
	if _, err := sched.RunNow(ctx, jobs.RelayOutboxJobName); err != nil {
		log.Warn("initial relay failed", logger.Err(err))
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal")

	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop failed", logger.Err(err))
	}

	log.Info("shutdown completed")
	return nil
}
