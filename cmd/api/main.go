// Package main is the entry point of the CourseHub REST API.
//
// The API serves catalog authoring, payments, enrollments, progress and
// access checks. With the embedded_relay feature it also relays the outbox
// and delivers notifications, which makes a single process a complete
// deployment (and is required with the in-process store).
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
	apihttp "github.com/coursehub/coursehub-core/internal/interface/http"
	"github.com/coursehub/coursehub-core/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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

	log := setupLogger(cfg)
	log.Info("starting CourseHub API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Infrastructure: storage, cache, event bus
	// ─────────────────────────────────────────────────────────────────────────
	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	embedded := cfg.UseMemoryStore() || cfg.Features.IsEnabled(config.FeatureEmbeddedRelay)
	if err := rt.Subscribe(embedded); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Outbox relay (embedded)
	// ─────────────────────────────────────────────────────────────────────────
	if embedded && cfg.Scheduler.Enabled {
		sched, err := rt.Scheduler()
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				log.Warn("scheduler stop failed", logger.Err(err))
			}
		}()
		log.Info("outbox relay running in-process",
			logger.Duration("interval", cfg.Scheduler.RelayInterval))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := apihttp.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.Version = cfg.App.Version

	server := apihttp.NewServer(httpCfg, rt.HTTPDependencies())
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
		return errors.New("http server stopped unexpectedly")
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	log.Info("shutdown completed")
	return nil
}

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts).With(logger.String("service", cfg.App.Name))
}
