// Package app assembles the infrastructure shared by the API and worker
// processes: storage, the optional Redis cache, the event bus, the outbox
// relay and the event subscribers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coursehub/coursehub-core/config"
	"github.com/coursehub/coursehub-core/internal/application/eventhandler"
	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/notification"
	"github.com/coursehub/coursehub-core/internal/domain/payment"
	"github.com/coursehub/coursehub-core/internal/domain/progress"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
	"github.com/coursehub/coursehub-core/internal/infrastructure/messaging"
	"github.com/coursehub/coursehub-core/internal/infrastructure/persistence/memory"
	"github.com/coursehub/coursehub-core/internal/infrastructure/persistence/postgres"
	"github.com/coursehub/coursehub-core/internal/infrastructure/persistence/redis"
	"github.com/coursehub/coursehub-core/internal/infrastructure/scheduler"
	"github.com/coursehub/coursehub-core/internal/infrastructure/scheduler/jobs"
	"github.com/coursehub/coursehub-core/internal/infrastructure/service"
	"github.com/coursehub/coursehub-core/internal/interface/http/handlers"
	"github.com/coursehub/coursehub-core/pkg/logger"
)

// Outbox is satisfied by both store implementations.
type Outbox interface {
	shared.EventRecorder
	jobs.OutboxStore
}

// Storage groups the repositories of one backing store.
type Storage struct {
	Tx          shared.Transactor
	Catalog     catalog.Repository
	Payments    payment.Repository
	Enrollments enrollment.Repository
	Progress    progress.Repository
	Outbox      Outbox

	pinger handlers.Pinger
	close  func()
}

// Runtime owns every long-lived infrastructure component of a process.
type Runtime struct {
	Config  *config.Config
	Logger  *logger.Logger
	Storage Storage

	// Courses is the catalog read path; the cached decorator when Redis is on.
	Courses catalog.Repository

	Cache  *redis.Cache
	Bus    shared.EventBus
	Health *handlers.Health

	slog     *slog.Logger
	closeBus func() error
}

// Open connects storage, Redis and the event bus according to cfg.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config: cfg,
		Logger: log,
		Health: handlers.NewHealth(cfg.App.Version),
		slog:   log.Slog(),
	}

	storage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	rt.Storage = storage
	rt.Courses = storage.Catalog
	rt.Health.Critical("storage", handlers.Ping(storage.pinger))

	if !cfg.Redis.Disabled && (cfg.Features.IsEnabled(config.FeatureCatalogCache) || cfg.Features.IsEnabled(config.FeatureDistributedEvents)) {
		cache, err := redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			// The cache is optional; the core keeps working without it.
			log.Warn("redis unavailable, running without cache", logger.Err(err))
		} else {
			rt.Cache = cache
			rt.Health.Optional("redis", handlers.Ping(cache))
			if cfg.Features.IsEnabled(config.FeatureCatalogCache) {
				rt.Courses = redis.NewCachedCatalog(storage.Catalog, cache, rt.slog)
			}
		}
	}

	if err := rt.openBus(); err != nil {
		rt.Close()
		return nil, err
	}

	return rt, nil
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (Storage, error) {
	if cfg.UseMemoryStore() {
		log.Warn("DATABASE_URL not set, using in-process store")
		store := memory.NewStore()
		return Storage{
			Tx:          store,
			Catalog:     store.Catalog(),
			Payments:    store.Payments(),
			Enrollments: store.Enrollments(),
			Progress:    store.Progress(),
			Outbox:      store.Outbox(),
			pinger:      store,
			close:       func() {},
		}, nil
	}

	conn, err := postgres.NewConnection(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return Storage{}, fmt.Errorf("connect database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return Storage{}, fmt.Errorf("migrate database: %w", err)
		}
		log.Info("database schema is up to date")
	}

	return Storage{
		Tx:          conn,
		Catalog:     postgres.NewCatalogRepository(conn),
		Payments:    postgres.NewPaymentRepository(conn),
		Enrollments: postgres.NewEnrollmentRepository(conn),
		Progress:    postgres.NewProgressRepository(conn),
		Outbox:      postgres.NewOutbox(conn),
		pinger:      conn,
		close:       conn.Close,
	}, nil
}

func (rt *Runtime) openBus() error {
	local := messaging.DefaultLocalConfig()
	local.Logger = rt.slog

	if rt.Cache != nil && rt.Config.Features.IsEnabled(config.FeatureDistributedEvents) {
		bus, err := messaging.NewRedisBus(messaging.RedisConfig{
			Client:  redis.NewPubSub(rt.Cache),
			Channel: redis.EventsChannel,
			Local:   local,
			Logger:  rt.slog,
		})
		if err != nil {
			return fmt.Errorf("start redis event bus: %w", err)
		}
		rt.Bus, rt.closeBus = bus, bus.Close
		return nil
	}

	bus := messaging.NewLocalBus(local)
	rt.Bus, rt.closeBus = bus, bus.Close
	return nil
}

// Subscribe registers the cache invalidator and, when deliver is set, the
// notification handler. Only the process running the relay delivers
// notifications so each event is sent once.
func (rt *Runtime) Subscribe(deliver bool) error {
	if cached, ok := rt.Courses.(*redis.CachedCatalog); ok {
		if err := eventhandler.NewOnCatalogChangedHandler(cached, rt.slog).Register(rt.Bus); err != nil {
			return fmt.Errorf("register cache invalidator: %w", err)
		}
	}

	if deliver && rt.Config.Features.IsEnabled(config.FeatureNotifications) {
		n := rt.Config.Notification
		// One delivery covers every retry attempt plus backoff.
		h := eventhandler.NewOnNotificationEventHandler(rt.notificationSender(), rt.slog, eventhandler.NotificationConfig{
			Timeout: n.Timeout * time.Duration(n.MaxAttempts+1),
		})
		if err := h.Register(rt.Bus); err != nil {
			return fmt.Errorf("register notification handler: %w", err)
		}
	}
	return nil
}

func (rt *Runtime) notificationSender() notification.Sender {
	n := rt.Config.Notification
	if n.WebhookURL == "" {
		return service.NewLogSender(rt.slog)
	}
	return service.NewWebhookSender(service.WebhookConfig{
		URL:         n.WebhookURL,
		Secret:      n.WebhookSecret,
		Timeout:     n.Timeout,
		MaxAttempts: n.MaxAttempts,
	}, rt.slog)
}

// RelayJob builds the outbox relay for this runtime.
func (rt *Runtime) RelayJob() *jobs.RelayOutboxJob {
	s := rt.Config.Scheduler
	return jobs.NewRelayOutboxJob(rt.Storage.Tx, rt.Storage.Outbox, rt.Bus, rt.slog, jobs.RelayOutboxConfig{
		BatchSize:  s.RelayBatchSize,
		MaxBatches: s.RelayMaxBatches,
		Timeout:    s.JobTimeout,
	})
}

// Scheduler builds a scheduler running the outbox relay.
func (rt *Runtime) Scheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.New(scheduler.Config{
		Logger: rt.slog,
		Tick:   rt.Config.Scheduler.TickInterval,
	})
	if err := sched.Register(rt.RelayJob(), scheduler.Every(rt.Config.Scheduler.RelayInterval)); err != nil {
		return nil, fmt.Errorf("register relay job: %w", err)
	}
	return sched, nil
}

// Close releases everything Open acquired. The bus closes before the cache
// because the pub/sub adapter shares the cache's client.
func (rt *Runtime) Close() {
	if rt.closeBus != nil {
		if err := rt.closeBus(); err != nil {
			rt.Logger.Warn("event bus close failed", logger.Err(err))
		}
	}
	if rt.Cache != nil {
		if err := rt.Cache.Close(); err != nil {
			rt.Logger.Warn("redis close failed", logger.Err(err))
		}
	}
	if rt.Storage.close != nil {
		rt.Storage.close()
	}
}

func redisConfig(c config.RedisConfig) redis.Config {
	return redis.Config{
		URL:          c.URL,
		Host:         c.Host,
		Port:         c.Port,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}
