// Package jobs contains the scheduled jobs run by the worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RELAY OUTBOX JOB
// Publishes events committed to the outbox and marks them relayed. Delivery
// is at least once: an event whose publish fails stays in the outbox and is
// picked up again on the next run. Each batch is fetched, published and marked
// inside one storage transaction so concurrent relays never share rows.
// ══════════════════════════════════════════════════════════════════════════════

// OutboxStore is the relay's view of the outbox.
type OutboxStore interface {
	FetchUnrelayed(ctx context.Context, limit int) ([]*shared.RecordedEvent, error)
	MarkRelayed(ctx context.Context, ids []string) error
}

// RelayOutboxJobName is the scheduler name of the relay.
const RelayOutboxJobName = "relay_outbox"

// RelayOutboxConfig contains configuration for the relay.
type RelayOutboxConfig struct {
	// BatchSize is the number of events fetched per round.
	BatchSize int

	// MaxBatches bounds the rounds in one run so a backlog cannot starve
	// other jobs.
	MaxBatches int

	// Timeout is the maximum duration of one run.
	Timeout time.Duration
}

// DefaultRelayOutboxConfig returns sensible defaults.
func DefaultRelayOutboxConfig() RelayOutboxConfig {
	return RelayOutboxConfig{
		BatchSize:  100,
		MaxBatches: 10,
		Timeout:    30 * time.Second,
	}
}

// RelayStats describes one run.
type RelayStats struct {
	Fetched   int
	Published int
	Failed    int
}

// RelayOutboxJob moves events from the outbox to the event bus.
type RelayOutboxJob struct {
	tx        shared.Transactor
	outbox    OutboxStore
	publisher shared.EventPublisher
	logger    *slog.Logger
	config    RelayOutboxConfig

	mu sync.Mutex // one run at a time, also across RunNow
}

// NewRelayOutboxJob creates a new RelayOutboxJob.
func NewRelayOutboxJob(tx shared.Transactor, outbox OutboxStore, publisher shared.EventPublisher, logger *slog.Logger, config RelayOutboxConfig) *RelayOutboxJob {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultRelayOutboxConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxBatches <= 0 {
		config.MaxBatches = defaults.MaxBatches
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &RelayOutboxJob{
		tx:        tx,
		outbox:    outbox,
		publisher: publisher,
		logger:    logger.With("job", "relay_outbox"),
		config:    config,
	}
}

// Name implements scheduler.Job.
func (j *RelayOutboxJob) Name() string {
	return RelayOutboxJobName
}

// Description implements scheduler.Job.
func (j *RelayOutboxJob) Description() string {
	return "Publishes committed domain events from the outbox to the event bus"
}

// Run implements scheduler.Job.
func (j *RelayOutboxJob) Run(ctx context.Context) error {
	_, err := j.RunOnce(ctx)
	return err
}

// RunOnce relays up to MaxBatches batches and reports what happened.
func (j *RelayOutboxJob) RunOnce(ctx context.Context) (RelayStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	var stats RelayStats
	for batch := 0; batch < j.config.MaxBatches; batch++ {
		fetched, published, pubErr, err := j.relayBatch(ctx)
		stats.Fetched += fetched
		stats.Published += published
		if err != nil {
			return stats, err
		}
		if pubErr != nil {
			stats.Failed++
			return stats, pubErr
		}
		if fetched < j.config.BatchSize {
			break
		}
	}

	if stats.Published > 0 {
		j.logger.Info("outbox relayed", "published", stats.Published)
	}
	return stats, nil
}

// relayBatch publishes one batch in order, stopping at the first publish
// failure. The published prefix is marked and committed either way; pubErr
// reports the failure, err a storage error that rolled the batch back.
func (j *RelayOutboxJob) relayBatch(ctx context.Context) (fetched, published int, pubErr, err error) {
	err = j.tx.WithinTx(ctx, func(ctx context.Context) error {
		events, err := j.outbox.FetchUnrelayed(ctx, j.config.BatchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox: %w", err)
		}
		fetched = len(events)

		relayed := make([]string, 0, len(events))
		for _, e := range events {
			if err := j.publisher.Publish(e); err != nil {
				pubErr = err
				j.logger.Warn("failed to publish outbox event",
					"event_id", e.ID,
					"event_type", string(e.Type),
					"error", err,
				)
				break
			}
			relayed = append(relayed, e.ID)
		}
		if len(relayed) == 0 {
			return nil
		}
		if err := j.outbox.MarkRelayed(ctx, relayed); err != nil {
			return fmt.Errorf("mark relayed: %w", err)
		}
		published = len(relayed)
		return nil
	})
	if err != nil {
		published = 0
	}
	return fetched, published, pubErr, err
}
