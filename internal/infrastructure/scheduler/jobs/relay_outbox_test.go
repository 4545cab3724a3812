package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
	"github.com/coursehub/coursehub-core/internal/infrastructure/messaging"
	"github.com/coursehub/coursehub-core/internal/infrastructure/persistence/memory"
)

var now = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

func record(t *testing.T, ob *memory.Outbox, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, ob.Record(context.Background(), shared.NewCourseStructureChangedEvent(id, "lesson_added", now)))
	}
}

func TestRelayOutbox_PublishesInOrderAndMarks(t *testing.T) {
	store := memory.NewStore()
	ob := store.Outbox()
	record(t, ob, "c1", "c2", "c3", "c4", "c5")

	bus := messaging.NewLocalBus(messaging.LocalConfig{})
	defer bus.Close()

	var (
		mu  sync.Mutex
		got []string
	)
	require.NoError(t, bus.Subscribe(shared.EventCourseStructureChanged, func(e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.AggregateID())
		return nil
	}))

	job := NewRelayOutboxJob(store, ob, bus, nil, RelayOutboxConfig{BatchSize: 2, MaxBatches: 10})
	stats, err := job.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Fetched)
	assert.Equal(t, 5, stats.Published)
	assert.Equal(t, []string{"c1", "c2", "c3", "c4", "c5"}, got)

	pending, err := ob.Pending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)

	// Nothing left: a second run is a no-op.
	stats, err = job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Fetched)
}

func TestRelayOutbox_MaxBatchesBoundsOneRun(t *testing.T) {
	store := memory.NewStore()
	ob := store.Outbox()
	record(t, ob, "c1", "c2", "c3", "c4", "c5")

	bus := messaging.NewLocalBus(messaging.LocalConfig{})
	defer bus.Close()

	job := NewRelayOutboxJob(store, ob, bus, nil, RelayOutboxConfig{BatchSize: 2, MaxBatches: 1})
	stats, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Published)

	pending, err := ob.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, pending)
}

type flakyPublisher struct {
	failOn    string
	published []string
}

func (p *flakyPublisher) Publish(e shared.Event) error {
	if e.AggregateID() == p.failOn {
		return errors.New("broker down")
	}
	p.published = append(p.published, e.AggregateID())
	return nil
}

func TestRelayOutbox_FailureKeepsEventForRetry(t *testing.T) {
	store := memory.NewStore()
	ob := store.Outbox()
	record(t, ob, "c1", "c2", "c3")

	pub := &flakyPublisher{failOn: "c2"}
	job := NewRelayOutboxJob(store, ob, pub, nil, RelayOutboxConfig{BatchSize: 10})

	stats, err := job.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, stats.Published)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, []string{"c1"}, pub.published)

	pub.failOn = ""
	stats, err = job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Published)
	assert.Equal(t, []string{"c1", "c2", "c3"}, pub.published)
}

func TestRelayOutbox_Defaults(t *testing.T) {
	store := memory.NewStore()
	job := NewRelayOutboxJob(store, store.Outbox(), &flakyPublisher{}, nil, RelayOutboxConfig{})
	assert.Equal(t, DefaultRelayOutboxConfig(), job.config)
	assert.Equal(t, RelayOutboxJobName, job.Name())
	assert.NotEmpty(t, job.Description())
}

func TestRelayOutbox_NeverPublishesRolledBackEvents(t *testing.T) {
	store := memory.NewStore()
	ob := store.Outbox()
	pub := &flakyPublisher{}
	job := NewRelayOutboxJob(store, ob, pub, nil, RelayOutboxConfig{BatchSize: 10})
	boom := errors.New("approval failed")

	var (
		wg     sync.WaitGroup
		stats  RelayStats
		runErr error
	)
	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, ob.Record(ctx, shared.NewPaymentApprovedEvent("p1", "s1", "c1", "r1", now)))

		started := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			close(started)
			stats, runErr = job.RunOnce(context.Background())
		}()
		<-started
		time.Sleep(20 * time.Millisecond)
		return boom
	})
	require.ErrorIs(t, err, boom)
	wg.Wait()

	require.NoError(t, runErr)
	assert.Zero(t, stats.Fetched)
	assert.Empty(t, pub.published)
}

func TestRelayOutbox_ConcurrentRelaysPublishOnce(t *testing.T) {
	store := memory.NewStore()
	ob := store.Outbox()
	ids := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8"}
	record(t, ob, ids...)

	bus := messaging.NewLocalBus(messaging.LocalConfig{})
	defer bus.Close()

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
	)
	require.NoError(t, bus.Subscribe(shared.EventCourseStructureChanged, func(e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen[e.AggregateID()]++
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		job := NewRelayOutboxJob(store, ob, bus, nil, RelayOutboxConfig{BatchSize: 3, MaxBatches: 10})
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := job.RunOnce(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, seen, len(ids))
	for _, id := range ids {
		assert.Equal(t, 1, seen[id], id)
	}
}
