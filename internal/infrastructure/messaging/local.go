// Package messaging carries relayed domain events to subscribers: LocalBus
// within one process, RedisBus across API and worker instances.
package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

var (
	ErrBusClosed    = errors.New("messaging: bus closed")
	ErrHandlerPanic = errors.New("messaging: handler panicked")
	errNilHandler   = errors.New("messaging: nil handler")
	errNilEvent     = errors.New("messaging: nil event")
)

// LocalConfig configures a LocalBus.
type LocalConfig struct {
	// Async runs handlers on at most Workers goroutines and makes Publish
	// return immediately. Otherwise Publish runs handlers in order and
	// returns their joined errors.
	Async   bool
	Workers int
	Logger  *slog.Logger
}

func DefaultLocalConfig() LocalConfig {
	return LocalConfig{Async: true, Workers: 10}
}

// LocalBus dispatches events to handlers registered in this process.
type LocalBus struct {
	async  bool
	slots  chan struct{}
	done   chan struct{}
	log    *slog.Logger
	counts *Counters

	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool

	inflight sync.WaitGroup
}

func NewLocalBus(cfg LocalConfig) *LocalBus {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LocalBus{
		async:  cfg.Async,
		slots:  make(chan struct{}, cfg.Workers),
		done:   make(chan struct{}),
		log:    cfg.Logger.With("component", "event_bus"),
		counts: newCounters(),
		byType: make(map[shared.EventType][]shared.EventHandler),
	}
}

// Subscribe registers h for one event type.
func (b *LocalBus) Subscribe(t shared.EventType, h shared.EventHandler) error {
	return b.register(h, func() { b.byType[t] = append(b.byType[t], h) })
}

// SubscribeAll registers h for every event type.
func (b *LocalBus) SubscribeAll(h shared.EventHandler) error {
	return b.register(h, func() { b.wildcard = append(b.wildcard, h) })
}

func (b *LocalBus) register(h shared.EventHandler, add func()) error {
	if h == nil {
		return errNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	add()
	return nil
}

// handlersFor returns a copy so dispatch runs without the lock.
func (b *LocalBus) handlersFor(t shared.EventType) ([]shared.EventHandler, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	hs := make([]shared.EventHandler, 0, len(b.byType[t])+len(b.wildcard))
	hs = append(hs, b.byType[t]...)
	return append(hs, b.wildcard...), nil
}

// Publish delivers e to the handlers for its type, then to wildcard handlers.
func (b *LocalBus) Publish(e shared.Event) error {
	if e == nil {
		return errNilEvent
	}
	hs, err := b.handlersFor(e.EventType())
	if err != nil {
		return err
	}
	b.counts.published(e.EventType())

	if b.async {
		for _, h := range hs {
			b.spawn(e, h)
		}
		return nil
	}

	var errs []error
	for _, h := range hs {
		if err := b.run(e, h); err != nil {
			b.log.Error("event handler failed", "event_type", e.EventType(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *LocalBus) spawn(e shared.Event, h shared.EventHandler) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		select {
		case b.slots <- struct{}{}:
		case <-b.done:
			return
		}
		defer func() { <-b.slots }()
		if err := b.run(e, h); err != nil {
			b.log.Error("event handler failed", "event_type", e.EventType(), "error", err)
		}
	}()
}

func (b *LocalBus) run(e shared.Event, h shared.EventHandler) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		b.counts.handled(time.Since(start), err)
	}()
	return h(e)
}

// Wait blocks until async handlers started so far have returned.
func (b *LocalBus) Wait() { b.inflight.Wait() }

// Close rejects further publishes, drops queued async handlers and waits for
// running ones.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.inflight.Wait()
	return nil
}

func (b *LocalBus) Counters() *Counters { return b.counts }

// Counters tracks publishes and handler outcomes.
type Counters struct {
	mu         sync.Mutex
	byType     map[shared.EventType]int64
	executions int64
	failures   int64
	busy       time.Duration
}

func newCounters() *Counters {
	return &Counters{byType: make(map[shared.EventType]int64)}
}

func (c *Counters) published(t shared.EventType) {
	c.mu.Lock()
	c.byType[t]++
	c.mu.Unlock()
}

func (c *Counters) handled(d time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executions++
	c.busy += d
	if err != nil {
		c.failures++
	}
}

// Stats is a point-in-time copy of Counters.
type Stats struct {
	Published       int64
	PublishedByType map[shared.EventType]int64
	Executions      int64
	Failures        int64
	MeanHandlerTime time.Duration
}

func (c *Counters) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		PublishedByType: make(map[shared.EventType]int64, len(c.byType)),
		Executions:      c.executions,
		Failures:        c.failures,
	}
	for t, n := range c.byType {
		s.PublishedByType[t] = n
		s.Published += n
	}
	if c.executions > 0 {
		s.MeanHandlerTime = c.busy / time.Duration(c.executions)
	}
	return s
}
