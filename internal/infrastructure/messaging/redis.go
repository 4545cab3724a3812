package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// DefaultChannel is the Pub/Sub channel used when RedisConfig names none.
const DefaultChannel = "coursehub:events"

// RedisClient is the Pub/Sub subset of a Redis client.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage is one received Pub/Sub message, or a receive error.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

type RedisConfig struct {
	Client  RedisClient
	Channel string
	// InstanceID tags outgoing messages; a random one is generated if empty.
	InstanceID string
	Local      LocalConfig
	Logger     *slog.Logger
}

// RedisBus broadcasts events over Redis Pub/Sub and dispatches them to the
// handlers of every instance. The publisher dispatches locally right away and
// ignores its own message when it comes back.
type RedisBus struct {
	client  RedisClient
	local   *LocalBus
	channel string
	self    string
	log     *slog.Logger

	stop     context.CancelFunc
	ctx      context.Context
	listener sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// wireEvent is the JSON published on the channel.
type wireEvent struct {
	From        string           `json:"instance_id"`
	Type        shared.EventType `json:"event_type"`
	AggregateID string           `json:"aggregate_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Payload     map[string]any   `json:"payload"`
}

// NewRedisBus subscribes to the channel and starts the listener.
func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	if cfg.Client == nil {
		return nil, errors.New("messaging: redis client is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Local.Logger == nil {
		cfg.Local.Logger = cfg.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := cfg.Client.Subscribe(ctx, cfg.Channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("messaging: subscribe %s: %w", cfg.Channel, err)
	}

	b := &RedisBus{
		client:  cfg.Client,
		local:   NewLocalBus(cfg.Local),
		channel: cfg.Channel,
		self:    cfg.InstanceID,
		log:     cfg.Logger.With("component", "redis_event_bus", "instance_id", cfg.InstanceID),
		stop:    cancel,
		ctx:     ctx,
	}
	b.listener.Add(1)
	go b.listen(msgs)
	return b, nil
}

func (b *RedisBus) Subscribe(t shared.EventType, h shared.EventHandler) error {
	return b.local.Subscribe(t, h)
}

func (b *RedisBus) SubscribeAll(h shared.EventHandler) error {
	return b.local.SubscribeAll(h)
}

// Publish broadcasts e, then dispatches it locally. A broadcast failure is
// unavailable and nothing is dispatched, so the outbox relay retries later.
func (b *RedisBus) Publish(e shared.Event) error {
	if e == nil {
		return errNilEvent
	}
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrBusClosed
	}

	msg, err := json.Marshal(wireEvent{
		From:        b.self,
		Type:        e.EventType(),
		AggregateID: e.AggregateID(),
		OccurredAt:  e.OccurredAt(),
		Payload:     e.Payload(),
	})
	if err != nil {
		return fmt.Errorf("messaging: encode %s: %w", e.EventType(), err)
	}
	if err := b.client.Publish(b.ctx, b.channel, string(msg)); err != nil {
		return shared.Unavailable("messaging", "Publish", err)
	}
	return b.local.Publish(e)
}

func (b *RedisBus) listen(msgs <-chan RedisMessage) {
	defer b.listener.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if m.Err != nil {
				b.log.Error("pubsub receive failed", "error", m.Err)
				continue
			}
			b.deliver(m.Payload)
		}
	}
}

func (b *RedisBus) deliver(payload string) {
	var w wireEvent
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		b.log.Warn("dropping undecodable event", "error", err)
		return
	}
	if w.From == b.self {
		return
	}
	e := &shared.RecordedEvent{Type: w.Type, AggID: w.AggregateID, At: w.OccurredAt, Values: w.Payload}
	if err := b.local.Publish(e); err != nil {
		b.log.Error("remote event handling failed", "event_type", w.Type, "from", w.From, "error", err)
	}
}

// Close stops the listener, drains local handlers and closes the client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.stop()
	b.listener.Wait()
	_ = b.local.Close()
	return b.client.Close()
}

func (b *RedisBus) Counters() *Counters { return b.local.Counters() }
