package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/coursehub/coursehub-core/internal/infrastructure/messaging"
)

// PubSub adapts a go-redis client to messaging.RedisClient. Close releases
// the subscriptions only; the client stays owned by the Cache.
type PubSub struct {
	client *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
}

var _ messaging.RedisClient = (*PubSub)(nil)

// NewPubSub creates a pub/sub adapter over the cache's client.
func NewPubSub(cache *Cache) *PubSub {
	return &PubSub{client: cache.client}
}

// Publish implements messaging.RedisClient.
func (p *PubSub) Publish(ctx context.Context, channel string, message interface{}) error {
	if channel == "" {
		return errEmptyKey
	}
	return p.client.Publish(ctx, channel, message).Err()
}

// Subscribe implements messaging.RedisClient. The returned channel closes
// when ctx is cancelled or the adapter is closed.
func (p *PubSub) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	sub := p.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	p.mu.Lock()
	p.subs = append(p.subs, sub)
	p.mu.Unlock()

	out := make(chan messaging.RedisMessage)
	go func() {
		defer close(out)
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- messaging.RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close implements messaging.RedisClient.
func (p *PubSub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, sub := range p.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.subs = nil
	return firstErr
}
