// Package redis holds the Redis-backed pieces of the marketplace: a JSON
// cache, the read-through CachedCatalog, and the Pub/Sub transport of the
// distributed event bus.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrMiss means the key is absent or expired.
	ErrMiss     = errors.New("redis: cache miss")
	errEmptyKey = errors.New("redis: empty key")
)

// EventsChannel carries the distributed event bus.
const EventsChannel = "coursehub:events"

const (
	// structureTTL bounds staleness if an invalidation is lost.
	structureTTL = 10 * time.Minute
	// lessonIndexTTL may outlive the structure: a lesson never changes course.
	lessonIndexTTL = time.Hour
)

func courseKey(id string) string          { return "course:" + id }
func structureKey(courseID string) string { return "course:" + courseID + ":structure" }
func lessonCourseKey(id string) string    { return "lesson:" + id + ":course" }

// Config selects the server either by URL or by Host/Port/Password/DB.
// Zero pool and timeout fields keep the go-redis defaults.
type Config struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) options() (*redis.Options, error) {
	opts := &redis.Options{
		Addr:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Password: c.Password,
		DB:       c.DB,
	}
	if c.URL != "" {
		parsed, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = parsed
	}
	opts.PoolSize = max(opts.PoolSize, c.PoolSize)
	opts.MinIdleConns = max(opts.MinIdleConns, c.MinIdleConns)
	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		opts.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		opts.WriteTimeout = c.WriteTimeout
	}
	return opts, nil
}

// Cache stores JSON values with a TTL.
type Cache struct {
	client *redis.Client
}

// NewCache connects and pings the server within the dial timeout.
func NewCache(cfg Config) (*Cache, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), max(cfg.DialTimeout, 5*time.Second))
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Close() error                   { return c.client.Close() }
func (c *Cache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Set stores value as JSON.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get decodes the JSON stored at key into dest.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.raw(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return nil
}

func (c *Cache) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) GetString(ctx context.Context, key string) (string, error) {
	data, err := c.raw(ctx, key)
	return string(data), err
}

func (c *Cache) raw(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errEmptyKey
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return data, err
}

// Delete removes keys; missing keys are ignored.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
