// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment is the deployment stage named by APP_ENV.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config is the whole service configuration.
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	HTTP          HTTPConfig
	Scheduler     SchedulerConfig
	Notification  NotificationConfig
	Features      *FeatureFlags
	Observability ObservabilityConfig
}

type AppConfig struct {
	Name            string
	Environment     Environment
	Debug           bool
	Version         string
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects PostgreSQL. An empty URL outside production means
// the in-process store.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AutoMigrate     bool
}

// RedisConfig is used by the catalog cache and the distributed event bus.
// URL, when set, wins over Host/Port/Password/DB.
type RedisConfig struct {
	URL          string
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Disabled     bool
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// "*" allows any origin; empty disables CORS.
	AllowedOrigins []string
}

// SchedulerConfig drives the outbox relay job.
type SchedulerConfig struct {
	Enabled         bool
	TickInterval    time.Duration
	RelayInterval   time.Duration
	RelayBatchSize  int
	RelayMaxBatches int
	JobTimeout      time.Duration
}

// NotificationConfig points at the notification webhook. Without a URL
// notifications are only logged.
type NotificationConfig struct {
	WebhookURL    string
	WebhookSecret string
	Timeout       time.Duration
	MaxAttempts   int
}

type ObservabilityConfig struct {
	LogLevel string
}

// Load loads configuration from environment variables. A .env file in the
// working directory, or the file named by ENV_FILE, seeds variables that are
// not already set.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		App:           loadAppConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		HTTP:          loadHTTPConfig(),
		Scheduler:     loadSchedulerConfig(),
		Notification:  loadNotificationConfig(),
		Features:      LoadFeatureFlags(),
		Observability: ObservabilityConfig{LogLevel: getEnv("LOG_LEVEL", "info")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadDotEnv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", string(EnvDevelopment)))
	return AppConfig{
		Name:            getEnv("APP_NAME", "coursehub-core"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from DB_*
// when at least a host and a user are given.
func databaseURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	host, user := os.Getenv("DB_HOST"), os.Getenv("DB_USER")
	if host == "" || user == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, os.Getenv("DB_PASSWORD")),
		Host:     net.JoinHostPort(host, getEnv("DB_PORT", "5432")),
		Path:     "/" + getEnv("DB_NAME", "coursehub"),
		RawQuery: "sslmode=" + getEnv("DB_SSLMODE", "disable"),
	}
	return u.String()
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             databaseURL(),
		MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		MinConns:        getEnvInt("DB_MIN_CONNS", 2),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		Host:         getEnv("REDIS_HOST", "localhost"),
		Port:         getEnvInt("REDIS_PORT", 6379),
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           getEnvInt("REDIS_DB", 0),
		PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		Disabled:     getEnvBool("REDIS_DISABLED", false),
	}
}

func loadHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:           getEnv("HTTP_HOST", "0.0.0.0"),
		Port:           getEnvInt("HTTP_PORT", 8080),
		ReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getEnvDuration("HTTP_IDLE_TIMEOUT", time.Minute),
		AllowedOrigins: getEnvList("HTTP_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:         getEnvBool("SCHEDULER_ENABLED", true),
		TickInterval:    getEnvDuration("SCHEDULER_TICK_INTERVAL", time.Second),
		RelayInterval:   getEnvDuration("SCHEDULER_RELAY_INTERVAL", 2*time.Second),
		RelayBatchSize:  getEnvInt("SCHEDULER_RELAY_BATCH_SIZE", 100),
		RelayMaxBatches: getEnvInt("SCHEDULER_RELAY_MAX_BATCHES", 10),
		JobTimeout:      getEnvDuration("SCHEDULER_JOB_TIMEOUT", 30*time.Second),
	}
}

func loadNotificationConfig() NotificationConfig {
	return NotificationConfig{
		WebhookURL:    os.Getenv("NOTIFICATION_WEBHOOK_URL"),
		WebhookSecret: os.Getenv("NOTIFICATION_WEBHOOK_SECRET"),
		Timeout:       getEnvDuration("NOTIFICATION_TIMEOUT", 5*time.Second),
		MaxAttempts:   getEnvInt("NOTIFICATION_MAX_ATTEMPTS", 3),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	check(c.Database.URL != "" || !c.IsProduction(), "DATABASE_URL is required in production")
	check(c.HTTP.Port >= 1 && c.HTTP.Port <= 65535, "HTTP_PORT must be 1-65535")
	check(c.Database.MaxConns >= 1, "DB_MAX_CONNS must be positive")
	check(c.Database.MinConns >= 0 && c.Database.MinConns <= c.Database.MaxConns, "DB_MIN_CONNS must be 0..DB_MAX_CONNS")
	check(c.Scheduler.RelayInterval >= 100*time.Millisecond, "SCHEDULER_RELAY_INTERVAL must be at least 100ms")
	check(c.Scheduler.RelayBatchSize >= 1 && c.Scheduler.RelayBatchSize <= 1000, "SCHEDULER_RELAY_BATCH_SIZE must be 1-1000")
	check(c.Notification.MaxAttempts >= 1 && c.Notification.MaxAttempts <= 10, "NOTIFICATION_MAX_ATTEMPTS must be 1-10")
	if hook := c.Notification.WebhookURL; hook != "" {
		u, err := url.Parse(hook)
		check(err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "",
			"NOTIFICATION_WEBHOOK_URL must be an http(s) URL")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.App.Environment == EnvProduction }

// UseMemoryStore reports whether the in-process store replaces PostgreSQL.
func (c *Config) UseMemoryStore() bool {
	return c.Database.URL == "" && !c.IsProduction()
}

// Unset, empty and unparsable variables fall back to the default.

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parsedEnv[T any](key string, def T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getEnvBool(key string, def bool) bool { return parsedEnv(key, def, strconv.ParseBool) }
func getEnvInt(key string, def int) int    { return parsedEnv(key, def, strconv.Atoi) }

func getEnvDuration(key string, def time.Duration) time.Duration {
	return parsedEnv(key, def, time.ParseDuration)
}

// getEnvList splits a comma-separated list, dropping blanks.
func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
