package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks the variables these tests depend on; getEnv treats empty as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENV_FILE", "APP_ENV", "APP_NAME", "APP_DEBUG", "DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"HTTP_PORT", "HTTP_ALLOWED_ORIGINS", "SCHEDULER_RELAY_INTERVAL", "SCHEDULER_RELAY_BATCH_SIZE",
		"NOTIFICATION_WEBHOOK_URL", "NOTIFICATION_MAX_ATTEMPTS", "NOTIFICATION_TIMEOUT",
		"FEATURE_CATALOG_CACHE", "FEATURE_DISTRIBUTED_EVENTS", "FEATURE_NOTIFICATIONS", "FEATURE_EMBEDDED_RELAY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "coursehub-core", cfg.App.Name)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.App.Debug)
	assert.True(t, cfg.UseMemoryStore())
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.RelayInterval)
	assert.Equal(t, 100, cfg.Scheduler.RelayBatchSize)
	assert.Equal(t, 3, cfg.Notification.MaxAttempts)
	assert.True(t, cfg.Features.IsEnabled(FeatureCatalogCache))
	assert.False(t, cfg.Features.IsEnabled(FeatureDistributedEvents))
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "staging")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "app")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("SCHEDULER_RELAY_INTERVAL", "500ms")
	t.Setenv("FEATURE_DISTRIBUTED_EVENTS", "true")
	t.Setenv("NOTIFICATION_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.App.Debug)
	assert.Equal(t, "postgres://app:@db:5432/coursehub?sslmode=disable", cfg.Database.URL)
	assert.False(t, cfg.UseMemoryStore())
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.Scheduler.RelayInterval)
	assert.True(t, cfg.Features.IsEnabled(FeatureDistributedEvents))
	assert.Equal(t, 5*time.Second, cfg.Notification.Timeout, "unparsable values fall back to the default")
}

func TestLoad_ValidationErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_PORT", "70000")
	t.Setenv("SCHEDULER_RELAY_BATCH_SIZE", "5000")
	t.Setenv("NOTIFICATION_WEBHOOK_URL", "ftp://hooks")

	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{
		"DATABASE_URL is required in production",
		"HTTP_PORT must be 1-65535",
		"SCHEDULER_RELAY_BATCH_SIZE must be 1-1000",
		"NOTIFICATION_WEBHOOK_URL must be an http(s) URL",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestValidate_PoolBounds(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_MAX_CONNS", "2")
	t.Setenv("DB_MIN_CONNS", "4")

	_, err := Load()
	assert.ErrorContains(t, err, "DB_MIN_CONNS must be 0..DB_MAX_CONNS")
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_NAME_FROM_FILE_TEST=yes\nNOTIFICATION_WEBHOOK_SECRET_TEST=s3cret\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("APP_NAME_FROM_FILE_TEST")
		os.Unsetenv("NOTIFICATION_WEBHOOK_SECRET_TEST")
	})
	t.Setenv("ENV_FILE", path)

	_, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "yes", os.Getenv("APP_NAME_FROM_FILE_TEST"))
	assert.Equal(t, "s3cret", os.Getenv("NOTIFICATION_WEBHOOK_SECRET_TEST"))
}

func TestLoad_MissingEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	_, err := Load()
	assert.ErrorContains(t, err, "missing.env")
}
