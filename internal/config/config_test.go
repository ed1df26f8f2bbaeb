package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendRedis, cfg.StorageBackend)
	assert.Equal(t, 5*time.Minute, cfg.ClockSkew)
	assert.Equal(t, 10*time.Second, cfg.OperationTimeout)
	assert.Equal(t, "UTC", cfg.DefaultTimeZone)
	assert.Equal(t, RendererNone, cfg.Renderer)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("STORAGE_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/q.db")
	t.Setenv("CLOCK_SKEW", "90s")
	t.Setenv("WORKER_COUNT", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, BackendSQLite, cfg.StorageBackend)
	assert.Equal(t, 90*time.Second, cfg.ClockSkew)
	assert.Equal(t, 4, cfg.WorkerCount)
}

func TestEffectiveLocker(t *testing.T) {
	tests := []struct {
		backend string
		locker  string
		want    string
	}{
		{BackendRedis, "", LockerRedis},
		{BackendSQLite, "", LockerRedis},
		{BackendMemory, "", LockerLocal},
		{BackendSQLite, "LOCAL", LockerLocal},
		{BackendMemory, "redis", LockerRedis},
	}
	for _, tt := range tests {
		t.Run(tt.backend+"/"+tt.locker, func(t *testing.T) {
			cfg := Config{StorageBackend: tt.backend, Locker: tt.locker}
			assert.Equal(t, tt.want, cfg.EffectiveLocker())
		})
	}
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("LOCK_TTL", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			StorageBackend:  BackendMemory,
			Renderer:        RendererNone,
			DefaultTimeZone: "UTC",
			LockTTL:         time.Second,
			WorkerCount:     1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.StorageBackend = "postgres" }, true},
		{"sqlite without path", func(c *Config) { c.StorageBackend = BackendSQLite }, true},
		{"anthropic without key", func(c *Config) { c.Renderer = RendererAnthropic }, true},
		{"anthropic with key", func(c *Config) { c.Renderer = RendererAnthropic; c.AnthropicAPIKey = "k" }, false},
		{"unknown renderer", func(c *Config) { c.Renderer = "ollama" }, true},
		{"negative skew", func(c *Config) { c.ClockSkew = -time.Second }, true},
		{"zero lock ttl", func(c *Config) { c.LockTTL = 0 }, true},
		{"no workers", func(c *Config) { c.WorkerCount = 0 }, true},
		{"bad zone", func(c *Config) { c.DefaultTimeZone = "Moon/Base" }, true},
		{"local locker on redis", func(c *Config) { c.StorageBackend = BackendRedis; c.Locker = LockerLocal }, true},
		{"local locker on sqlite", func(c *Config) { c.StorageBackend = BackendSQLite; c.SQLitePath = "q.db"; c.Locker = "Local" }, false},
		{"unknown locker", func(c *Config) { c.Locker = "etcd" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
