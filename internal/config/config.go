package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"

	RendererNone      = "none"
	RendererAnthropic = "anthropic"

	// LockerRedis shares per-user locks with every process on the same
	// Redis; LockerLocal only serializes callers inside one process.
	LockerRedis = "redis"
	LockerLocal = "local"
)

type Config struct {
	Port        string     `env:"PORT" envDefault:"8080"`
	Environment string     `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelRaw string     `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel    slog.Level `env:"-"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"redis"`
	RedisURL       string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"data/quest-engine.db"`
	ScenarioDir    string `env:"SCENARIO_DIR" envDefault:"data/scenarios"`

	ClockSkew        time.Duration `env:"CLOCK_SKEW" envDefault:"5m"`
	DefaultTimeZone  string        `env:"DEFAULT_TIME_ZONE" envDefault:"UTC"`
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" envDefault:"10s"`
	LockTTL          time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	Locker           string        `env:"LOCKER"`

	Renderer        string `env:"RENDERER" envDefault:"none"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	ModelName       string `env:"MODEL_NAME" envDefault:"claude-haiku-4-5"`

	WorkerCount int    `env:"WORKER_COUNT" envDefault:"2"`
	WorkerID    string `env:"WORKER_ID"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	switch c.StorageBackend {
	case BackendRedis, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want redis, sqlite or memory)", c.StorageBackend)
	}
	if c.StorageBackend == BackendSQLite && strings.TrimSpace(c.SQLitePath) == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
	}

	c.Locker = c.EffectiveLocker()
	switch c.Locker {
	case LockerRedis:
	case LockerLocal:
		if c.StorageBackend == BackendRedis {
			return fmt.Errorf("LOCKER=local cannot guard the shared redis backend")
		}
	default:
		return fmt.Errorf("unknown LOCKER %q (want redis or local)", c.Locker)
	}

	c.Renderer = strings.ToLower(strings.TrimSpace(c.Renderer))
	switch c.Renderer {
	case RendererNone:
	case RendererAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when RENDERER=anthropic")
		}
	default:
		return fmt.Errorf("unknown RENDERER %q (want none or anthropic)", c.Renderer)
	}

	if c.ClockSkew < 0 {
		return fmt.Errorf("CLOCK_SKEW must not be negative")
	}
	if c.OperationTimeout < 0 {
		return fmt.Errorf("OPERATION_TIMEOUT must not be negative")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if _, err := time.LoadLocation(c.DefaultTimeZone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIME_ZONE %q: %w", c.DefaultTimeZone, err)
	}
	return nil
}

// EffectiveLocker returns the configured locker, or the default for the
// storage backend: redis for any store another process can open, local
// for the in-memory store.
func (c *Config) EffectiveLocker() string {
	if l := strings.ToLower(strings.TrimSpace(c.Locker)); l != "" {
		return l
	}
	if strings.ToLower(strings.TrimSpace(c.StorageBackend)) == BackendMemory {
		return LockerLocal
	}
	return LockerRedis
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
