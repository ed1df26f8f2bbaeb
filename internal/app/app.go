// Package app wires configuration into a running engine. The api and
// worker commands share it so both processes see the same backend.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/services"
	"github.com/jwebster45206/quest-engine/internal/services/events"
	internalstorage "github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/internal/storage/sqlite"
	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/scenario"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

// Options select optional parts of the wiring.
type Options struct {
	// RequireRedis connects to Redis even when storage lives elsewhere.
	// The worker sets it; a worker always shares its store with the api,
	// so it refuses to run on a local locker over a file store.
	RequireRedis bool
}

// App holds the wired components. Redis and Broadcaster are nil when no
// Redis connection was made.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Registry    *scenario.Registry
	Store       storage.Storage
	Redis       *redis.Client
	Broadcaster *events.Broadcaster
	Locker      engine.Locker
	Engine      *engine.Engine

	closers []func() error
}

// New loads scenarios, opens the storage backend and builds the engine.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	lockerKind := cfg.EffectiveLocker()
	if lockerKind == config.LockerLocal && (cfg.StorageBackend == config.BackendRedis ||
		(opts.RequireRedis && cfg.StorageBackend == config.BackendSQLite)) {
		return nil, fmt.Errorf("%s storage is shared between processes; LOCKER must be %s",
			cfg.StorageBackend, config.LockerRedis)
	}

	scenarios, err := scenario.LoadDir(ctx, cfg.ScenarioDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}
	a.Registry, err = scenario.NewRegistry(scenarios...)
	if err != nil {
		return nil, fmt.Errorf("failed to build scenario registry: %w", err)
	}
	log.Info("Scenarios loaded", "count", len(scenarios), "dir", cfg.ScenarioDir)

	if cfg.StorageBackend == config.BackendRedis || lockerKind == config.LockerRedis || opts.RequireRedis {
		client, err := internalstorage.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Broadcaster = events.NewBroadcaster(client, log)
	}

	switch cfg.StorageBackend {
	case config.BackendRedis:
		a.Store = internalstorage.NewRedisStorageFromClient(a.Redis, log)
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
	case config.BackendMemory:
		a.Store = storage.NewMockStorage()
	default:
		_ = a.Close()
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	log.Info("Storage backend ready", "backend", cfg.StorageBackend)

	engineOpts := []engine.Option{
		engine.WithClockSkew(cfg.ClockSkew),
		engine.WithDefaultTimeZone(cfg.DefaultTimeZone),
		engine.WithOperationTimeout(cfg.OperationTimeout),
		engine.WithEconomy(services.NewLogEconomy(log)),
	}
	switch lockerKind {
	case config.LockerRedis:
		a.Locker = internalstorage.NewRedisLocker(a.Redis, cfg.LockTTL, log)
	default:
		a.Locker = engine.NewKeyedMutex()
	}
	engineOpts = append(engineOpts, engine.WithLocker(a.Locker))
	if a.Broadcaster != nil {
		engineOpts = append(engineOpts, engine.WithNotifier(a.Broadcaster))
	}
	log.Info("Locker ready", "locker", lockerKind)
	a.Engine, err = engine.New(a.Registry, a.Store, log, engineOpts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// NewRenderer picks the text renderer named in cfg.
func NewRenderer(cfg *config.Config, log *slog.Logger) services.Renderer {
	switch cfg.Renderer {
	case config.RendererAnthropic:
		return services.NewAnthropicRenderer(cfg.AnthropicAPIKey, cfg.ModelName, log)
	default:
		return services.PassthroughRenderer{}
	}
}

// Close releases every connection New opened, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
