package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/engine"
)

const (
	lockPrefix     = "user-lock:"
	lockRetryMin   = 10 * time.Millisecond
	lockRetryMax   = 250 * time.Millisecond
	releaseTimeout = 2 * time.Second
)

// releaseLockScript deletes the lock only if we still own it.
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

var _ engine.Locker = (*RedisLocker)(nil)

// RedisLocker is a per-key exclusive lock shared by every process using the
// same Redis. The TTL bounds how long a crashed holder blocks others.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

// Lock blocks until key is acquired or ctx is done. The returned func
// releases the lock and is safe to call more than once.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := lockPrefix + key
	token := uuid.New().String()
	wait := lockRetryMin

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
		case <-time.After(wait):
		}
		wait = min(wait*2, lockRetryMax)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		// The caller's ctx may already be done (timeouts), so release on
		// its own deadline.
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := releaseLockScript.Run(rctx, l.client, []string{lockKey}, token).Err(); err != nil {
			l.logger.Error("Failed to release user lock", "key", key, "error", err)
		}
	}, nil
}
