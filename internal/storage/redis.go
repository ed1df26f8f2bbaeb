package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

// Key layout:
//
//	event-seq:<user>   INCR counter for event ids
//	events:<user>      ZSET, score occurred_at ms, member "%020d:<json>"
//	narrative:<user>   JSON NarrativeState
//	narrative-users    SET of users with a narrative
//	ledger:<user>      HASH quest_id -> JSON LedgerEntry
//	balances:<user>    HASH balance key -> int
const (
	eventSeqPrefix  = "event-seq:"
	eventsPrefix    = "events:"
	narrativePrefix = "narrative:"
	usersKey        = "narrative-users"
	ledgerPrefix    = "ledger:"
	balancesPrefix  = "balances:"
)

// appendEventsScript assigns ids and stores a batch of (score, json) pairs
// in one step so a crash cannot leave an id without its event or half a
// batch.
var appendEventsScript = redis.NewScript(`
local ids = {}
for i = 1, #ARGV, 2 do
	local id = redis.call("INCR", KEYS[1])
	local padded = string.rep("0", 20 - string.len(tostring(id))) .. tostring(id)
	redis.call("ZADD", KEYS[2], ARGV[i], padded .. ":" .. ARGV[i + 1])
	ids[#ids + 1] = id
end
return ids
`)

// applyRewardScript writes the ledger entry and the balance increments
// together, or returns the existing entry untouched.
var applyRewardScript = redis.NewScript(`
local existing = redis.call("HGET", KEYS[1], ARGV[1])
if existing then
	return {0, existing}
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
for i = 3, #ARGV, 2 do
	redis.call("HINCRBY", KEYS[2], ARGV[i], ARGV[i + 1])
end
return {1, ARGV[2]}
`)

// RedisStorage implements storage.Storage on Redis.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStorage implements Storage interface
var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage connects to redisURL, which may be a host:port address or
// a redis:// URL.
func NewRedisStorage(redisURL string, logger *slog.Logger) (*RedisStorage, error) {
	client, err := NewRedisClient(redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisStorageFromClient(client, logger), nil
}

// NewRedisClient builds a client from an address or redis:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if strings.Contains(redisURL, "://") {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// NewRedisStorageFromClient wraps an existing client.
func NewRedisStorageFromClient(client *redis.Client, logger *slog.Logger) *RedisStorage {
	return &RedisStorage{client: client, logger: logger}
}

// Client exposes the underlying client for the queue, broadcaster and lock.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Event log

func (r *RedisStorage) AppendEvent(ctx context.Context, e narrative.Event) (int64, error) {
	ids, err := r.AppendEvents(ctx, []narrative.Event{e})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (r *RedisStorage) AppendEvents(ctx context.Context, events []narrative.Event) ([]int64, error) {
	userID, err := narrative.BatchUser(events)
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, 2*len(events))
	for _, e := range events {
		e.ID = 0
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}
		args = append(args, e.OccurredAt.UnixMilli(), string(data))
	}

	ids, err := appendEventsScript.Run(ctx, r.client,
		[]string{eventSeqPrefix + userID, eventsPrefix + userID},
		args...,
	).Int64Slice()
	if err != nil {
		r.logger.Error("Failed to append events", "user_id", userID, "count", len(events), "error", err)
		return nil, fmt.Errorf("failed to append events: %w", err)
	}
	return ids, nil
}

func (r *RedisStorage) QueryEvents(ctx context.Context, userID string, filter narrative.EventFilter) ([]narrative.Event, error) {
	// Scores are whole milliseconds; the range is widened here and filter.Match
	// applies the exact bounds.
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if filter.From != nil {
		rng.Min = strconv.FormatInt(filter.From.UnixMilli()-1, 10)
	}
	if filter.To != nil {
		rng.Max = strconv.FormatInt(filter.To.UnixMilli()+1, 10)
	}

	members, err := r.client.ZRangeByScore(ctx, eventsPrefix+userID, rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	events := make([]narrative.Event, 0, len(members))
	for _, m := range members {
		e, err := decodeEventMember(m)
		if err != nil {
			r.logger.Error("Failed to decode event", "user_id", userID, "error", err)
			return nil, err
		}
		if filter.Match(e) {
			events = append(events, e)
		}
	}
	narrative.SortEvents(events)
	return events, nil
}

func decodeEventMember(member string) (narrative.Event, error) {
	idPart, body, ok := strings.Cut(member, ":")
	if !ok {
		return narrative.Event{}, fmt.Errorf("malformed event member %q", member)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return narrative.Event{}, fmt.Errorf("malformed event id %q: %w", idPart, err)
	}
	var e narrative.Event
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return narrative.Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	e.ID = id
	return e, nil
}

// Narrative state

func (r *RedisStorage) CreateNarrativeState(ctx context.Context, s *narrative.NarrativeState) error {
	if s == nil {
		return errors.New("narrative state cannot be nil")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal narrative state: %w", err)
	}

	created, err := r.client.SetNX(ctx, narrativePrefix+s.UserID, data, 0).Result()
	if err != nil {
		r.logger.Error("Failed to create narrative state", "user_id", s.UserID, "error", err)
		return fmt.Errorf("failed to create narrative state: %w", err)
	}
	if !created {
		existing, err := r.LoadNarrativeState(ctx, s.UserID)
		scenarioID := "unknown"
		if err == nil {
			scenarioID = existing.ScenarioID
		}
		return narrative.Conflictf("user %q already has a narrative in scenario %q", s.UserID, scenarioID).
			With("user_id", s.UserID).
			With("scenario_id", scenarioID)
	}

	if err := r.client.SAdd(ctx, usersKey, s.UserID).Err(); err != nil {
		r.logger.Warn("Failed to index narrative user", "user_id", s.UserID, "error", err)
	}
	return nil
}

func (r *RedisStorage) LoadNarrativeState(ctx context.Context, userID string) (*narrative.NarrativeState, error) {
	data, err := r.client.Get(ctx, narrativePrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, narrative.NotFoundf("no narrative for user %q", userID).With("user_id", userID)
		}
		r.logger.Error("Failed to load narrative state", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to load narrative state: %w", err)
	}

	var s narrative.NarrativeState
	if err := json.Unmarshal(data, &s); err != nil {
		r.logger.Error("Failed to unmarshal narrative state", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to unmarshal narrative state: %w", err)
	}
	return &s, nil
}

func (r *RedisStorage) SaveNarrativeState(ctx context.Context, s *narrative.NarrativeState) error {
	if s == nil {
		return errors.New("narrative state cannot be nil")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal narrative state: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, narrativePrefix+s.UserID, data, 0)
		pipe.SAdd(ctx, usersKey, s.UserID)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save narrative state", "user_id", s.UserID, "error", err)
		return fmt.Errorf("failed to save narrative state: %w", err)
	}
	return nil
}

func (r *RedisStorage) ListUsers(ctx context.Context) ([]string, error) {
	users, err := r.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	slices.Sort(users)
	return users, nil
}

// Ledger

func (r *RedisStorage) ApplyReward(ctx context.Context, entry narrative.LedgerEntry, deltas map[string]int64) (narrative.LedgerEntry, bool, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return narrative.LedgerEntry{}, false, fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	args := []any{entry.QuestID, string(data)}
	keys := make([]string, 0, len(deltas))
	for k := range deltas {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, k, deltas[k])
	}

	res, err := applyRewardScript.Run(ctx, r.client,
		[]string{ledgerPrefix + entry.UserID, balancesPrefix + entry.UserID}, args...,
	).Slice()
	if err != nil {
		r.logger.Error("Failed to apply reward", "user_id", entry.UserID, "quest_id", entry.QuestID, "error", err)
		return narrative.LedgerEntry{}, false, fmt.Errorf("failed to apply reward: %w", err)
	}
	if len(res) != 2 {
		return narrative.LedgerEntry{}, false, fmt.Errorf("unexpected apply reward reply %v", res)
	}

	applied, _ := res[0].(int64)
	raw, _ := res[1].(string)
	var stored narrative.LedgerEntry
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return narrative.LedgerEntry{}, false, fmt.Errorf("failed to unmarshal ledger entry: %w", err)
	}
	return stored, applied == 1, nil
}

func (r *RedisStorage) LedgerEntry(ctx context.Context, userID, questID string) (narrative.LedgerEntry, error) {
	raw, err := r.client.HGet(ctx, ledgerPrefix+userID, questID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return narrative.LedgerEntry{}, storage.LedgerNotFound(userID, questID)
		}
		return narrative.LedgerEntry{}, fmt.Errorf("failed to load ledger entry: %w", err)
	}
	var entry narrative.LedgerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return narrative.LedgerEntry{}, fmt.Errorf("failed to unmarshal ledger entry: %w", err)
	}
	return entry, nil
}

func (r *RedisStorage) Ledger(ctx context.Context, userID string) ([]narrative.LedgerEntry, error) {
	values, err := r.client.HVals(ctx, ledgerPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	entries := make([]narrative.LedgerEntry, 0, len(values))
	for _, v := range values {
		var entry narrative.LedgerEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	storage.SortLedger(entries)
	return entries, nil
}

func (r *RedisStorage) Balances(ctx context.Context, userID string) (narrative.Balances, error) {
	values, err := r.client.HGetAll(ctx, balancesPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	out := make(narrative.Balances, len(values))
	for k, v := range values {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed balance %s=%q: %w", k, v, err)
		}
		out[k] = n
	}
	return out, nil
}
