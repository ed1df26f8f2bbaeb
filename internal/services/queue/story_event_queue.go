package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/chat"
)

// StoryEventQueue holds rendered quest reveals per user until the chat
// collaborator picks them up.
type StoryEventQueue struct {
	client *Client
	logger *slog.Logger
}

// NewStoryEventQueue creates a new story event queue service
func NewStoryEventQueue(client *Client, logger *slog.Logger) *StoryEventQueue {
	return &StoryEventQueue{
		client: client,
		logger: logger,
	}
}

// queueKey returns the Redis key for a user's story event queue
func (seq *StoryEventQueue) queueKey(userID string) string {
	return fmt.Sprintf("story-events:%s", userID)
}

// Enqueue adds a story event to the end of the user's queue
func (seq *StoryEventQueue) Enqueue(ctx context.Context, event chat.StoryEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	key := seq.queueKey(event.UserID)

	data, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize story event: %w", err)
	}
	if err := seq.client.rdb.RPush(ctx, key, data).Err(); err != nil {
		seq.logger.Error("Failed to enqueue story event",
			"error", err,
			"user_id", event.UserID,
			"key", key)
		return fmt.Errorf("failed to enqueue story event: %w", err)
	}

	seq.logger.Debug("Enqueued story event",
		"user_id", event.UserID,
		"quest_id", event.QuestID,
		"text_preview", truncate(event.Text, 50))

	return nil
}

// Dequeue removes and returns all story events for a user. The read and
// delete happen in one transaction so concurrent enqueues are never lost.
func (seq *StoryEventQueue) Dequeue(ctx context.Context, userID string) ([]chat.StoryEvent, error) {
	key := seq.queueKey(userID)

	var lrange *redis.StringSliceCmd
	_, err := seq.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		seq.logger.Error("Failed to dequeue story events",
			"error", err,
			"user_id", userID,
			"key", key)
		return nil, fmt.Errorf("failed to dequeue story events: %w", err)
	}

	events, err := decodeStoryEvents(lrange.Val())
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		seq.logger.Debug("Dequeued story events",
			"user_id", userID,
			"count", len(events))
	}
	return events, nil
}

// Peek returns up to limit story events without removing them. A limit of
// zero or less returns all of them.
func (seq *StoryEventQueue) Peek(ctx context.Context, userID string, limit int) ([]chat.StoryEvent, error) {
	key := seq.queueKey(userID)

	end := int64(limit - 1)
	if limit <= 0 {
		end = -1 // Get all
	}

	raw, err := seq.client.rdb.LRange(ctx, key, 0, end).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		seq.logger.Error("Failed to peek story events",
			"error", err,
			"user_id", userID,
			"key", key)
		return nil, fmt.Errorf("failed to peek story events: %w", err)
	}
	return decodeStoryEvents(raw)
}

// Clear removes all story events for a user
func (seq *StoryEventQueue) Clear(ctx context.Context, userID string) error {
	key := seq.queueKey(userID)

	if err := seq.client.rdb.Del(ctx, key).Err(); err != nil {
		seq.logger.Error("Failed to clear story event queue",
			"error", err,
			"user_id", userID,
			"key", key)
		return fmt.Errorf("failed to clear story event queue: %w", err)
	}

	seq.logger.Debug("Cleared story event queue", "user_id", userID)
	return nil
}

// Depth returns the number of story events queued for a user
func (seq *StoryEventQueue) Depth(ctx context.Context, userID string) (int, error) {
	key := seq.queueKey(userID)

	count, err := seq.client.rdb.LLen(ctx, key).Result()
	if err != nil {
		seq.logger.Error("Failed to get story event queue depth",
			"error", err,
			"user_id", userID,
			"key", key)
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}

	return int(count), nil
}

// GetFormattedEvents returns all queued story events formatted as a single
// prompt block for the chat collaborator.
func (seq *StoryEventQueue) GetFormattedEvents(ctx context.Context, userID string) (string, error) {
	events, err := seq.Peek(ctx, userID, 0)
	if err != nil {
		return "", err
	}
	return chat.FormatStoryEvents(events), nil
}

func decodeStoryEvents(raw []string) ([]chat.StoryEvent, error) {
	events := make([]chat.StoryEvent, 0, len(raw))
	for _, r := range raw {
		e, err := chat.StoryEventFromJSON([]byte(r))
		if err != nil {
			return nil, fmt.Errorf("failed to decode story event: %w", err)
		}
		events = append(events, *e)
	}
	return events, nil
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
