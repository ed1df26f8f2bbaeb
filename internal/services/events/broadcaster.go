package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/engine"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeQuestUnlocked EventType = EventType(engine.NotifyQuestUnlocked)
	EventTypeQuestConsumed EventType = EventType(engine.NotifyQuestConsumed)
	EventTypeRewardApplied EventType = EventType(engine.NotifyRewardApplied)
	EventTypeStoryRendered EventType = "story.rendered"
	EventTypeRequestFailed EventType = "request.failed"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType      `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	UserID    string         `json:"user_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Broadcaster publishes events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var _ engine.Notifier = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Channel is the pub/sub channel carrying one user's events.
func Channel(userID string) string {
	return fmt.Sprintf("quest-events:%s", userID)
}

// Notify publishes an engine notification.
func (b *Broadcaster) Notify(ctx context.Context, n engine.Notification) error {
	data := map[string]any{
		"quest_id": n.QuestID,
		"at":       n.At,
	}
	if n.ScenarioID != "" {
		data["scenario_id"] = n.ScenarioID
	}
	if n.Title != "" {
		data["title"] = n.Title
	}
	if n.Chapter != 0 {
		data["chapter"] = n.Chapter
	}
	if n.Reward != nil {
		data["reward"] = n.Reward
	}
	return b.publishToUser(ctx, n.UserID, Event{
		Type:   EventType(n.Type),
		UserID: n.UserID,
		Data:   data,
	})
}

// PublishStoryRendered publishes the rendered text of a quest reveal
func (b *Broadcaster) PublishStoryRendered(ctx context.Context, userID, requestID, questID, text string) error {
	return b.publishToUser(ctx, userID, Event{
		Type:      EventTypeStoryRendered,
		RequestID: requestID,
		UserID:    userID,
		Data: map[string]any{
			"quest_id": questID,
			"text":     text,
		},
	})
}

// PublishRequestFailed publishes a request.failed event
func (b *Broadcaster) PublishRequestFailed(ctx context.Context, userID, requestID, errorMsg string) error {
	return b.publishToUser(ctx, userID, Event{
		Type:      EventTypeRequestFailed,
		RequestID: requestID,
		UserID:    userID,
		Data: map[string]any{
			"status": "failed",
			"error":  errorMsg,
		},
	})
}

// Subscribe opens a subscription to one user's channel. The caller closes it.
func (b *Broadcaster) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	return b.redisClient.Subscribe(ctx, Channel(userID))
}

// publishToUser publishes an event to the user-specific channel
func (b *Broadcaster) publishToUser(ctx context.Context, userID string, event Event) error {
	channel := Channel(userID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)

	return nil
}
