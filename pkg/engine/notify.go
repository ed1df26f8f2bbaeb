package engine

import (
	"context"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

// NotificationType names a state change pushed to subscribers.
type NotificationType string

const (
	NotifyQuestUnlocked NotificationType = "quest.unlocked"
	NotifyQuestConsumed NotificationType = "quest.consumed"
	NotifyRewardApplied NotificationType = "reward.applied"
)

// Notification describes a committed change. It is sent after the state
// write succeeds, never before.
type Notification struct {
	Type       NotificationType  `json:"type"`
	UserID     string            `json:"user_id"`
	ScenarioID string            `json:"scenario_id,omitempty"`
	QuestID    string            `json:"quest_id"`
	Title      string            `json:"title,omitempty"`
	Chapter    int               `json:"chapter,omitempty"`
	Reward     *narrative.Reward `json:"reward,omitempty"`
	At         time.Time         `json:"at"`
}

// Notifier receives committed changes, e.g. to fan them out to clients.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Economy is the external, user-facing balance service. Credit must be
// idempotent for a given (user, quest): the engine may call it again when
// a previous apply did not reach the ledger.
type Economy interface {
	Credit(ctx context.Context, userID, questID string, deltas map[string]int64) error
}

// notify delivers n and logs failures. The state change is already
// committed, so a failed notification does not fail the operation.
func (e *Engine) notify(ctx context.Context, n Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("Failed to send notification",
			"type", n.Type,
			"user_id", n.UserID,
			"quest_id", n.QuestID,
			"error", err)
	}
}
