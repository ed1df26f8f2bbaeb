package narrative

import "time"

// QuestStatus is the lifecycle position of a per-user quest instance.
// Quests only move forward: pending -> unlocked -> consumed.
type QuestStatus string

const (
	StatusPending  QuestStatus = "pending"
	StatusUnlocked QuestStatus = "unlocked"
	StatusConsumed QuestStatus = "consumed"
)

// Next returns the only status s may transition to. Consumed is terminal.
func (s QuestStatus) Next() (QuestStatus, bool) {
	switch s {
	case StatusPending:
		return StatusUnlocked, true
	case StatusUnlocked:
		return StatusConsumed, true
	default:
		return "", false
	}
}

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to QuestStatus) bool {
	next, ok := from.Next()
	return ok && next == to
}

// Quest is a per-user instance of a scenario's quest definition. The
// definition (trigger, narrative, reward) lives in the scenario registry
// and is shared read-only across users.
type Quest struct {
	ID         string      `json:"quest_id"`
	ScenarioID string      `json:"scenario_id"`
	Status     QuestStatus `json:"status"`
	UnlockedAt *time.Time  `json:"unlocked_at,omitempty"`
	ConsumedAt *time.Time  `json:"consumed_at,omitempty"`
}

func (q *Quest) transition(to QuestStatus) error {
	if !CanTransition(q.Status, to) {
		return InvalidStatef("quest %q cannot move from %s to %s", q.ID, q.Status, to).
			With("quest_id", q.ID)
	}
	q.Status = to
	return nil
}

// Unlock moves a pending quest to unlocked.
func (q *Quest) Unlock(at time.Time) error {
	if err := q.transition(StatusUnlocked); err != nil {
		return err
	}
	q.UnlockedAt = &at
	return nil
}

// Consume moves an unlocked quest to consumed.
func (q *Quest) Consume(at time.Time) error {
	if err := q.transition(StatusConsumed); err != nil {
		return err
	}
	q.ConsumedAt = &at
	return nil
}
