package narrative

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Balance keys for user-facing counters.
const (
	BalanceEssence            = "essence"
	relationshipBalancePrefix = "relationship:"
)

// RelationshipBalance is the balance key for a companion's relationship level.
func RelationshipBalance(companion string) string {
	return relationshipBalancePrefix + companion
}

// Reward is what a quest grants once, when it is applied.
type Reward struct {
	Essence       int64            `json:"essence,omitempty" yaml:"essence,omitempty"`
	Relationships map[string]int64 `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// Deltas flattens the reward into balance-key increments. Zero deltas are
// omitted.
func (r Reward) Deltas() map[string]int64 {
	deltas := make(map[string]int64, len(r.Relationships)+1)
	if r.Essence != 0 {
		deltas[BalanceEssence] = r.Essence
	}
	for companion, delta := range r.Relationships {
		if delta != 0 {
			deltas[RelationshipBalance(companion)] = delta
		}
	}
	return deltas
}

func (r Reward) IsZero() bool {
	return len(r.Deltas()) == 0
}

// Validate rejects blank companion names.
func (r Reward) Validate() error {
	for companion := range r.Relationships {
		if strings.TrimSpace(companion) == "" {
			return Validationf("reward relationship companion name is empty")
		}
	}
	return nil
}

// LedgerEntry records that a quest's reward was applied for a user. The
// entry's existence is the only record of "already applied".
type LedgerEntry struct {
	UserID    string    `json:"user_id"`
	QuestID   string    `json:"quest_id"`
	AppliedAt time.Time `json:"applied_at"`
}

// Balances are a user's counters keyed by balance key.
type Balances map[string]int64

// Keys returns balance keys sorted for stable display.
func (b Balances) Keys() []string {
	return slices.Sorted(maps.Keys(b))
}
