package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/scenario"
)

// ApplyReward credits a quest's reward at most once. An existing ledger
// entry is returned as-is without touching balances, whatever the quest's
// status. Otherwise the quest must be unlocked (NotFound if not). Racing
// callers all receive the same entry and balances move once.
func (e *Engine) ApplyReward(ctx context.Context, userID, questID string) (narrative.LedgerEntry, error) {
	if err := requireUser(userID); err != nil {
		return narrative.LedgerEntry{}, err
	}
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	existing, err := e.store.LedgerEntry(ctx, userID, questID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, narrative.ErrNotFound) {
		return narrative.LedgerEntry{}, fmt.Errorf("failed to read ledger: %w", err)
	}

	state, err := e.store.LoadNarrativeState(ctx, userID)
	if err != nil {
		return narrative.LedgerEntry{}, fmt.Errorf("failed to load narrative state: %w", err)
	}
	q, ok := state.Quest(questID)
	if !ok || q.Status != narrative.StatusUnlocked {
		return narrative.LedgerEntry{}, narrative.NotFoundf("no unlocked quest %q for user %q", questID, userID).
			With("user_id", userID).
			With("quest_id", questID)
	}
	def, err := e.registry.Definition(state.ScenarioID, questID)
	if err != nil {
		return narrative.LedgerEntry{}, err
	}

	entry, _, err := e.applyReward(ctx, state, def)
	return entry, err
}

// applyReward credits the external economy and then records the ledger
// entry and balance deltas in one atomic step. Credit may repeat for the
// same (user, quest) until the ledger write lands.
func (e *Engine) applyReward(ctx context.Context, state *narrative.NarrativeState, def scenario.QuestDefinition) (narrative.LedgerEntry, bool, error) {
	deltas := def.Reward.Deltas()
	if e.economy != nil && len(deltas) > 0 {
		if err := e.economy.Credit(ctx, state.UserID, def.ID, deltas); err != nil {
			return narrative.LedgerEntry{}, false, fmt.Errorf("failed to credit reward for quest %s: %w", def.ID, err)
		}
	}

	entry := narrative.LedgerEntry{UserID: state.UserID, QuestID: def.ID, AppliedAt: e.clock()}
	stored, applied, err := e.store.ApplyReward(ctx, entry, deltas)
	if err != nil {
		return narrative.LedgerEntry{}, false, fmt.Errorf("failed to record reward for quest %s: %w", def.ID, err)
	}
	if !applied {
		return stored, false, nil
	}

	e.logger.Info("Reward applied",
		"user_id", state.UserID,
		"quest_id", def.ID,
		"essence", def.Reward.Essence,
		"relationships", len(def.Reward.Relationships))
	reward := def.Reward
	e.notify(ctx, Notification{
		Type:       NotifyRewardApplied,
		UserID:     state.UserID,
		ScenarioID: state.ScenarioID,
		QuestID:    def.ID,
		Title:      def.Title,
		Reward:     &reward,
		At:         stored.AppliedAt,
	})
	return stored, true, nil
}
