package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/conditionals"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/scenario"
)

// Reveal is a quest that just unlocked, with what the renderer needs to
// present it.
type Reveal struct {
	QuestID    string                    `json:"quest_id"`
	Title      string                    `json:"title"`
	Chapter    int                       `json:"chapter"`
	Narrative  scenario.NarrativePayload `json:"narrative"`
	Prompt     string                    `json:"prompt"`
	Reward     narrative.Reward          `json:"reward"`
	UnlockedAt time.Time                 `json:"unlocked_at"`
}

func newReveal(def scenario.QuestDefinition, chapter int, unlockedAt time.Time) Reveal {
	return Reveal{
		QuestID:    def.ID,
		Title:      def.Title,
		Chapter:    chapter,
		Narrative:  def.Narrative,
		Prompt:     def.RevealPrompt(chapter),
		Reward:     def.Reward,
		UnlockedAt: unlockedAt,
	}
}

// TickResult lists quests unlocked by one Tick in scenario order.
type TickResult struct {
	UserID   string                    `json:"user_id"`
	Unlocked []Reveal                  `json:"unlocked"`
	State    *narrative.NarrativeState `json:"state"`
}

// DeliverResult is the outcome of a successful Deliver.
type DeliverResult struct {
	Quest          narrative.Quest       `json:"quest"`
	Entry          narrative.LedgerEntry `json:"ledger_entry"`
	RewardApplied  bool                  `json:"reward_applied"` // false when an earlier apply already recorded it
	CurrentChapter int                   `json:"current_chapter"`
}

// userContext is what Tick, Deliver and Progress need about one user.
type userContext struct {
	state *narrative.NarrativeState
	defs  []scenario.QuestDefinition
	loc   *time.Location
}

func (e *Engine) loadUser(ctx context.Context, userID string) (*userContext, error) {
	state, err := e.store.LoadNarrativeState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load narrative state: %w", err)
	}
	defs, err := e.registry.QuestsFor(state.ScenarioID)
	if err != nil {
		return nil, err
	}
	loc, err := state.Location()
	if err != nil {
		return nil, err
	}
	return &userContext{state: state, defs: defs, loc: loc}, nil
}

// Tick re-evaluates the user's pending quests against their full event
// history and unlocks every quest whose trigger holds. Unlocks are applied
// in scenario order and saved in one write; on any error the stored state
// is unchanged. Quests already unlocked or consumed are never touched.
func (e *Engine) Tick(ctx context.Context, userID string) (TickResult, error) {
	if err := requireUser(userID); err != nil {
		return TickResult{}, err
	}
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	unlock, err := e.lockUser(ctx, userID)
	if err != nil {
		return TickResult{}, err
	}
	defer unlock()

	uc, err := e.loadUser(ctx, userID)
	if err != nil {
		return TickResult{}, err
	}
	events, err := e.store.QueryEvents(ctx, userID, narrative.EventFilter{})
	if err != nil {
		return TickResult{}, fmt.Errorf("failed to query events: %w", err)
	}

	next := uc.state.Clone()
	now := e.clock()
	result := TickResult{UserID: userID, Unlocked: []Reveal{}}

	for _, def := range uc.defs {
		q, ok := next.Quest(def.ID)
		if !ok {
			e.logger.Warn("Quest definition has no instance for user",
				"user_id", userID,
				"scenario_id", next.ScenarioID,
				"quest_id", def.ID)
			continue
		}
		if q.Status != narrative.StatusPending {
			continue
		}
		satisfied, err := conditionals.Evaluate(def.Trigger, events, uc.loc)
		if err != nil {
			return TickResult{}, fmt.Errorf("quest %s trigger: %w", def.ID, err)
		}
		if !satisfied {
			continue
		}
		if err := q.Unlock(now); err != nil {
			return TickResult{}, err
		}
		result.Unlocked = append(result.Unlocked, newReveal(def, next.CurrentChapter, now))
	}

	if len(result.Unlocked) == 0 {
		result.State = uc.state
		return result, nil
	}

	// A timed-out tick must not commit.
	if err := ctx.Err(); err != nil {
		return TickResult{}, fmt.Errorf("tick for user %s: %w", userID, err)
	}
	next.UpdatedAt = now
	if err := e.store.SaveNarrativeState(ctx, next); err != nil {
		return TickResult{}, fmt.Errorf("failed to save narrative state: %w", err)
	}
	result.State = next

	for _, r := range result.Unlocked {
		e.logger.Info("Quest unlocked",
			"user_id", userID,
			"scenario_id", next.ScenarioID,
			"quest_id", r.QuestID)
		e.notify(ctx, Notification{
			Type:       NotifyQuestUnlocked,
			UserID:     userID,
			ScenarioID: next.ScenarioID,
			QuestID:    r.QuestID,
			Title:      r.Title,
			Chapter:    r.Chapter,
			At:         now,
		})
	}
	return result, nil
}

// Deliver marks an unlocked quest consumed once its narrative has been
// handed to the renderer. The reward is applied first (at most once) so a
// retry after a failed save neither loses nor doubles it. A quest that is
// not unlocked fails with InvalidState and nothing changes.
func (e *Engine) Deliver(ctx context.Context, userID, questID string) (DeliverResult, error) {
	if err := requireUser(userID); err != nil {
		return DeliverResult{}, err
	}
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	unlock, err := e.lockUser(ctx, userID)
	if err != nil {
		return DeliverResult{}, err
	}
	defer unlock()

	uc, err := e.loadUser(ctx, userID)
	if err != nil {
		return DeliverResult{}, err
	}
	current, ok := uc.state.Quest(questID)
	if !ok {
		return DeliverResult{}, narrative.NotFoundf("user %q has no quest %q", userID, questID).
			With("user_id", userID).
			With("quest_id", questID)
	}
	if current.Status != narrative.StatusUnlocked {
		return DeliverResult{}, narrative.InvalidStatef("quest %q is %s, not unlocked", questID, current.Status).
			With("user_id", userID).
			With("quest_id", questID)
	}
	def, err := e.registry.Definition(uc.state.ScenarioID, questID)
	if err != nil {
		return DeliverResult{}, err
	}

	entry, applied, err := e.applyReward(ctx, uc.state, def)
	if err != nil {
		return DeliverResult{}, err
	}

	next := uc.state.Clone()
	now := e.clock()
	q, _ := next.Quest(questID)
	if err := q.Consume(now); err != nil {
		return DeliverResult{}, err
	}
	if def.AdvancesChapter {
		next.CurrentChapter++
	}

	if err := ctx.Err(); err != nil {
		return DeliverResult{}, fmt.Errorf("deliver %s for user %s: %w", questID, userID, err)
	}
	next.UpdatedAt = now
	if err := e.store.SaveNarrativeState(ctx, next); err != nil {
		return DeliverResult{}, fmt.Errorf("failed to save narrative state: %w", err)
	}

	e.logger.Info("Quest delivered",
		"user_id", userID,
		"quest_id", questID,
		"reward_applied", applied,
		"chapter", next.CurrentChapter)
	e.notify(ctx, Notification{
		Type:       NotifyQuestConsumed,
		UserID:     userID,
		ScenarioID: next.ScenarioID,
		QuestID:    questID,
		Title:      def.Title,
		Chapter:    next.CurrentChapter,
		At:         now,
	})

	return DeliverResult{
		Quest:          *q,
		Entry:          entry,
		RewardApplied:  applied,
		CurrentChapter: next.CurrentChapter,
	}, nil
}

// Undelivered returns the user's unlocked quests that have not been
// delivered yet, in scenario order. It reads only and takes no lock.
func (e *Engine) Undelivered(ctx context.Context, userID string) ([]Reveal, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	uc, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Reveal, 0)
	for _, def := range uc.defs {
		q, ok := uc.state.Quest(def.ID)
		if !ok || q.Status != narrative.StatusUnlocked {
			continue
		}
		var at time.Time
		if q.UnlockedAt != nil {
			at = *q.UnlockedAt
		}
		out = append(out, newReveal(def, uc.state.CurrentChapter, at))
	}
	return out, nil
}

// QuestProgress shows how close a pending quest's trigger is.
type QuestProgress struct {
	QuestID   string                      `json:"quest_id"`
	Trigger   string                      `json:"trigger"`
	Satisfied bool                        `json:"satisfied"`
	Leaves    []conditionals.LeafProgress `json:"leaves"`
}

// Progress reports every pending quest's trigger progress. It reads only
// and takes no lock. Satisfied is true for quests the next Tick would
// unlock.
func (e *Engine) Progress(ctx context.Context, userID string) ([]QuestProgress, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	uc, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	events, err := e.store.QueryEvents(ctx, userID, narrative.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	out := make([]QuestProgress, 0)
	for _, def := range uc.defs {
		q, ok := uc.state.Quest(def.ID)
		if !ok || q.Status != narrative.StatusPending {
			continue
		}
		satisfied, err := conditionals.Evaluate(def.Trigger, events, uc.loc)
		if err != nil {
			return nil, fmt.Errorf("quest %s trigger: %w", def.ID, err)
		}
		leaves, err := conditionals.Progress(def.Trigger, events, uc.loc)
		if err != nil {
			return nil, fmt.Errorf("quest %s trigger: %w", def.ID, err)
		}
		out = append(out, QuestProgress{
			QuestID:   def.ID,
			Trigger:   conditionals.Describe(def.Trigger),
			Satisfied: satisfied,
			Leaves:    leaves,
		})
	}
	return out, nil
}
