// Package storagetest holds behavior tests every storage.Storage
// implementation must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) storage.Storage

var base = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// Run runs the whole suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("EventLogOrdering", func(t *testing.T) { testEventLogOrdering(t, newStore(t)) })
	t.Run("EventLogFilter", func(t *testing.T) { testEventLogFilter(t, newStore(t)) })
	t.Run("EventLogPerUserIDs", func(t *testing.T) { testEventLogPerUserIDs(t, newStore(t)) })
	t.Run("EventLogBatch", func(t *testing.T) { testEventLogBatch(t, newStore(t)) })
	t.Run("NarrativeStateLifecycle", func(t *testing.T) { testNarrativeStateLifecycle(t, newStore(t)) })
	t.Run("CreateConflict", func(t *testing.T) { testCreateConflict(t, newStore(t)) })
	t.Run("LedgerInsertIfAbsent", func(t *testing.T) { testLedgerInsertIfAbsent(t, newStore(t)) })
	t.Run("LedgerConcurrentApply", func(t *testing.T) { testLedgerConcurrentApply(t, newStore(t)) })
}

func event(user string, kind narrative.EventKind, attr narrative.Attribute, at time.Time) narrative.Event {
	return narrative.Event{UserID: user, Kind: kind, Attribute: attr, OccurredAt: at, Magnitude: 1}
}

func testEventLogOrdering(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	// appended out of time order, with a tie at base+1h
	appends := []time.Time{base.Add(2 * time.Hour), base.Add(time.Hour), base, base.Add(time.Hour)}
	ids := make([]int64, len(appends))
	for i, at := range appends {
		id, err := s.AppendEvent(ctx, event("u1", narrative.KindMissionCompleted, narrative.AttributeCraft, at))
		require.NoError(t, err)
		ids[i] = id
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1], "ids must increase with append order")
	}

	got, err := s.QueryEvents(ctx, "u1", narrative.EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 4)

	want := []int64{ids[2], ids[1], ids[3], ids[0]}
	for i, e := range got {
		assert.Equal(t, want[i], e.ID, "position %d", i)
		assert.Equal(t, "u1", e.UserID)
		assert.Equal(t, narrative.AttributeCraft, e.Attribute)
		assert.Equal(t, 1, e.Magnitude)
	}
	assert.True(t, got[0].OccurredAt.Equal(base), "occurred_at must round-trip, got %v", got[0].OccurredAt)
}

func testEventLogFilter(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	for i, kind := range []narrative.EventKind{narrative.KindMissionCompleted, narrative.KindJournalEntry, narrative.KindMissionCompleted} {
		attr := narrative.AttributeCraft
		if i == 2 {
			attr = narrative.AttributeHealth
		}
		_, err := s.AppendEvent(ctx, event("u1", kind, attr, base.Add(time.Duration(i)*24*time.Hour)))
		require.NoError(t, err)
	}

	got, err := s.QueryEvents(ctx, "u1", narrative.EventFilter{Kind: narrative.KindMissionCompleted})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	health := narrative.AttributeHealth
	got, err = s.QueryEvents(ctx, "u1", narrative.EventFilter{Attribute: &health})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, narrative.AttributeHealth, got[0].Attribute)

	from := base.Add(24 * time.Hour)
	to := base.Add(48 * time.Hour)
	got, err = s.QueryEvents(ctx, "u1", narrative.EventFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, narrative.KindJournalEntry, got[0].Kind)

	got, err = s.QueryEvents(ctx, "nobody", narrative.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testEventLogPerUserIDs(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	a1, err := s.AppendEvent(ctx, event("alice", narrative.KindJournalEntry, narrative.AttributeNone, base))
	require.NoError(t, err)
	_, err = s.AppendEvent(ctx, event("bob", narrative.KindJournalEntry, narrative.AttributeNone, base))
	require.NoError(t, err)
	a2, err := s.AppendEvent(ctx, event("alice", narrative.KindJournalEntry, narrative.AttributeNone, base))
	require.NoError(t, err)
	assert.Greater(t, a2, a1)

	got, err := s.QueryEvents(ctx, "alice", narrative.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func testEventLogBatch(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	first, err := s.AppendEvent(ctx, event("u1", narrative.KindJournalEntry, narrative.AttributeNone, base))
	require.NoError(t, err)

	ids, err := s.AppendEvents(ctx, []narrative.Event{
		event("u1", narrative.KindMissionCompleted, narrative.AttributeCraft, base.Add(time.Hour)),
		event("u1", narrative.KindMissionCompleted, narrative.AttributeHealth, base.Add(2*time.Hour)),
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Greater(t, ids[0], first)
	assert.Greater(t, ids[1], ids[0])

	// rejected batches store nothing
	_, err = s.AppendEvents(ctx, []narrative.Event{
		event("u1", narrative.KindJournalEntry, narrative.AttributeNone, base),
		event("u2", narrative.KindJournalEntry, narrative.AttributeNone, base),
	})
	assert.ErrorIs(t, err, narrative.ErrValidation, "mixed users")
	_, err = s.AppendEvents(ctx, nil)
	assert.ErrorIs(t, err, narrative.ErrValidation, "empty batch")

	got, err := s.QueryEvents(ctx, "u1", narrative.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	got, err = s.QueryEvents(ctx, "u2", narrative.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func newState(user string) *narrative.NarrativeState {
	return narrative.NewNarrativeState(user, "medieval", "America/New_York", []narrative.Quest{
		{ID: "q1", ScenarioID: "medieval", Status: narrative.StatusPending},
		{ID: "q2", ScenarioID: "medieval", Status: narrative.StatusPending},
	}, base)
}

func testNarrativeStateLifecycle(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.LoadNarrativeState(ctx, "u1")
	require.True(t, errors.Is(err, narrative.ErrNotFound), "expected not found, got %v", err)

	require.NoError(t, s.CreateNarrativeState(ctx, newState("u1")))

	loaded, err := s.LoadNarrativeState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "medieval", loaded.ScenarioID)
	assert.Equal(t, "America/New_York", loaded.TimeZone)
	assert.Equal(t, narrative.FirstChapter, loaded.CurrentChapter)
	require.Len(t, loaded.Quests, 2)
	assert.Equal(t, "q1", loaded.Quests[0].ID)

	q, _ := loaded.Quest("q2")
	require.NoError(t, q.Unlock(base.Add(time.Hour)))
	loaded.CurrentChapter = 2
	loaded.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, s.SaveNarrativeState(ctx, loaded))

	again, err := s.LoadNarrativeState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, again.CurrentChapter)
	assert.Equal(t, narrative.StatusPending, again.Quests[0].Status)
	assert.Equal(t, narrative.StatusUnlocked, again.Quests[1].Status)
	require.NotNil(t, again.Quests[1].UnlockedAt)
	assert.True(t, again.Quests[1].UnlockedAt.Equal(base.Add(time.Hour)))

	require.NoError(t, s.CreateNarrativeState(ctx, newState("a0")))
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "u1"}, users)
}

func testCreateConflict(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.CreateNarrativeState(ctx, newState("u1")))

	second := newState("u1")
	second.ScenarioID = "starship"
	second.Quests = nil
	err := s.CreateNarrativeState(ctx, second)
	require.True(t, errors.Is(err, narrative.ErrConflict), "expected conflict, got %v", err)

	loaded, err := s.LoadNarrativeState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "medieval", loaded.ScenarioID)
	assert.Len(t, loaded.Quests, 2)
}

func testLedgerInsertIfAbsent(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	deltas := map[string]int64{narrative.BalanceEssence: 50, narrative.RelationshipBalance("mira"): 2}

	_, err := s.LedgerEntry(ctx, "u1", "q1")
	require.True(t, errors.Is(err, narrative.ErrNotFound))

	first := narrative.LedgerEntry{UserID: "u1", QuestID: "q1", AppliedAt: base}
	got, applied, err := s.ApplyReward(ctx, first, deltas)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, got.AppliedAt.Equal(base))

	retry := narrative.LedgerEntry{UserID: "u1", QuestID: "q1", AppliedAt: base.Add(time.Hour)}
	got, applied, err = s.ApplyReward(ctx, retry, deltas)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.True(t, got.AppliedAt.Equal(base), "retry must return the original entry")

	_, _, err = s.ApplyReward(ctx, narrative.LedgerEntry{UserID: "u1", QuestID: "q2", AppliedAt: base.Add(time.Minute)},
		map[string]int64{narrative.BalanceEssence: 10})
	require.NoError(t, err)

	bal, err := s.Balances(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), bal[narrative.BalanceEssence])
	assert.Equal(t, int64(2), bal[narrative.RelationshipBalance("mira")])

	entries, err := s.Ledger(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "q1", entries[0].QuestID)
	assert.Equal(t, "q2", entries[1].QuestID)

	entry, err := s.LedgerEntry(ctx, "u1", "q1")
	require.NoError(t, err)
	assert.True(t, entry.AppliedAt.Equal(base))

	bal, err = s.Balances(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, bal)
}

func testLedgerConcurrentApply(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	const racers = 16

	var wg sync.WaitGroup
	results := make([]narrative.LedgerEntry, racers)
	appliedCount := make([]bool, racers)
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := narrative.LedgerEntry{UserID: "u1", QuestID: "forge", AppliedAt: base.Add(time.Duration(i) * time.Second)}
			results[i], appliedCount[i], errs[i] = s.ApplyReward(ctx, entry, map[string]int64{narrative.BalanceEssence: 100})
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < racers; i++ {
		require.NoError(t, errs[i], fmt.Sprintf("racer %d", i))
		if appliedCount[i] {
			applied++
		}
		assert.True(t, results[i].AppliedAt.Equal(results[0].AppliedAt), "racer %d saw a different entry", i)
	}
	assert.Equal(t, 1, applied, "exactly one racer may apply the reward")

	bal, err := s.Balances(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal[narrative.BalanceEssence])
}
