package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

// MockStorage is an in-memory Storage. It backs tests and the "memory"
// storage backend.
type MockStorage struct {
	mu        sync.RWMutex
	events    map[string][]narrative.Event
	seq       map[string]int64
	states    map[string]*narrative.NarrativeState
	ledger    map[string]map[string]narrative.LedgerEntry
	balances  map[string]narrative.Balances
	pingError error
	saveError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		events:   make(map[string][]narrative.Event),
		seq:      make(map[string]int64),
		states:   make(map[string]*narrative.NarrativeState),
		ledger:   make(map[string]map[string]narrative.LedgerEntry),
		balances: make(map[string]narrative.Balances),
	}
}

// SetPingSuccess configures the mock to succeed on ping
func (m *MockStorage) SetPingSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = nil
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError makes SaveNarrativeState fail with err until cleared with nil.
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

// Event log

func (m *MockStorage) AppendEvent(ctx context.Context, e narrative.Event) (int64, error) {
	ids, err := m.AppendEvents(ctx, []narrative.Event{e})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (m *MockStorage) AppendEvents(ctx context.Context, events []narrative.Event) ([]int64, error) {
	userID, err := narrative.BatchUser(events)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		m.seq[userID]++
		e.ID = m.seq[userID]
		m.events[userID] = append(m.events[userID], e)
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (m *MockStorage) QueryEvents(ctx context.Context, userID string, filter narrative.EventFilter) ([]narrative.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]narrative.Event, 0, len(m.events[userID]))
	for _, e := range m.events[userID] {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	narrative.SortEvents(out)
	return out, nil
}

// Narrative state

func (m *MockStorage) CreateNarrativeState(ctx context.Context, s *narrative.NarrativeState) error {
	if s == nil {
		return errors.New("narrative state cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.states[s.UserID]; ok {
		return narrative.Conflictf("user %q already has a narrative in scenario %q", s.UserID, existing.ScenarioID).
			With("user_id", s.UserID).
			With("scenario_id", existing.ScenarioID)
	}
	m.states[s.UserID] = s.Clone()
	return nil
}

func (m *MockStorage) LoadNarrativeState(ctx context.Context, userID string) (*narrative.NarrativeState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.states[userID]
	if !ok {
		return nil, narrative.NotFoundf("no narrative for user %q", userID).With("user_id", userID)
	}
	return s.Clone(), nil
}

func (m *MockStorage) SaveNarrativeState(ctx context.Context, s *narrative.NarrativeState) error {
	if s == nil {
		return errors.New("narrative state cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveError != nil {
		return m.saveError
	}
	m.states[s.UserID] = s.Clone()
	return nil
}

func (m *MockStorage) ListUsers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]string, 0, len(m.states))
	for id := range m.states {
		users = append(users, id)
	}
	slices.Sort(users)
	return users, nil
}

// Ledger

func (m *MockStorage) ApplyReward(ctx context.Context, entry narrative.LedgerEntry, deltas map[string]int64) (narrative.LedgerEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return narrative.LedgerEntry{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.ledger[entry.UserID]
	if entries == nil {
		entries = make(map[string]narrative.LedgerEntry)
		m.ledger[entry.UserID] = entries
	}
	if existing, ok := entries[entry.QuestID]; ok {
		return existing, false, nil
	}
	entries[entry.QuestID] = entry

	bal := m.balances[entry.UserID]
	if bal == nil {
		bal = make(narrative.Balances)
		m.balances[entry.UserID] = bal
	}
	for k, d := range deltas {
		bal[k] += d
	}
	return entry, true, nil
}

func (m *MockStorage) LedgerEntry(ctx context.Context, userID, questID string) (narrative.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.ledger[userID][questID]
	if !ok {
		return narrative.LedgerEntry{}, LedgerNotFound(userID, questID)
	}
	return entry, nil
}

func (m *MockStorage) Ledger(ctx context.Context, userID string) ([]narrative.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]narrative.LedgerEntry, 0, len(m.ledger[userID]))
	for _, e := range m.ledger[userID] {
		out = append(out, e)
	}
	SortLedger(out)
	return out, nil
}

func (m *MockStorage) Balances(ctx context.Context, userID string) (narrative.Balances, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(narrative.Balances, len(m.balances[userID]))
	for k, v := range m.balances[userID] {
		out[k] = v
	}
	return out, nil
}

// LedgerNotFound is the error every Ledger returns from LedgerEntry when
// no entry exists.
func LedgerNotFound(userID, questID string) error {
	return narrative.NotFoundf("no ledger entry for quest %q", questID).
		With("user_id", userID).
		With("quest_id", questID)
}

// SortLedger orders entries by applied_at, then quest id.
func SortLedger(entries []narrative.LedgerEntry) {
	slices.SortFunc(entries, func(a, b narrative.LedgerEntry) int {
		if c := a.AppliedAt.Compare(b.AppliedAt); c != 0 {
			return c
		}
		return strings.Compare(a.QuestID, b.QuestID)
	})
}
