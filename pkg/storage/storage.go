package storage

import (
	"context"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

// EventLog is the append-only record of user progress. There is no update
// or delete; corrections are compensating events.
type EventLog interface {
	// AppendEvent stores a validated event and returns its id. Ids are
	// assigned here and increase monotonically per user.
	AppendEvent(ctx context.Context, e narrative.Event) (int64, error)

	// AppendEvents stores a batch for one user in a single atomic step and
	// returns the ids in batch order. Either every event is stored or none.
	AppendEvents(ctx context.Context, events []narrative.Event) ([]int64, error)

	// QueryEvents returns a user's events matching filter ordered by
	// (occurred_at, event_id).
	QueryEvents(ctx context.Context, userID string, filter narrative.EventFilter) ([]narrative.Event, error)
}

// StateStore persists one NarrativeState per user.
type StateStore interface {
	// CreateNarrativeState stores s only if the user has no state yet.
	// Otherwise it returns a Conflict error and leaves the existing state
	// untouched.
	CreateNarrativeState(ctx context.Context, s *narrative.NarrativeState) error

	// LoadNarrativeState returns a NotFound error if the user has no state.
	LoadNarrativeState(ctx context.Context, userID string) (*narrative.NarrativeState, error)

	// SaveNarrativeState replaces the whole state in one atomic write.
	SaveNarrativeState(ctx context.Context, s *narrative.NarrativeState) error

	// ListUsers returns every user with a narrative state, sorted.
	ListUsers(ctx context.Context) ([]string, error)
}

// Ledger is the reward ledger and the user-facing balances it drives.
type Ledger interface {
	// ApplyReward inserts entry if no entry exists for (user, quest) and, in
	// the same atomic step, adds deltas to the user's balances. If an entry
	// already exists it is returned with applied=false and balances are not
	// touched.
	ApplyReward(ctx context.Context, entry narrative.LedgerEntry, deltas map[string]int64) (narrative.LedgerEntry, bool, error)

	// LedgerEntry returns the entry for (user, quest) or a NotFound error.
	LedgerEntry(ctx context.Context, userID, questID string) (narrative.LedgerEntry, error)

	// Ledger returns all of a user's entries ordered by applied_at.
	Ledger(ctx context.Context, userID string) ([]narrative.LedgerEntry, error)

	// Balances returns a user's balances. Unknown users have none.
	Balances(ctx context.Context, userID string) (narrative.Balances, error)
}

// Storage is everything the engine persists.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	EventLog
	StateStore
	Ledger
}
