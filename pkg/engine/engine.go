// Package engine drives each user's narrative: it validates and records
// progress events, unlocks hidden quests whose triggers are satisfied,
// delivers them and applies their rewards exactly once.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/scenario"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

const (
	DefaultClockSkew = 5 * time.Minute
	DefaultTimeZone  = "UTC"
)

// Engine is safe for concurrent use. Tick and Deliver for one user run
// one at a time under the Locker; different users proceed in parallel.
type Engine struct {
	registry  *scenario.Registry
	store     storage.Storage
	logger    *slog.Logger
	locker    Locker
	notifier  Notifier
	economy   Economy
	now       func() time.Time
	skew      time.Duration
	timeZone  string
	opTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker replaces the in-process KeyedMutex, e.g. with a lock shared
// across processes.
func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithClockSkew sets how far in the future an event may be dated.
func WithClockSkew(d time.Duration) Option {
	return func(e *Engine) { e.skew = d }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithEconomy(ec Economy) Option {
	return func(e *Engine) { e.economy = ec }
}

// WithDefaultTimeZone sets the zone used when Instantiate is given none.
func WithDefaultTimeZone(tz string) Option {
	return func(e *Engine) { e.timeZone = tz }
}

// WithOperationTimeout bounds Tick, Deliver and ApplyReward. Zero means no
// bound beyond the caller's context.
func WithOperationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.opTimeout = d }
}

// New builds an Engine. The registry must not be nil.
func New(registry *scenario.Registry, store storage.Storage, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("engine: registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("engine: storage is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		registry: registry,
		store:    store,
		logger:   logger,
		locker:   NewKeyedMutex(),
		now:      time.Now,
		skew:     DefaultClockSkew,
		timeZone: DefaultTimeZone,
	}
	for _, opt := range opts {
		opt(e)
	}
	if _, err := narrative.LoadLocation(e.timeZone); err != nil {
		return nil, fmt.Errorf("engine: default time zone: %w", err)
	}
	return e, nil
}

// Registry returns the scenario registry the engine serves.
func (e *Engine) Registry() *scenario.Registry {
	return e.registry
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

func (e *Engine) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.opTimeout)
}

// lockUser enters the user's exclusive scope.
func (e *Engine) lockUser(ctx context.Context, userID string) (func(), error) {
	unlock, err := e.locker.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock user %s: %w", userID, err)
	}
	return unlock, nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return narrative.Validationf("user_id is required")
	}
	return nil
}

// AppendEvent validates e and records it. The returned event carries the
// id the log assigned.
func (e *Engine) AppendEvent(ctx context.Context, ev narrative.Event) (narrative.Event, error) {
	out, err := e.AppendEvents(ctx, []narrative.Event{ev})
	if err != nil {
		return narrative.Event{}, err
	}
	return out[0], nil
}

// AppendEvents records a batch for one user. Every event is validated
// before any is stored and the log stores the batch in one step, so a
// rejected batch leaves the log unchanged and can be resent once fixed.
func (e *Engine) AppendEvents(ctx context.Context, events []narrative.Event) ([]narrative.Event, error) {
	userID, err := narrative.BatchUser(events)
	if err != nil {
		return nil, err
	}
	now := e.clock()
	batch := make([]narrative.Event, len(events))
	for i, ev := range events {
		if err := ev.Validate(now, e.skew); err != nil {
			if len(events) == 1 {
				return nil, err
			}
			return nil, narrative.Validationf("event %d: %v", i, err).With("user_id", userID)
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		batch[i] = ev
	}

	ids, err := e.store.AppendEvents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to append events: %w", err)
	}
	for i := range batch {
		batch[i].ID = ids[i]
	}

	e.logger.Debug("Events appended",
		"user_id", userID,
		"count", len(batch),
		"first_event_id", ids[0])
	return batch, nil
}

// Events returns a user's events matching filter in log order.
func (e *Engine) Events(ctx context.Context, userID string, filter narrative.EventFilter) ([]narrative.Event, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	events, err := e.store.QueryEvents(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return events, nil
}

// Instantiate starts scenarioID for userID with every quest pending. A user
// already in a narrative gets a Conflict error and keeps their state.
func (e *Engine) Instantiate(ctx context.Context, scenarioID, userID, timeZone string) (*narrative.NarrativeState, error) {
	if timeZone == "" {
		timeZone = e.timeZone
	}
	if _, err := narrative.LoadLocation(timeZone); err != nil {
		return nil, err
	}
	quests, err := e.registry.Instantiate(scenarioID, userID)
	if err != nil {
		return nil, err
	}

	state := narrative.NewNarrativeState(userID, scenarioID, timeZone, quests, e.clock())
	if err := e.store.CreateNarrativeState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to create narrative state: %w", err)
	}

	e.logger.Info("Narrative instantiated",
		"user_id", userID,
		"scenario_id", scenarioID,
		"time_zone", timeZone,
		"quests", len(quests))
	return state, nil
}

// State returns the user's current narrative state.
func (e *Engine) State(ctx context.Context, userID string) (*narrative.NarrativeState, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	state, err := e.store.LoadNarrativeState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load narrative state: %w", err)
	}
	return state, nil
}

// Ledger returns the user's applied rewards and resulting balances.
func (e *Engine) Ledger(ctx context.Context, userID string) ([]narrative.LedgerEntry, narrative.Balances, error) {
	if err := requireUser(userID); err != nil {
		return nil, nil, err
	}
	entries, err := e.store.Ledger(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	balances, err := e.store.Balances(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load balances: %w", err)
	}
	return entries, balances, nil
}
