// Package narrative holds the domain types shared by the event log, the
// condition evaluator, the scenario registry and the engine.
package narrative

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Attribute is the self-improvement area an event contributes to.
type Attribute string

const (
	AttributeNone       Attribute = "none"
	AttributeGrowth     Attribute = "growth"
	AttributeHealth     Attribute = "health"
	AttributeCraft      Attribute = "craft"
	AttributeConnection Attribute = "connection"
)

// Attributes lists every valid attribute in display order.
var Attributes = []Attribute{AttributeGrowth, AttributeHealth, AttributeCraft, AttributeConnection, AttributeNone}

// ParseAttribute accepts any casing ("Craft", "CRAFT", "craft").
// An empty string is AttributeNone.
func ParseAttribute(s string) (Attribute, error) {
	folded := cases.Fold().String(strings.TrimSpace(s))
	if folded == "" {
		return AttributeNone, nil
	}
	attr := Attribute(folded)
	if !slices.Contains(Attributes, attr) {
		return "", Validationf("unknown attribute %q", s)
	}
	return attr, nil
}

func (a Attribute) MarshalText() ([]byte, error) {
	if a == "" {
		return []byte(AttributeNone), nil
	}
	return []byte(a), nil
}

func (a *Attribute) UnmarshalText(text []byte) error {
	parsed, err := ParseAttribute(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// EventKind identifies what happened. Kinds are lowercase snake_case.
type EventKind string

// Well-known kinds emitted by the progress tracker. Any other non-empty
// kind is accepted.
const (
	KindMissionCompleted  EventKind = "mission_completed"
	KindStreakIncremented EventKind = "streak_incremented"
	KindAttributeLeveled  EventKind = "attribute_leveled"
	KindJournalEntry      EventKind = "journal_entry"
)

// NormalizeEventKind converts "MissionCompleted", "mission-completed" and
// "Mission Completed" to "mission_completed".
func NormalizeEventKind(s string) EventKind {
	s = strings.TrimSpace(s)
	var out strings.Builder
	prevUnderscore := false
	prevLower := false
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			if prevLower && !prevUnderscore {
				out.WriteRune('_')
			}
			out.WriteRune(r + ('a' - 'A'))
			prevUnderscore = false
			prevLower = false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			out.WriteRune(r)
			prevUnderscore = false
			prevLower = true
		case r == ' ' || r == '-' || r == '_' || r == '.':
			if out.Len() > 0 && !prevUnderscore {
				out.WriteRune('_')
				prevUnderscore = true
			}
			prevLower = false
		}
	}
	return EventKind(strings.TrimSuffix(out.String(), "_"))
}

func (k *EventKind) UnmarshalText(text []byte) error {
	*k = NormalizeEventKind(string(text))
	return nil
}

// Event is an immutable record of user progress. ID is assigned by the
// event log at append time and is monotonic per user.
type Event struct {
	ID         int64     `json:"event_id"`
	UserID     string    `json:"user_id"`
	Kind       EventKind `json:"kind"`
	Attribute  Attribute `json:"attribute"`
	OccurredAt time.Time `json:"occurred_at"`
	Magnitude  int       `json:"magnitude"`
}

// Validate checks an event before it is appended. now and skew bound how
// far in the future OccurredAt may be.
func (e *Event) Validate(now time.Time, skew time.Duration) error {
	if strings.TrimSpace(e.UserID) == "" {
		return Validationf("event user_id is required")
	}
	e.Kind = NormalizeEventKind(string(e.Kind))
	if e.Kind == "" {
		return Validationf("event kind is required")
	}
	if e.Attribute == "" {
		e.Attribute = AttributeNone
	}
	if !slices.Contains(Attributes, e.Attribute) {
		return Validationf("unknown attribute %q", e.Attribute)
	}
	if e.OccurredAt.IsZero() {
		return Validationf("event occurred_at is required")
	}
	if e.OccurredAt.After(now.Add(skew)) {
		return Validationf("event occurred_at %s is in the future", e.OccurredAt.Format(time.RFC3339)).
			With("user_id", e.UserID)
	}
	if e.Magnitude < 0 {
		return Validationf("event magnitude must not be negative, got %d", e.Magnitude)
	}
	if e.Magnitude == 0 {
		e.Magnitude = 1
	}
	return nil
}

func (e Event) String() string {
	return fmt.Sprintf("#%d %s/%s@%s", e.ID, e.Kind, e.Attribute, e.OccurredAt.Format(time.RFC3339))
}

// CompareEvents orders events by (OccurredAt, ID).
func CompareEvents(a, b Event) int {
	if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// SortEvents sorts in place into log order.
func SortEvents(events []Event) {
	slices.SortStableFunc(events, CompareEvents)
}

// EventFilter narrows an event log query. Zero values match everything.
// From is inclusive, To is exclusive.
type EventFilter struct {
	Kind      EventKind
	Attribute *Attribute
	From      *time.Time
	To        *time.Time
}

func (f EventFilter) Match(e Event) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Attribute != nil && e.Attribute != *f.Attribute {
		return false
	}
	if f.From != nil && e.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.OccurredAt.Before(*f.To) {
		return false
	}
	return true
}

// Validate rejects an inverted time range.
func (f EventFilter) Validate() error {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return Validationf("time range end %s is before start %s",
			f.To.Format(time.RFC3339), f.From.Format(time.RFC3339))
	}
	return nil
}

// BatchUser returns the user every event in the batch belongs to. An empty
// batch, a missing user or a mix of users is a Validation error.
func BatchUser(events []Event) (string, error) {
	if len(events) == 0 {
		return "", Validationf("events cannot be empty")
	}
	user := events[0].UserID
	if strings.TrimSpace(user) == "" {
		return "", Validationf("event user_id is required")
	}
	for _, e := range events[1:] {
		if e.UserID != user {
			return "", Validationf("batch mixes users %q and %q", user, e.UserID)
		}
	}
	return user, nil
}
