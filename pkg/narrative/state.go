package narrative

import (
	"time"
	_ "time/tzdata" // user time zones resolve on hosts without a zoneinfo database
)

// FirstChapter is the chapter every story starts in.
const FirstChapter = 1

// NarrativeState is one user's progress through one scenario. Only the
// engine mutates it, and always under that user's exclusive scope.
type NarrativeState struct {
	UserID         string    `json:"user_id"`
	ScenarioID     string    `json:"scenario_id"`
	TimeZone       string    `json:"time_zone"`
	CurrentChapter int       `json:"current_chapter"`
	Quests         []Quest   `json:"quests"` // Scenario definition order
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewNarrativeState builds the starting state for a user. quests must
// already be fresh pending instances.
func NewNarrativeState(userID, scenarioID, timeZone string, quests []Quest, now time.Time) *NarrativeState {
	if timeZone == "" {
		timeZone = "UTC"
	}
	return &NarrativeState{
		UserID:         userID,
		ScenarioID:     scenarioID,
		TimeZone:       timeZone,
		CurrentChapter: FirstChapter,
		Quests:         quests,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Quest returns a pointer into s.Quests so callers can transition it.
func (s *NarrativeState) Quest(questID string) (*Quest, bool) {
	for i := range s.Quests {
		if s.Quests[i].ID == questID {
			return &s.Quests[i], true
		}
	}
	return nil, false
}

// QuestsWithStatus returns copies of the quests in the given status, in
// scenario order.
func (s *NarrativeState) QuestsWithStatus(status QuestStatus) []Quest {
	var out []Quest
	for _, q := range s.Quests {
		if q.Status == status {
			out = append(out, q)
		}
	}
	return out
}

// Location resolves TimeZone. An unknown zone is a validation error.
func (s *NarrativeState) Location() (*time.Location, error) {
	return LoadLocation(s.TimeZone)
}

// Clone returns a deep copy. The engine mutates a clone and persists it in
// one write so a failed or cancelled call leaves the stored state untouched.
func (s *NarrativeState) Clone() *NarrativeState {
	if s == nil {
		return nil
	}
	cloned := *s
	cloned.Quests = make([]Quest, len(s.Quests))
	for i, q := range s.Quests {
		cloned.Quests[i] = q
		if q.UnlockedAt != nil {
			t := *q.UnlockedAt
			cloned.Quests[i].UnlockedAt = &t
		}
		if q.ConsumedAt != nil {
			t := *q.ConsumedAt
			cloned.Quests[i].ConsumedAt = &t
		}
	}
	return &cloned
}

// LoadLocation wraps time.LoadLocation with a validation error.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "unknown time zone " + name, Cause: err}
	}
	return loc, nil
}
