package scenario

import (
	"regexp"
	"strings"

	"github.com/jwebster45206/quest-engine/pkg/conditionals"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

// Scenario is a narrative theme with its ordered list of hidden quests.
// Quest order is significant: quests unlocked in the same tick are revealed
// in this order.
type Scenario struct {
	ID       string            `json:"id" yaml:"id"`
	Name     string            `json:"name" yaml:"name"`
	Story    string            `json:"story" yaml:"story"`                           // Brief description of the world
	Narrator string            `json:"narrator,omitempty" yaml:"narrator,omitempty"` // Voice notes for the renderer
	Rating   string            `json:"rating,omitempty" yaml:"rating,omitempty"`     // G, PG, PG13 or R
	Quests   []QuestDefinition `json:"quests" yaml:"quests"`
}

// QuestDefinition is the immutable, shared definition of a hidden quest.
// Per-user progress lives in narrative.Quest instances.
type QuestDefinition struct {
	ID              string                 `json:"id" yaml:"id"`
	Title           string                 `json:"title" yaml:"title"`
	Chapter         int                    `json:"chapter,omitempty" yaml:"chapter,omitempty"`
	AdvancesChapter bool                   `json:"advances_chapter,omitempty" yaml:"advances_chapter,omitempty"`
	Trigger         conditionals.Condition `json:"trigger" yaml:"trigger"`
	Narrative       NarrativePayload       `json:"narrative" yaml:"narrative"`
	Reward          narrative.Reward       `json:"reward" yaml:"reward"`
}

// NarrativePayload is handed to the text renderer once a quest unlocks.
// Text is shown as-is when no renderer is configured; Prompt steers a
// generative renderer.
type NarrativePayload struct {
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Text   string `json:"text,omitempty" yaml:"text,omitempty"`
}

func (p NarrativePayload) IsZero() bool {
	return strings.TrimSpace(p.Prompt) == "" && strings.TrimSpace(p.Text) == ""
}

var idPattern = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)

// ValidID reports whether s is a lowercase snake_case identifier.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}

var ratings = map[string]bool{"": true, RatingG: true, RatingPG: true, RatingPG13: true, RatingR: true}

// Validate checks the whole scenario and reports the first problem found.
func (s *Scenario) Validate() error {
	if !ValidID(s.ID) {
		return narrative.Validationf("scenario id %q must be lowercase snake_case", s.ID)
	}
	if strings.TrimSpace(s.Name) == "" {
		return narrative.Validationf("scenario %s: name is required", s.ID)
	}
	if !ratings[s.Rating] {
		return narrative.Validationf("scenario %s: unknown rating %q", s.ID, s.Rating)
	}
	if len(s.Quests) == 0 {
		return narrative.Validationf("scenario %s: at least one quest is required", s.ID)
	}

	seen := make(map[string]bool, len(s.Quests))
	for i := range s.Quests {
		q := &s.Quests[i]
		if !ValidID(q.ID) {
			return narrative.Validationf("scenario %s: quest %d id %q must be lowercase snake_case", s.ID, i, q.ID)
		}
		if seen[q.ID] {
			return narrative.Validationf("scenario %s: duplicate quest id %q", s.ID, q.ID)
		}
		seen[q.ID] = true

		if q.Chapter < 0 {
			return narrative.Validationf("scenario %s: quest %s chapter must not be negative", s.ID, q.ID)
		}
		if err := conditionals.Validate(q.Trigger); err != nil {
			return narrative.Validationf("scenario %s: quest %s: %v", s.ID, q.ID, err)
		}
		if q.Narrative.IsZero() {
			return narrative.Validationf("scenario %s: quest %s has no narrative prompt or text", s.ID, q.ID)
		}
		if err := q.Reward.Validate(); err != nil {
			return narrative.Validationf("scenario %s: quest %s: %v", s.ID, q.ID, err)
		}
	}
	return nil
}

// Quest returns the definition with the given id.
func (s *Scenario) Quest(id string) (QuestDefinition, bool) {
	for _, q := range s.Quests {
		if q.ID == id {
			return q, true
		}
	}
	return QuestDefinition{}, false
}

// Summary is the listing form of a scenario.
type Summary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Story      string `json:"story"`
	QuestCount int    `json:"quest_count"`
}

func (s *Scenario) Summary() Summary {
	return Summary{ID: s.ID, Name: s.Name, Story: s.Story, QuestCount: len(s.Quests)}
}
