package scenario

import (
	"slices"
	"strings"

	"github.com/jwebster45206/quest-engine/pkg/conditionals"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

// Registry holds published scenarios. It is read-only after NewRegistry
// returns and safe for concurrent use.
type Registry struct {
	scenarios map[string]*Scenario
	ids       []string
}

// NewRegistry validates and indexes scenarios. Duplicate ids are rejected.
func NewRegistry(scenarios ...*Scenario) (*Registry, error) {
	r := &Registry{scenarios: make(map[string]*Scenario, len(scenarios))}
	for _, s := range scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.scenarios[s.ID]; dup {
			return nil, narrative.Conflictf("duplicate scenario id %q", s.ID).With("scenario_id", s.ID)
		}
		r.scenarios[s.ID] = cloneScenario(s)
		r.ids = append(r.ids, s.ID)
	}
	slices.Sort(r.ids)
	return r, nil
}

// Scenario returns a copy of the scenario with the given id.
func (r *Registry) Scenario(id string) (*Scenario, error) {
	s, ok := r.scenarios[id]
	if !ok {
		return nil, notFound(id)
	}
	return cloneScenario(s), nil
}

// List returns scenario summaries sorted by id.
func (r *Registry) List() []Summary {
	out := make([]Summary, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.scenarios[id].Summary())
	}
	return out
}

// QuestsFor returns the scenario's quest definitions in registry order.
func (r *Registry) QuestsFor(scenarioID string) ([]QuestDefinition, error) {
	s, ok := r.scenarios[scenarioID]
	if !ok {
		return nil, notFound(scenarioID)
	}
	return cloneScenario(s).Quests, nil
}

// Definition returns one quest definition.
func (r *Registry) Definition(scenarioID, questID string) (QuestDefinition, error) {
	s, ok := r.scenarios[scenarioID]
	if !ok {
		return QuestDefinition{}, notFound(scenarioID)
	}
	for i := range s.Quests {
		if s.Quests[i].ID == questID {
			return cloneScenario(s).Quests[i], nil
		}
	}
	return QuestDefinition{}, narrative.NotFoundf("quest %q not found in scenario %q", questID, scenarioID).
		With("scenario_id", scenarioID).
		With("quest_id", questID)
}

// Instantiate returns fresh Pending quest instances for a user, one per
// definition, in registry order. Guarding against a second instantiation
// for the same user is the state store's job.
func (r *Registry) Instantiate(scenarioID, userID string) ([]narrative.Quest, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, narrative.Validationf("user_id is required")
	}
	s, ok := r.scenarios[scenarioID]
	if !ok {
		return nil, notFound(scenarioID)
	}
	quests := make([]narrative.Quest, len(s.Quests))
	for i, def := range s.Quests {
		quests[i] = narrative.Quest{
			ID:         def.ID,
			ScenarioID: s.ID,
			Status:     narrative.StatusPending,
		}
	}
	return quests, nil
}

func notFound(scenarioID string) error {
	return narrative.NotFoundf("scenario %q not found", scenarioID).With("scenario_id", scenarioID)
}

// cloneScenario deep-copies s so callers can never reach shared
// definitions.
func cloneScenario(s *Scenario) *Scenario {
	c := *s
	c.Quests = make([]QuestDefinition, len(s.Quests))
	for i, q := range s.Quests {
		q.Trigger = cloneCondition(q.Trigger)
		if q.Reward.Relationships != nil {
			rel := make(map[string]int64, len(q.Reward.Relationships))
			for k, v := range q.Reward.Relationships {
				rel[k] = v
			}
			q.Reward.Relationships = rel
		}
		c.Quests[i] = q
	}
	return &c
}

func cloneCondition(c conditionals.Condition) conditionals.Condition {
	if c.Attribute != nil {
		a := *c.Attribute
		c.Attribute = &a
	}
	if c.Children != nil {
		children := make([]conditionals.Condition, len(c.Children))
		for i, child := range c.Children {
			children[i] = cloneCondition(child)
		}
		c.Children = children
	}
	return c
}
