package conditionals

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

// Type selects which fields of a Condition are meaningful.
type Type string

const (
	TypeCountAtLeast    Type = "count_at_least"
	TypeConsecutiveDays Type = "consecutive_days"
	TypeComposite       Type = "composite"
)

// Op combines the children of a composite condition.
type Op string

const (
	OpAnd Op = "and"
	OpOr  Op = "or"
)

func (o *Op) UnmarshalText(text []byte) error {
	*o = Op(strings.ToLower(strings.TrimSpace(string(text))))
	return nil
}

// MaxDepth bounds how deeply composites may nest.
const MaxDepth = 32

// Condition is a declarative trigger over one user's event history.
//
// count_at_least:   Kind, optional Attribute, Threshold
// consecutive_days: Kind, optional Attribute, Threshold
// composite:        Op, Children
//
// A nil Attribute matches events of any attribute.
type Condition struct {
	Type      Type                 `json:"type" yaml:"type"`
	Kind      narrative.EventKind  `json:"kind,omitempty" yaml:"kind,omitempty"`
	Attribute *narrative.Attribute `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Threshold int                  `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Op        Op                   `json:"op,omitempty" yaml:"op,omitempty"`
	Children  []Condition          `json:"children,omitempty" yaml:"children,omitempty"`
}

// CountAtLeast is true once at least threshold matching events exist.
// kind is normalized the way stored events are ("MissionCompleted" and
// "mission_completed" are the same kind).
func CountAtLeast(kind narrative.EventKind, attr *narrative.Attribute, threshold int) Condition {
	return Condition{Type: TypeCountAtLeast, Kind: narrative.NormalizeEventKind(string(kind)), Attribute: attr, Threshold: threshold}
}

// ConsecutiveDays is true once threshold consecutive calendar days each
// hold at least one matching event.
func ConsecutiveDays(kind narrative.EventKind, attr *narrative.Attribute, threshold int) Condition {
	return Condition{Type: TypeConsecutiveDays, Kind: narrative.NormalizeEventKind(string(kind)), Attribute: attr, Threshold: threshold}
}

func And(children ...Condition) Condition {
	return Condition{Type: TypeComposite, Op: OpAnd, Children: children}
}

func Or(children ...Condition) Condition {
	return Condition{Type: TypeComposite, Op: OpOr, Children: children}
}

// Attr is a convenience for building conditions with an attribute filter.
func Attr(a narrative.Attribute) *narrative.Attribute {
	return &a
}

// Validate reports the first definition error in the tree.
func Validate(c Condition) error {
	return validate(c, "trigger", 1)
}

func validate(c Condition, path string, depth int) error {
	if depth > MaxDepth {
		return narrative.Validationf("%s: conditions nest deeper than %d", path, MaxDepth)
	}

	switch c.Type {
	case TypeCountAtLeast, TypeConsecutiveDays:
		if c.Kind == "" {
			return narrative.Validationf("%s: %s requires a kind", path, c.Type)
		}
		// Stored events carry normalized kinds; anything else never matches.
		if norm := narrative.NormalizeEventKind(string(c.Kind)); norm != c.Kind {
			return narrative.Validationf("%s: kind %q is not normalized, use %q", path, c.Kind, norm)
		}
		if c.Threshold < 1 {
			return narrative.Validationf("%s: %s threshold must be at least 1, got %d", path, c.Type, c.Threshold)
		}
		if len(c.Children) > 0 {
			return narrative.Validationf("%s: %s cannot have children", path, c.Type)
		}
	case TypeComposite:
		if c.Op != OpAnd && c.Op != OpOr {
			return narrative.Validationf("%s: unknown composite op %q", path, c.Op)
		}
		if len(c.Children) == 0 {
			return narrative.Validationf("%s: composite %s has no children", path, c.Op)
		}
		for i, child := range c.Children {
			if err := validate(child, fmt.Sprintf("%s.children[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
	case "":
		return narrative.Validationf("%s: condition type is required", path)
	default:
		return narrative.Validationf("%s: unknown condition type %q", path, c.Type)
	}
	return nil
}

// Size is the number of nodes in the tree.
func Size(c Condition) int {
	n := 1
	for _, child := range c.Children {
		n += Size(child)
	}
	return n
}

func (c Condition) matches(e narrative.Event) bool {
	if e.Kind != c.Kind {
		return false
	}
	return c.Attribute == nil || e.Attribute == *c.Attribute
}
