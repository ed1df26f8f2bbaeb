package conditionals

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

// Describe renders a condition as a short English phrase, e.g.
// "20 consecutive days of mission_completed (craft)".
func Describe(c Condition) string {
	switch c.Type {
	case TypeCountAtLeast:
		return fmt.Sprintf("at least %d %s%s", c.Threshold, c.Kind, attrSuffix(c.Attribute))
	case TypeConsecutiveDays:
		return fmt.Sprintf("%d consecutive days of %s%s", c.Threshold, c.Kind, attrSuffix(c.Attribute))
	case TypeComposite:
		parts := make([]string, len(c.Children))
		for i, child := range c.Children {
			parts[i] = Describe(child)
			if child.Type == TypeComposite {
				parts[i] = "(" + parts[i] + ")"
			}
		}
		return strings.Join(parts, " "+strings.ToUpper(string(c.Op))+" ")
	}
	return string(c.Type)
}

func attrSuffix(attr *narrative.Attribute) string {
	if attr == nil {
		return ""
	}
	return " (" + string(*attr) + ")"
}

// LeafProgress is how far one count or streak leaf is from its threshold.
type LeafProgress struct {
	Description string `json:"description"`
	Current     int    `json:"current"`
	Threshold   int    `json:"threshold"`
	Satisfied   bool   `json:"satisfied"`
}

// Progress lists every leaf of c in depth-first order with its current
// value against events. It does not decide the composite outcome; use
// Evaluate for that.
func Progress(c Condition, events []narrative.Event, loc *time.Location) ([]LeafProgress, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	var out []LeafProgress
	walkLeaves(c, func(leaf Condition) {
		var current int
		if leaf.Type == TypeCountAtLeast {
			current = count(leaf, events)
		} else {
			current = longestRun(leaf, events, loc)
		}
		out = append(out, LeafProgress{
			Description: Describe(leaf),
			Current:     current,
			Threshold:   leaf.Threshold,
			Satisfied:   current >= leaf.Threshold,
		})
	})
	return out, nil
}

func walkLeaves(c Condition, fn func(Condition)) {
	if c.Type != TypeComposite {
		fn(c)
		return
	}
	for _, child := range c.Children {
		walkLeaves(child, fn)
	}
}
