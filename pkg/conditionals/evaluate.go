package conditionals

import (
	"slices"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

// Evaluate reports whether c holds for one user's events. Days for
// consecutive_days are calendar days in loc (UTC when nil).
//
// Evaluate has no side effects and keeps no state between calls: the same
// inputs always give the same answer. Work is linear in
// len(events) * Size(c), plus a sort of day buckets for unsorted input.
func Evaluate(c Condition, events []narrative.Event, loc *time.Location) (bool, error) {
	if err := Validate(c); err != nil {
		return false, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return eval(c, events, loc), nil
}

func eval(c Condition, events []narrative.Event, loc *time.Location) bool {
	switch c.Type {
	case TypeCountAtLeast:
		return count(c, events) >= c.Threshold
	case TypeConsecutiveDays:
		return longestRun(c, events, loc) >= c.Threshold
	case TypeComposite:
		if c.Op == OpAnd {
			for _, child := range c.Children {
				if !eval(child, events, loc) {
					return false
				}
			}
			return true
		}
		for _, child := range c.Children {
			if eval(child, events, loc) {
				return true
			}
		}
		return false
	}
	return false
}

// Count returns the number of events matching kind and attr (nil = any).
func Count(events []narrative.Event, kind narrative.EventKind, attr *narrative.Attribute) int {
	return count(Condition{Kind: kind, Attribute: attr}, events)
}

// LongestRun returns the longest run of consecutive calendar days in loc
// that each contain a matching event.
func LongestRun(events []narrative.Event, kind narrative.EventKind, attr *narrative.Attribute, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	return longestRun(Condition{Kind: kind, Attribute: attr}, events, loc)
}

func count(c Condition, events []narrative.Event) int {
	n := 0
	for _, e := range events {
		if c.matches(e) {
			n++
		}
	}
	return n
}

func longestRun(c Condition, events []narrative.Event, loc *time.Location) int {
	days := make([]int64, 0, len(events))
	for _, e := range events {
		if c.matches(e) {
			days = append(days, civilDay(e.OccurredAt, loc))
		}
	}
	if len(days) == 0 {
		return 0
	}
	if !slices.IsSorted(days) {
		slices.Sort(days)
	}

	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		switch days[i] - days[i-1] {
		case 0:
			// same day
		case 1:
			run++
			if run > best {
				best = run
			}
		default:
			run = 1
		}
	}
	return best
}

// civilDay numbers the calendar day t falls on in loc. Numbering goes
// through the date, not elapsed seconds, so DST days still count as one.
func civilDay(t time.Time, loc *time.Location) int64 {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
