package conditionals

import (
	"errors"
	"testing"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

var day0 = time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)

// daily returns one event per listed day offset from day0.
func daily(kind narrative.EventKind, attr narrative.Attribute, days ...int) []narrative.Event {
	events := make([]narrative.Event, 0, len(days))
	for i, d := range days {
		events = append(events, narrative.Event{
			ID:         int64(i + 1),
			UserID:     "u1",
			Kind:       kind,
			Attribute:  attr,
			OccurredAt: day0.AddDate(0, 0, d),
			Magnitude:  1,
		})
	}
	return events
}

func dayRange(from, to int) []int {
	var out []int
	for d := from; d <= to; d++ {
		out = append(out, d)
	}
	return out
}

func mustEval(t *testing.T, c Condition, events []narrative.Event, loc *time.Location) bool {
	t.Helper()
	ok, err := Evaluate(c, events, loc)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return ok
}

func TestConsecutiveDaysStreakQuest(t *testing.T) {
	streak := ConsecutiveDays(narrative.KindMissionCompleted, Attr(narrative.AttributeCraft), 20)

	events := daily(narrative.KindMissionCompleted, narrative.AttributeCraft, dayRange(0, 18)...)
	if mustEval(t, streak, events, time.UTC) {
		t.Fatal("19 consecutive days must not satisfy a 20 day streak")
	}

	events = daily(narrative.KindMissionCompleted, narrative.AttributeCraft, dayRange(0, 19)...)
	if !mustEval(t, streak, events, time.UTC) {
		t.Fatal("20 consecutive days should satisfy the streak")
	}
}

func TestConsecutiveDaysBrokenStreak(t *testing.T) {
	streak := ConsecutiveDays(narrative.KindMissionCompleted, Attr(narrative.AttributeCraft), 20)

	days := append(dayRange(0, 9), dayRange(11, 20)...)
	events := daily(narrative.KindMissionCompleted, narrative.AttributeCraft, days...)

	if mustEval(t, streak, events, time.UTC) {
		t.Fatal("a gap day must break the streak")
	}
	if got := LongestRun(events, narrative.KindMissionCompleted, Attr(narrative.AttributeCraft), time.UTC); got != 10 {
		t.Errorf("expected longest run 10, got %d", got)
	}
}

func TestConsecutiveDaysIgnoresOtherAttributes(t *testing.T) {
	streak := ConsecutiveDays(narrative.KindMissionCompleted, Attr(narrative.AttributeCraft), 3)

	events := daily(narrative.KindMissionCompleted, narrative.AttributeCraft, 0, 2)
	events = append(events, daily(narrative.KindMissionCompleted, narrative.AttributeHealth, 1)...)

	if mustEval(t, streak, events, time.UTC) {
		t.Fatal("a health mission must not fill a craft streak gap")
	}

	anyAttr := ConsecutiveDays(narrative.KindMissionCompleted, nil, 3)
	if !mustEval(t, anyAttr, events, time.UTC) {
		t.Fatal("nil attribute should match every attribute")
	}
}

func TestConsecutiveDaysMultipleEventsPerDay(t *testing.T) {
	events := daily(narrative.KindJournalEntry, narrative.AttributeNone, 0, 0, 0, 1, 1, 2)
	if got := LongestRun(events, narrative.KindJournalEntry, nil, time.UTC); got != 3 {
		t.Errorf("expected run of 3 days, got %d", got)
	}
}

func TestConsecutiveDaysUnsortedInput(t *testing.T) {
	events := daily(narrative.KindMissionCompleted, narrative.AttributeNone, 4, 1, 3, 0, 2)
	if got := LongestRun(events, narrative.KindMissionCompleted, nil, time.UTC); got != 5 {
		t.Errorf("expected run of 5 days, got %d", got)
	}
}

func TestConsecutiveDaysUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 23:30 and 00:30 UTC on consecutive UTC days are the same evening in
	// New York.
	events := []narrative.Event{
		{ID: 1, Kind: narrative.KindMissionCompleted, OccurredAt: time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)},
		{ID: 2, Kind: narrative.KindMissionCompleted, OccurredAt: time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC)},
	}
	c := ConsecutiveDays(narrative.KindMissionCompleted, nil, 2)

	if !mustEval(t, c, events, time.UTC) {
		t.Error("expected two UTC days")
	}
	if mustEval(t, c, events, ny) {
		t.Error("expected one New York day")
	}
}

func TestConsecutiveDaysAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// US clocks spring forward on 2026-03-08.
	var events []narrative.Event
	for i, d := range []int{6, 7, 8, 9, 10} {
		events = append(events, narrative.Event{
			ID:         int64(i + 1),
			Kind:       narrative.KindMissionCompleted,
			OccurredAt: time.Date(2026, 3, d, 21, 0, 0, 0, ny),
		})
	}
	if got := LongestRun(events, narrative.KindMissionCompleted, nil, ny); got != 5 {
		t.Errorf("expected run of 5 days across DST, got %d", got)
	}
}

func TestCompositeAnd(t *testing.T) {
	c := And(
		CountAtLeast(narrative.KindMissionCompleted, nil, 5),
		CountAtLeast(narrative.KindJournalEntry, nil, 1),
	)

	events := daily(narrative.KindMissionCompleted, narrative.AttributeGrowth, 0, 0, 1, 2, 3)
	if mustEval(t, c, events, nil) {
		t.Fatal("missions alone must not satisfy the AND")
	}

	events = append(events, daily(narrative.KindJournalEntry, narrative.AttributeNone, 4)...)
	if !mustEval(t, c, events, nil) {
		t.Fatal("a journal entry should complete the AND")
	}
}

func TestCompositeOr(t *testing.T) {
	c := Or(
		CountAtLeast(narrative.KindAttributeLeveled, nil, 1),
		ConsecutiveDays(narrative.KindJournalEntry, nil, 3),
	)

	if mustEval(t, c, nil, nil) {
		t.Fatal("empty history satisfies nothing")
	}
	events := daily(narrative.KindJournalEntry, narrative.AttributeNone, 0, 1, 2)
	if !mustEval(t, c, events, nil) {
		t.Fatal("the streak branch should satisfy the OR")
	}
}

func TestEvaluateMonotonic(t *testing.T) {
	conds := []Condition{
		CountAtLeast(narrative.KindMissionCompleted, nil, 3),
		CountAtLeast(narrative.KindMissionCompleted, Attr(narrative.AttributeCraft), 2),
		ConsecutiveDays(narrative.KindMissionCompleted, nil, 3),
		ConsecutiveDays(narrative.KindMissionCompleted, Attr(narrative.AttributeCraft), 2),
	}

	attrs := []narrative.Attribute{narrative.AttributeCraft, narrative.AttributeHealth}
	var history []narrative.Event
	seen := make([]bool, len(conds))
	for i := 0; i < 40; i++ {
		// irregular day gaps, alternating attributes
		history = append(history, narrative.Event{
			ID:         int64(i + 1),
			Kind:       narrative.KindMissionCompleted,
			Attribute:  attrs[(i/3)%2],
			OccurredAt: day0.AddDate(0, 0, i+(i/7)),
		})
		for j, c := range conds {
			got := mustEval(t, c, history, time.UTC)
			if seen[j] && !got {
				t.Fatalf("condition %q went from true to false after %d events", Describe(c), i+1)
			}
			seen[j] = seen[j] || got
		}
	}
	for j, s := range seen {
		if !s {
			t.Errorf("condition %q never became true", Describe(conds[j]))
		}
	}
}

func TestEvaluateIsRepeatable(t *testing.T) {
	c := And(
		ConsecutiveDays(narrative.KindMissionCompleted, nil, 2),
		Or(CountAtLeast(narrative.KindJournalEntry, nil, 1), CountAtLeast(narrative.KindStreakIncremented, nil, 2)),
	)
	events := append(
		daily(narrative.KindMissionCompleted, narrative.AttributeNone, 2, 0, 1),
		daily(narrative.KindJournalEntry, narrative.AttributeNone, 3)...,
	)
	snapshot := append([]narrative.Event(nil), events...)

	first := mustEval(t, c, events, nil)
	for i := 0; i < 5; i++ {
		if got := mustEval(t, c, events, nil); got != first {
			t.Fatalf("evaluation %d returned %v, first returned %v", i, got, first)
		}
	}
	for i := range events {
		if events[i] != snapshot[i] {
			t.Fatalf("evaluate reordered or mutated its input at %d", i)
		}
	}
}

func TestValidate(t *testing.T) {
	deep := CountAtLeast(narrative.KindJournalEntry, nil, 1)
	for i := 0; i < MaxDepth; i++ {
		deep = And(deep)
	}

	tests := []struct {
		name string
		c    Condition
	}{
		{"missing type", Condition{Kind: narrative.KindJournalEntry, Threshold: 1}},
		{"unknown type", Condition{Type: "at_most", Kind: narrative.KindJournalEntry, Threshold: 1}},
		{"missing kind", CountAtLeast("", nil, 1)},
		{"zero threshold", CountAtLeast(narrative.KindJournalEntry, nil, 0)},
		{"negative threshold", ConsecutiveDays(narrative.KindJournalEntry, nil, -3)},
		{"empty composite", And()},
		{"unknown op", Condition{Type: TypeComposite, Op: "xor", Children: []Condition{CountAtLeast(narrative.KindJournalEntry, nil, 1)}}},
		{"nested invalid child", Or(CountAtLeast(narrative.KindJournalEntry, nil, 1), Or())},
		{"too deep", deep},
		{"unnormalized kind", Condition{Type: TypeCountAtLeast, Kind: "MissionCompleted", Threshold: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.c); !errors.Is(err, narrative.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, err := Evaluate(tt.c, nil, nil); !errors.Is(err, narrative.ErrValidation) {
				t.Fatalf("evaluate should reject the definition, got %v", err)
			}
		})
	}
}

func TestConstructorsNormalizeKind(t *testing.T) {
	events := daily(narrative.KindMissionCompleted, narrative.AttributeCraft, 0, 1, 2)

	for _, c := range []Condition{
		CountAtLeast("MissionCompleted", nil, 3),
		ConsecutiveDays("mission-completed", Attr(narrative.AttributeCraft), 3),
	} {
		if c.Kind != narrative.KindMissionCompleted {
			t.Errorf("kind = %q, want %q", c.Kind, narrative.KindMissionCompleted)
		}
		if err := Validate(c); err != nil {
			t.Errorf("Validate(%s): %v", Describe(c), err)
		}
		if !mustEval(t, c, events, time.UTC) {
			t.Errorf("%s should hold", Describe(c))
		}
	}
}

func TestDescribe(t *testing.T) {
	c := And(
		ConsecutiveDays(narrative.KindMissionCompleted, Attr(narrative.AttributeCraft), 20),
		Or(CountAtLeast(narrative.KindJournalEntry, nil, 1), CountAtLeast(narrative.KindAttributeLeveled, nil, 2)),
	)
	want := "20 consecutive days of mission_completed (craft) AND (at least 1 journal_entry OR at least 2 attribute_leveled)"
	if got := Describe(c); got != want {
		t.Errorf("Describe() =\n%q\nwant\n%q", got, want)
	}
}

func TestProgress(t *testing.T) {
	c := And(
		ConsecutiveDays(narrative.KindMissionCompleted, nil, 5),
		CountAtLeast(narrative.KindJournalEntry, nil, 1),
	)
	events := daily(narrative.KindMissionCompleted, narrative.AttributeNone, 0, 1, 2)

	leaves, err := Progress(c, events, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(leaves) != 2 {
		t.Fatalf("expected 2 leaves, got %d", len(leaves))
	}
	if leaves[0].Current != 3 || leaves[0].Threshold != 5 || leaves[0].Satisfied {
		t.Errorf("unexpected streak progress: %+v", leaves[0])
	}
	if leaves[1].Current != 0 || leaves[1].Satisfied {
		t.Errorf("unexpected journal progress: %+v", leaves[1])
	}
}
