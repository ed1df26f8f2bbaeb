package narrative

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestQuestTransitions(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	q := Quest{ID: "first_light", Status: StatusPending}
	if err := q.Consume(now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state consuming a pending quest, got %v", err)
	}
	if q.Status != StatusPending {
		t.Fatalf("failed transition must not mutate status, got %s", q.Status)
	}

	if err := q.Unlock(now); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if q.UnlockedAt == nil || !q.UnlockedAt.Equal(now) {
		t.Errorf("expected unlocked_at %v, got %v", now, q.UnlockedAt)
	}
	if err := q.Unlock(now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state re-unlocking, got %v", err)
	}

	if err := q.Consume(now.Add(time.Minute)); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if _, ok := q.Status.Next(); ok {
		t.Error("consumed must be terminal")
	}
	if err := q.Unlock(now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state unlocking a consumed quest, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to QuestStatus
		want     bool
	}{
		{StatusPending, StatusUnlocked, true},
		{StatusUnlocked, StatusConsumed, true},
		{StatusPending, StatusConsumed, false},
		{StatusUnlocked, StatusPending, false},
		{StatusConsumed, StatusPending, false},
		{StatusConsumed, StatusUnlocked, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNarrativeStateClone(t *testing.T) {
	now := time.Now()
	s := NewNarrativeState("u1", "medieval", "", []Quest{
		{ID: "a", Status: StatusPending},
		{ID: "b", Status: StatusPending},
	}, now)

	if s.TimeZone != "UTC" {
		t.Errorf("expected default time zone UTC, got %q", s.TimeZone)
	}
	if s.CurrentChapter != FirstChapter {
		t.Errorf("expected chapter %d, got %d", FirstChapter, s.CurrentChapter)
	}

	c := s.Clone()
	q, _ := c.Quest("a")
	if err := q.Unlock(now); err != nil {
		t.Fatal(err)
	}

	orig, _ := s.Quest("a")
	if orig.Status != StatusPending || orig.UnlockedAt != nil {
		t.Fatalf("mutating the clone leaked into the original: %+v", orig)
	}
	if got := len(c.QuestsWithStatus(StatusUnlocked)); got != 1 {
		t.Errorf("expected 1 unlocked quest in clone, got %d", got)
	}
}

func TestLoadLocation(t *testing.T) {
	if _, err := LoadLocation("America/New_York"); err != nil {
		t.Fatalf("load location: %v", err)
	}
	if _, err := LoadLocation("Mars/Olympus_Mons"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestErrorKinds(t *testing.T) {
	err := NotFoundf("scenario %q not found", "x").With("scenario_id", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is to match by kind")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("kinds must not cross-match")
	}
	if err.Metadata["scenario_id"] != "x" {
		t.Errorf("expected metadata, got %v", err.Metadata)
	}

	wrapped := errors.Join(errors.New("outer"), Conflictf("dup"))
	if KindOf(wrapped) != KindConflict {
		t.Errorf("expected conflict kind through wrapping, got %s", KindOf(wrapped))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("plain errors are internal")
	}

	statuses := map[ErrorKind]int{
		KindValidation:   http.StatusBadRequest,
		KindNotFound:     http.StatusNotFound,
		KindConflict:     http.StatusConflict,
		KindInvalidState: http.StatusConflict,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, want := range statuses {
		if got := kind.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", kind, got, want)
		}
	}
}

func TestRewardDeltas(t *testing.T) {
	r := Reward{Essence: 50, Relationships: map[string]int64{"mira": 2, "old_tom": 0}}
	d := r.Deltas()
	if len(d) != 2 || d[BalanceEssence] != 50 || d[RelationshipBalance("mira")] != 2 {
		t.Fatalf("unexpected deltas: %v", d)
	}
	if !(Reward{}).IsZero() {
		t.Error("empty reward should be zero")
	}
	if err := (Reward{Relationships: map[string]int64{" ": 1}}).Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for blank companion, got %v", err)
	}
}
