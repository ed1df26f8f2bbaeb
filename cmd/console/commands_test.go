package main

import (
	"testing"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
		wantArgs int
		wantErr  bool
	}{
		{"plain text is a journal entry", "walked the dog", cmdEvent, 1, false},
		{"event with attribute", "/event mission_completed craft", cmdEvent, 2, false},
		{"event with magnitude", "/event streak_incremented health 3", cmdEvent, 3, false},
		{"command is case insensitive", "/TICK", cmdTick, 0, false},
		{"deliver", "/deliver first_step", cmdDeliver, 1, false},
		{"event without kind", "/event", "", 0, true},
		{"deliver without quest", "/deliver", "", 0, true},
		{"tick with args", "/tick now", "", 0, true},
		{"unknown", "/dance", "", 0, true},
		{"empty", "   ", "", 0, true},
		{"bare slash", "/", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := parseCommand(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCommand(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cmd.name != tt.wantName {
				t.Errorf("expected command %q, got %q", tt.wantName, cmd.name)
			}
			if len(cmd.args) != tt.wantArgs {
				t.Errorf("expected %d args, got %v", tt.wantArgs, cmd.args)
			}
		})
	}
}

func TestCommandProgressEvent(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.FixedZone("EST", -5*3600))

	cmd, err := parseCommand("/event MissionCompleted Craft 2")
	if err != nil {
		t.Fatalf("parseCommand: %v", err)
	}
	ev, err := cmd.progressEvent(now)
	if err != nil {
		t.Fatalf("progressEvent: %v", err)
	}
	if ev.Kind != narrative.KindMissionCompleted {
		t.Errorf("expected kind %q, got %q", narrative.KindMissionCompleted, ev.Kind)
	}
	if ev.Attribute != narrative.AttributeCraft {
		t.Errorf("expected attribute craft, got %q", ev.Attribute)
	}
	if ev.Magnitude != 2 {
		t.Errorf("expected magnitude 2, got %d", ev.Magnitude)
	}
	if ev.OccurredAt.Location() != time.UTC || !ev.OccurredAt.Equal(now) {
		t.Errorf("expected %v in UTC, got %v", now, ev.OccurredAt)
	}

	journal, _ := parseCommand("felt good today")
	ev, err = journal.progressEvent(now)
	if err != nil {
		t.Fatalf("progressEvent: %v", err)
	}
	if ev.Kind != narrative.KindJournalEntry || ev.Attribute != narrative.AttributeNone {
		t.Errorf("expected a plain journal entry, got %s/%s", ev.Kind, ev.Attribute)
	}

	for _, input := range []string{"/event journal_entry wizardry", "/event journal_entry growth -1", "/event journal_entry growth lots"} {
		cmd, err := parseCommand(input)
		if err != nil {
			t.Fatalf("parseCommand(%q): %v", input, err)
		}
		if _, err := cmd.progressEvent(now); err == nil {
			t.Errorf("expected %q to be rejected", input)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName("mission_completed"); got != "Mission Completed" {
		t.Errorf("expected Mission Completed, got %q", got)
	}
	if got := displayName("ESSENCE"); got != "Essence" {
		t.Errorf("expected Essence, got %q", got)
	}
}
