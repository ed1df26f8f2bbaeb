package chat

import (
	"testing"
	"time"
)

func TestStoryEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   StoryEvent
		wantErr bool
	}{
		{"valid", StoryEvent{UserID: "u1", QuestID: "q1", Text: "The forge roars."}, false},
		{"missing user", StoryEvent{QuestID: "q1", Text: "x"}, true},
		{"missing quest", StoryEvent{UserID: "u1", Text: "x"}, true},
		{"blank text", StoryEvent{UserID: "u1", QuestID: "q1", Text: "  "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStoryEventJSON(t *testing.T) {
	in := StoryEvent{UserID: "u1", QuestID: "q1", Title: "Forge", Text: "Sparks.", Rendered: true, CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	data, err := in.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	out, err := StoryEventFromJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if *out != in {
		t.Errorf("round trip mismatch: %+v vs %+v", out, in)
	}

	if _, err := StoryEventFromJSON([]byte("nope")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestFormatStoryEvents(t *testing.T) {
	tests := []struct {
		name     string
		events   []StoryEvent
		expected string
	}{
		{"none", nil, ""},
		{"one", []StoryEvent{{Text: "A door opens."}}, "STORY EVENT: A door opens."},
		{"two", []StoryEvent{{Text: "A door opens."}, {Text: "A bell rings."}}, "STORY EVENT: A door opens.\n\nSTORY EVENT: A bell rings."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatStoryEvents(tt.events); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
