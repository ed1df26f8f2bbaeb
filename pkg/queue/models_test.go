package queue

import (
	"testing"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

func TestRequestValidate(t *testing.T) {
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"progress", Request{Type: RequestTypeProgress, UserID: "u1", Events: []ProgressEvent{{Kind: narrative.KindJournalEntry, OccurredAt: at}}}, false},
		{"tick", Request{Type: RequestTypeTick, UserID: "u1"}, false},
		{"missing user", Request{Type: RequestTypeTick}, true},
		{"progress without events", Request{Type: RequestTypeProgress, UserID: "u1"}, true},
		{"unknown type", Request{Type: "chat", UserID: "u1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromJSONNormalizesEventFields(t *testing.T) {
	data := []byte(`{"request_id":"r1","type":"progress","user_id":"u1","events":[{"kind":"MissionCompleted","attribute":"Craft","occurred_at":"2026-05-01T08:00:00Z"}]}`)

	req, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if len(req.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(req.Events))
	}
	ev := req.Events[0].Event(req.UserID)
	if ev.Kind != narrative.KindMissionCompleted {
		t.Errorf("expected kind %q, got %q", narrative.KindMissionCompleted, ev.Kind)
	}
	if ev.Attribute != narrative.AttributeCraft {
		t.Errorf("expected attribute craft, got %q", ev.Attribute)
	}
	if ev.UserID != "u1" {
		t.Errorf("expected user u1, got %q", ev.UserID)
	}

	if _, err := FromJSON([]byte(`{"events":[{"attribute":"wizardry"}]}`)); err == nil {
		t.Error("expected unknown attribute to fail decoding")
	}
}
