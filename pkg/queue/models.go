package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

// RequestType identifies the type of request in the queue
type RequestType string

const (
	// RequestTypeProgress carries new events; the worker appends them and ticks
	RequestTypeProgress RequestType = "progress"

	// RequestTypeTick re-evaluates a user without new events
	RequestTypeTick RequestType = "tick"
)

// ProgressEvent is one event reported by the progress tracker. UserID and
// the event id are filled in by the worker.
type ProgressEvent struct {
	Kind       narrative.EventKind `json:"kind"`
	Attribute  narrative.Attribute `json:"attribute,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
	Magnitude  int                 `json:"magnitude,omitempty"`
}

// Event converts the report into a log event for userID.
func (p ProgressEvent) Event(userID string) narrative.Event {
	return narrative.Event{
		UserID:     userID,
		Kind:       p.Kind,
		Attribute:  p.Attribute,
		OccurredAt: p.OccurredAt,
		Magnitude:  p.Magnitude,
	}
}

// Request is a unit of work on the progress-requests queue.
type Request struct {
	RequestID  string          `json:"request_id"`
	Type       RequestType     `json:"type"`
	UserID     string          `json:"user_id"`
	Events     []ProgressEvent `json:"events,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Validate rejects requests a worker could never process.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("user_id is required")
	}
	switch r.Type {
	case RequestTypeProgress:
		if len(r.Events) == 0 {
			return fmt.Errorf("progress request has no events")
		}
	case RequestTypeTick:
	default:
		return fmt.Errorf("unknown request type %q", r.Type)
	}
	return nil
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
