package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	ChatRoleUser   = "user"      // The player
	ChatRoleAgent  = "assistant" // Narrator
	ChatRoleSystem = "system"    // Scenario framing
)

// ChatMessage represents a single message sent to a text renderer.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// StoryEventPrefix marks a quest reveal inside the chat transcript.
const StoryEventPrefix = "STORY EVENT: "

// StoryEvent is a rendered quest reveal waiting for the chat collaborator
// to show it.
type StoryEvent struct {
	UserID    string    `json:"user_id"`
	QuestID   string    `json:"quest_id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Rendered  bool      `json:"rendered"` // false when Text is the authored fallback
	CreatedAt time.Time `json:"created_at"`
}

func (e *StoryEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("story event user_id cannot be empty")
	}
	if strings.TrimSpace(e.QuestID) == "" {
		return fmt.Errorf("story event quest_id cannot be empty")
	}
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Errorf("story event text cannot be empty")
	}
	return nil
}

// ToJSON converts the story event to JSON bytes for Redis
func (e *StoryEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// StoryEventFromJSON parses a story event from JSON bytes
func StoryEventFromJSON(data []byte) (*StoryEvent, error) {
	var e StoryEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// FormatStoryEvents joins events into one prompt block, one
// "STORY EVENT:" paragraph each.
func FormatStoryEvents(events []StoryEvent) string {
	parts := make([]string, 0, len(events))
	for _, e := range events {
		parts = append(parts, StoryEventPrefix+e.Text)
	}
	return strings.Join(parts, "\n\n")
}
