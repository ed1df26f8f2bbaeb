package services

import (
	"context"
	"strings"
)

// RenderRequest is a quest reveal to turn into prose.
type RenderRequest struct {
	UserID     string
	ScenarioID string
	QuestID    string
	System     string // Scenario-level framing (voice, rating)
	Prompt     string // Reveal direction for this quest
	Fallback   string // Authored text used when nothing is generated
}

// Renderer is the text-generation collaborator. The engine never writes
// prose itself.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (string, error)
}

// PassthroughRenderer returns the authored text unchanged, or the prompt
// when a quest has no authored text.
type PassthroughRenderer struct{}

var _ Renderer = PassthroughRenderer{}

func (PassthroughRenderer) Render(ctx context.Context, req RenderRequest) (string, error) {
	if text := strings.TrimSpace(req.Fallback); text != "" {
		return text, nil
	}
	return strings.TrimSpace(req.Prompt), nil
}
