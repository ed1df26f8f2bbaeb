package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jwebster45206/quest-engine/internal/services"
	"github.com/jwebster45206/quest-engine/pkg/chat"
	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/queue"
)

// StoryQueue receives rendered reveals for the chat collaborator.
type StoryQueue interface {
	Enqueue(ctx context.Context, event chat.StoryEvent) error
}

// Publisher pushes worker outcomes to live subscribers.
type Publisher interface {
	PublishStoryRendered(ctx context.Context, userID, requestID, questID, text string) error
	PublishRequestFailed(ctx context.Context, userID, requestID, errorMsg string) error
}

// Outcome summarizes one processed request.
type Outcome struct {
	Appended  int
	Unlocked  []string
	Delivered []string
	Skipped   []string // unlocked but left for a later request
}

// Processor turns a queued progress request into appended events, unlocks
// and delivered reveals.
type Processor struct {
	engine    *engine.Engine
	renderer  services.Renderer
	stories   StoryQueue
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewProcessor wires a processor. publisher may be nil.
func NewProcessor(e *engine.Engine, renderer services.Renderer, stories StoryQueue, publisher Publisher, logger *slog.Logger) *Processor {
	if renderer == nil {
		renderer = services.PassthroughRenderer{}
	}
	return &Processor{
		engine:    e,
		renderer:  renderer,
		stories:   stories,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Process handles one request. Events are appended before the tick so a
// request that unlocks nothing still records progress. Every unlocked quest
// that has not been delivered is rendered and delivered, including ones
// left over from an earlier failed request.
func (p *Processor) Process(ctx context.Context, req *queue.Request) (Outcome, error) {
	var out Outcome
	if err := req.Validate(); err != nil {
		return out, narrative.Validationf("invalid request %s: %v", req.RequestID, err)
	}

	if len(req.Events) > 0 {
		batch := make([]narrative.Event, 0, len(req.Events))
		for _, pe := range req.Events {
			batch = append(batch, pe.Event(req.UserID))
		}
		appended, err := p.engine.AppendEvents(ctx, batch)
		if err != nil {
			p.fail(ctx, req, err)
			return out, fmt.Errorf("failed to append events: %w", err)
		}
		out.Appended = len(appended)
	}

	tick, err := p.engine.Tick(ctx, req.UserID)
	if err != nil {
		p.fail(ctx, req, err)
		return out, fmt.Errorf("failed to tick: %w", err)
	}
	for _, r := range tick.Unlocked {
		out.Unlocked = append(out.Unlocked, r.QuestID)
	}

	pending, err := p.engine.Undelivered(ctx, req.UserID)
	if err != nil {
		p.fail(ctx, req, err)
		return out, fmt.Errorf("failed to list undelivered quests: %w", err)
	}

	var errs []error
	for _, reveal := range pending {
		delivered, err := p.deliver(ctx, req, tick.State.ScenarioID, reveal)
		if err != nil {
			errs = append(errs, fmt.Errorf("quest %s: %w", reveal.QuestID, err))
			out.Skipped = append(out.Skipped, reveal.QuestID)
			continue
		}
		if !delivered {
			out.Skipped = append(out.Skipped, reveal.QuestID)
			continue
		}
		out.Delivered = append(out.Delivered, reveal.QuestID)
	}
	if err := errors.Join(errs...); err != nil {
		p.fail(ctx, req, err)
		return out, err
	}
	return out, nil
}

// deliver renders one reveal, hands it to the chat queue and marks it
// consumed. It reports false when there was nothing to show.
func (p *Processor) deliver(ctx context.Context, req *queue.Request, scenarioID string, reveal engine.Reveal) (bool, error) {
	text, rendered := p.render(ctx, req.UserID, scenarioID, reveal)
	if text == "" {
		p.logger.Warn("Reveal has no text, leaving quest unlocked",
			"user_id", req.UserID,
			"quest_id", reveal.QuestID)
		return false, nil
	}

	event := chat.StoryEvent{
		UserID:    req.UserID,
		QuestID:   reveal.QuestID,
		Title:     reveal.Title,
		Text:      text,
		Rendered:  rendered,
		CreatedAt: p.now().UTC(),
	}
	if err := p.stories.Enqueue(ctx, event); err != nil {
		return false, fmt.Errorf("failed to enqueue story event: %w", err)
	}
	if p.publisher != nil {
		if err := p.publisher.PublishStoryRendered(ctx, req.UserID, req.RequestID, reveal.QuestID, text); err != nil {
			p.logger.Error("Failed to publish story event", "error", err, "quest_id", reveal.QuestID)
		}
	}

	if _, err := p.engine.Deliver(ctx, req.UserID, reveal.QuestID); err != nil {
		return false, fmt.Errorf("failed to deliver: %w", err)
	}
	return true, nil
}

// render asks the renderer for prose and falls back to the authored text.
func (p *Processor) render(ctx context.Context, userID, scenarioID string, reveal engine.Reveal) (string, bool) {
	fallback := strings.TrimSpace(reveal.Narrative.Text)

	var system string
	if sc, err := p.engine.Registry().Scenario(scenarioID); err == nil {
		system = sc.SystemPrompt()
	}

	text, err := p.renderer.Render(ctx, services.RenderRequest{
		UserID:     userID,
		ScenarioID: scenarioID,
		QuestID:    reveal.QuestID,
		System:     system,
		Prompt:     reveal.Prompt,
		Fallback:   fallback,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err != nil {
			p.logger.Warn("Render failed, using authored text",
				"user_id", userID,
				"quest_id", reveal.QuestID,
				"error", err)
		}
		return fallback, false
	}
	return text, true
}

func (p *Processor) fail(ctx context.Context, req *queue.Request, err error) {
	if p.publisher == nil {
		return
	}
	if pubErr := p.publisher.PublishRequestFailed(ctx, req.UserID, req.RequestID, err.Error()); pubErr != nil {
		p.logger.Error("Failed to publish failure event", "error", pubErr)
	}
}
