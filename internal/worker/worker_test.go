package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/internal/services"
	"github.com/jwebster45206/quest-engine/pkg/chat"
	"github.com/jwebster45206/quest-engine/pkg/conditionals"
	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/queue"
	"github.com/jwebster45206/quest-engine/pkg/scenario"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

var now = time.Date(2026, 4, 10, 18, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryStories struct {
	mu     sync.Mutex
	events []chat.StoryEvent
	err    error
}

func (m *memoryStories) Enqueue(ctx context.Context, event chat.StoryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memoryStories) all() []chat.StoryEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.StoryEvent(nil), m.events...)
}

type recordingPublisher struct {
	mu       sync.Mutex
	rendered []string
	failed   []string
}

func (r *recordingPublisher) PublishStoryRendered(ctx context.Context, userID, requestID, questID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rendered = append(r.rendered, questID)
	return nil
}

func (r *recordingPublisher) PublishRequestFailed(ctx context.Context, userID, requestID, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, requestID)
	return nil
}

type harness struct {
	engine    *engine.Engine
	store     *storage.MockStorage
	renderer  *services.MockRenderer
	stories   *memoryStories
	publisher *recordingPublisher
	processor *Processor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sc := &scenario.Scenario{
		ID:    "harbor",
		Name:  "Harbor",
		Story: "A fishing town at the edge of the fog.",
		Quests: []scenario.QuestDefinition{
			{
				ID:              "first_catch",
				Title:           "First Catch",
				AdvancesChapter: true,
				Trigger:         conditionals.CountAtLeast(narrative.KindMissionCompleted, nil, 1),
				Narrative:       scenario.NarrativePayload{Text: "The nets come up heavy."},
				Reward:          narrative.Reward{Essence: 10},
			},
			{
				ID:        "lighthouse",
				Title:     "Lighthouse",
				Trigger:   conditionals.CountAtLeast(narrative.KindJournalEntry, nil, 1),
				Narrative: scenario.NarrativePayload{Prompt: "The keeper lights the lamp for the first time in years."},
			},
		},
	}
	registry, err := scenario.NewRegistry(sc)
	require.NoError(t, err)

	h := &harness{
		store:     storage.NewMockStorage(),
		renderer:  services.NewMockRenderer(),
		stories:   &memoryStories{},
		publisher: &recordingPublisher{},
	}
	h.engine, err = engine.New(registry, h.store, testLogger(), engine.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	_, err = h.engine.Instantiate(context.Background(), "harbor", "u1", "")
	require.NoError(t, err)

	h.processor = NewProcessor(h.engine, h.renderer, h.stories, h.publisher, testLogger())
	h.processor.now = func() time.Time { return now }
	return h
}

func progress(kinds ...narrative.EventKind) *queue.Request {
	req := &queue.Request{RequestID: "req-1", Type: queue.RequestTypeProgress, UserID: "u1"}
	for _, k := range kinds {
		req.Events = append(req.Events, queue.ProgressEvent{Kind: k, OccurredAt: now.Add(-time.Hour)})
	}
	return req
}

func (h *harness) status(t *testing.T, quest string) narrative.QuestStatus {
	t.Helper()
	st, err := h.engine.State(context.Background(), "u1")
	require.NoError(t, err)
	q, ok := st.Quest(quest)
	require.True(t, ok)
	return q.Status
}

func TestProcess_RendersAndDelivers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.processor.Process(ctx, progress(narrative.KindMissionCompleted))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Appended)
	assert.Equal(t, []string{"first_catch"}, out.Unlocked)
	assert.Equal(t, []string{"first_catch"}, out.Delivered)
	assert.Empty(t, out.Skipped)

	calls := h.renderer.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "first_catch", calls[0].QuestID)
	assert.Equal(t, "The nets come up heavy.", calls[0].Fallback)
	assert.Contains(t, calls[0].System, "fishing town")
	assert.Contains(t, calls[0].Prompt, "Chapter 1")

	stories := h.stories.all()
	require.Len(t, stories, 1)
	assert.True(t, stories[0].Rendered)
	assert.Equal(t, "Mock: "+calls[0].Prompt, stories[0].Text)
	assert.Equal(t, []string{"first_catch"}, h.publisher.rendered)

	assert.Equal(t, narrative.StatusConsumed, h.status(t, "first_catch"))
	st, err := h.engine.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.CurrentChapter)

	balances, err := h.store.Balances(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balances[narrative.BalanceEssence])
}

func TestProcess_FallsBackToAuthoredText(t *testing.T) {
	h := newHarness(t)
	h.renderer.SetRenderError(errors.New("model unavailable"))

	out, err := h.processor.Process(context.Background(), progress(narrative.KindMissionCompleted))
	require.NoError(t, err)
	assert.Equal(t, []string{"first_catch"}, out.Delivered)

	stories := h.stories.all()
	require.Len(t, stories, 1)
	assert.False(t, stories[0].Rendered)
	assert.Equal(t, "The nets come up heavy.", stories[0].Text)
}

func TestProcess_RetriesUnrenderedQuestLater(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.renderer.SetRenderError(errors.New("model unavailable"))

	// lighthouse has only a prompt, so a failed render leaves nothing to show
	out, err := h.processor.Process(ctx, progress(narrative.KindJournalEntry))
	require.NoError(t, err)
	assert.Equal(t, []string{"lighthouse"}, out.Unlocked)
	assert.Equal(t, []string{"lighthouse"}, out.Skipped)
	assert.Empty(t, h.stories.all())
	assert.Equal(t, narrative.StatusUnlocked, h.status(t, "lighthouse"))

	h.renderer.Reset()
	out, err = h.processor.Process(ctx, &queue.Request{RequestID: "req-2", Type: queue.RequestTypeTick, UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, out.Unlocked)
	assert.Equal(t, []string{"lighthouse"}, out.Delivered)
	assert.Equal(t, narrative.StatusConsumed, h.status(t, "lighthouse"))
}

func TestProcess_StoryQueueFailureKeepsQuestUnlocked(t *testing.T) {
	h := newHarness(t)
	h.stories.err = errors.New("redis down")

	out, err := h.processor.Process(context.Background(), progress(narrative.KindMissionCompleted))
	require.Error(t, err)
	assert.Equal(t, []string{"first_catch"}, out.Skipped)
	assert.Equal(t, narrative.StatusUnlocked, h.status(t, "first_catch"))
	assert.Equal(t, []string{"req-1"}, h.publisher.failed)
}

func TestProcess_UnknownUser(t *testing.T) {
	h := newHarness(t)
	req := progress(narrative.KindMissionCompleted)
	req.UserID = "stranger"

	_, err := h.processor.Process(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, narrative.ErrNotFound), "got %v", err)
	assert.Equal(t, []string{"req-1"}, h.publisher.failed)
}

func TestProcess_InvalidRequest(t *testing.T) {
	h := newHarness(t)
	_, err := h.processor.Process(context.Background(), &queue.Request{RequestID: "bad", Type: queue.RequestTypeProgress, UserID: "u1"})
	assert.True(t, errors.Is(err, narrative.ErrValidation), "got %v", err)
}

func TestProcess_RejectedBatchStoresNothing(t *testing.T) {
	h := newHarness(t)
	req := progress(narrative.KindMissionCompleted, narrative.KindJournalEntry)
	req.Events[1].OccurredAt = now.Add(48 * time.Hour)

	out, err := h.processor.Process(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, narrative.ErrValidation), "got %v", err)
	assert.Zero(t, out.Appended)
	assert.Equal(t, []string{"req-1"}, h.publisher.failed)

	stored, err := h.store.QueryEvents(context.Background(), "u1", narrative.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, stored)

	st, err := h.engine.State(context.Background(), "u1")
	require.NoError(t, err)
	for _, q := range st.Quests {
		assert.Equal(t, narrative.StatusPending, q.Status, q.ID)
	}
}

type chanSource struct {
	ch chan *queue.Request
}

func (c *chanSource) BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.Request, error) {
	select {
	case req := <-c.ch:
		return req, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

func TestWorker_RunProcessesUntilCancelled(t *testing.T) {
	h := newHarness(t)
	src := &chanSource{ch: make(chan *queue.Request, 2)}
	w := New("", src, h.processor, testLogger())
	w.timeout = 10 * time.Millisecond
	w.backoff = time.Millisecond
	assert.Contains(t, w.ID(), "worker-")

	bad := progress(narrative.KindMissionCompleted)
	bad.UserID = "stranger"
	src.ch <- bad
	src.ch <- progress(narrative.KindMissionCompleted)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, err := h.store.LoadNarrativeState(context.Background(), "u1")
		if err != nil {
			return false
		}
		q, ok := st.Quest("first_catch")
		return ok && q.Status == narrative.StatusConsumed
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
