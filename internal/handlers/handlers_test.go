package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/pkg/conditionals"
	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/scenario"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *scenario.Registry {
	t.Helper()
	meadow := &scenario.Scenario{
		ID:    "meadow",
		Name:  "Meadow",
		Story: "A quiet field that remembers every visitor.",
		Quests: []scenario.QuestDefinition{
			{
				ID:              "sprout",
				Title:           "Sprout",
				AdvancesChapter: true,
				Trigger:         conditionals.CountAtLeast(narrative.KindMissionCompleted, nil, 1),
				Narrative:       scenario.NarrativePayload{Text: "Something green breaks the soil."},
				Reward:          narrative.Reward{Essence: 5, Relationships: map[string]int64{"wren": 1}},
			},
			{
				ID:        "bloom",
				Title:     "Bloom",
				Trigger:   conditionals.CountAtLeast(narrative.KindJournalEntry, conditionals.Attr(narrative.AttributeGrowth), 2),
				Narrative: scenario.NarrativePayload{Prompt: "Describe the first flower."},
			},
		},
	}
	r, err := scenario.NewRegistry(meadow)
	require.NoError(t, err)
	return r
}

func newTestEngine(t *testing.T) (*engine.Engine, *storage.MockStorage) {
	t.Helper()
	store := storage.NewMockStorage()
	e, err := engine.New(testRegistry(t), store, testLogger())
	require.NoError(t, err)
	return e, store
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequestWithContext(context.Background(), method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}
