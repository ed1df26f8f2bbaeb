package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *apiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newAPIClient(srv.Client(), srv.URL, "u1")
}

func TestStartNarrativeResumesOnConflict(t *testing.T) {
	var posted map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/u1/narrative", r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			_ = json.NewDecoder(r.Body).Decode(&posted)
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"user already has a narrative","kind":"conflict"}`))
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(narrative.NarrativeState{UserID: "u1", ScenarioID: "meadow", CurrentChapter: 2})
		}
	})

	st, err := client.startNarrative(context.Background(), "meadow")
	require.NoError(t, err)
	assert.Equal(t, "meadow", posted["scenario_id"])
	assert.Equal(t, "meadow", st.ScenarioID)
	assert.Equal(t, 2, st.CurrentChapter)
}

func TestAPIErrorCarriesStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no narrative state for user \"u1\"","kind":"not_found"}`))
	})

	_, err := client.getState(context.Background())
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Message, "no narrative state")
}

func TestAppendEventSendsOneEvent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/users/u1/events", r.URL.Path)
		var body struct {
			Events []map[string]any `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Events) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"expected one event"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"events":[{"event_id":7,"user_id":"u1","kind":%q,"attribute":"craft","occurred_at":"2026-05-01T08:00:00Z"}]}`, body.Events[0]["kind"])
	})

	cmd, err := parseCommand("/event mission_completed craft")
	require.NoError(t, err)
	ev, err := cmd.progressEvent(time.Now())
	require.NoError(t, err)

	appended, err := client.appendEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, int64(7), appended.ID)
	assert.Equal(t, narrative.KindMissionCompleted, appended.Kind)
}

func TestListenStreamRelaysEvents(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/u1/stream", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {\"user_id\":\"u1\"}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: story.rendered\ndata: {\"quest_id\":\"sprout\",\"text\":\"A shoot breaks the soil.\"}\n\n")
	})

	type received struct{ event, data string }
	var got []received
	err := client.listenStream(context.Background(), func(event, data string) {
		got = append(got, received{event, data})
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "connected", got[0].event)
	assert.Equal(t, "story.rendered", got[1].event)
	assert.Contains(t, got[1].data, "A shoot breaks the soil.")
}
