package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/internal/services/events"
)

// readEvent reads one SSE event, skipping comment lines.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestStreamRelaysBroadcastEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	broadcaster := events.NewBroadcaster(client, testLogger())

	e, _ := newTestEngine(t)
	h := NewUserHandler(e, nil, NewEventsHandler(broadcaster, testLogger()), testLogger())
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/users/u1/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, data := readEvent(t, reader)
	assert.Equal(t, "connected", event)
	assert.Contains(t, data, `"user_id":"u1"`)

	require.NoError(t, broadcaster.PublishStoryRendered(ctx, "u2", "r0", "sprout", "not for u1"))
	require.NoError(t, broadcaster.PublishStoryRendered(ctx, "u1", "r1", "sprout", "Something green breaks the soil."))

	event, data = readEvent(t, reader)
	assert.Equal(t, string(events.EventTypeStoryRendered), event)
	assert.Contains(t, data, `"quest_id":"sprout"`)
	assert.Contains(t, data, "Something green breaks the soil.")
}
