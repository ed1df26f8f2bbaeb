package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/internal/services/events"
)

const keepaliveInterval = 30 * time.Second

// Subscriber opens a pub/sub subscription to one user's event channel.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) *redis.PubSub
}

// EventsHandler relays a user's broadcast events as Server-Sent Events
type EventsHandler struct {
	subscriber Subscriber
	logger     *slog.Logger
	keepalive  time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(subscriber Subscriber, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		subscriber: subscriber,
		logger:     logger,
		keepalive:  keepaliveInterval,
	}
}

// Stream holds the connection open until the client goes away.
// GET /v1/users/{user}/stream
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request, userID string) {
	h.logger.Info("SSE connection established",
		"user_id", userID,
		"remote_addr", r.RemoteAddr)

	pubsub := h.subscriber.Subscribe(r.Context(), userID)
	defer func() {
		if err := pubsub.Close(); err != nil {
			h.logger.Error("Failed to close pubsub", "error", err)
		}
	}()
	// Wait for the subscription so nothing published after the
	// "connected" event is missed.
	if _, err := pubsub.Receive(r.Context()); err != nil {
		h.logger.Error("Failed to subscribe", "error", err, "user_id", userID)
		writeMessage(w, h.logger, http.StatusServiceUnavailable, "Event stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	msgChan := pubsub.Channel()

	keepaliveTicker := time.NewTicker(h.keepalive)
	defer keepaliveTicker.Stop()

	h.sendSSE(w, "connected", map[string]any{
		"user_id": userID,
		"message": "Connected to event stream",
	})

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "user_id", userID)
			return

		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			var event events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				h.logger.Error("Failed to unmarshal event", "error", err, "payload", msg.Payload)
				continue
			}
			h.sendSSE(w, string(event.Type), event.Data)

		case <-keepaliveTicker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				h.logger.Error("Failed to write keepalive", "error", err)
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

// sendSSE sends a Server-Sent Event to the client
func (h *EventsHandler) sendSSE(w http.ResponseWriter, eventType string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal SSE data", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, dataJSON); err != nil {
		h.logger.Error("Failed to write event", "error", err)
		return
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
