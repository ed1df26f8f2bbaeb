package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/queue"
)

// Enqueuer accepts progress requests for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, req *queue.Request) error
}

type AppendEventsRequest struct {
	Events []queue.ProgressEvent `json:"events"`
}

type AppendEventsResponse struct {
	Events []narrative.Event `json:"events"`
}

type EnqueueResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type InstantiateRequest struct {
	ScenarioID string `json:"scenario_id"`
	TimeZone   string `json:"time_zone,omitempty"`
}

type LedgerResponse struct {
	Entries  []narrative.LedgerEntry `json:"entries"`
	Balances narrative.Balances      `json:"balances"`
}

// Streamer relays one user's live events to the client.
type Streamer interface {
	Stream(w http.ResponseWriter, r *http.Request, userID string)
}

// UserHandler serves everything under /v1/users/{user}.
type UserHandler struct {
	engine *engine.Engine
	queue  Enqueuer
	stream Streamer
	logger *slog.Logger
}

// NewUserHandler builds the per-user API. queue and stream are optional;
// their routes answer 501 when nil.
func NewUserHandler(e *engine.Engine, q Enqueuer, stream Streamer, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		engine: e,
		queue:  q,
		stream: stream,
		logger: logger,
	}
}

// ServeHTTP routes:
// POST /v1/users/{user}/events                 - append events
// GET  /v1/users/{user}/events                 - query events (kind, attribute, from, to)
// POST /v1/users/{user}/progress               - enqueue events for the worker
// POST /v1/users/{user}/narrative              - instantiate a scenario
// GET  /v1/users/{user}/narrative              - current narrative state
// POST /v1/users/{user}/narrative/tick         - evaluate pending quests
// GET  /v1/users/{user}/narrative/progress     - trigger progress of pending quests
// GET  /v1/users/{user}/narrative/undelivered  - unlocked quests awaiting delivery
// POST /v1/users/{user}/quests/{quest}/deliver - consume an unlocked quest
// POST /v1/users/{user}/quests/{quest}/reward  - apply a quest's reward
// GET  /v1/users/{user}/ledger                 - ledger entries and balances
// GET  /v1/users/{user}/stream                 - server-sent events
func (h *UserHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users"), "/"), "/")
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		writeMessage(w, h.logger, http.StatusNotFound, "Unknown route")
		return
	}
	userID, route := parts[0], parts[1:]

	switch {
	case len(route) == 1 && route[0] == "events":
		switch r.Method {
		case http.MethodPost:
			h.handleAppendEvents(w, r, userID)
		case http.MethodGet:
			h.handleQueryEvents(w, r, userID)
		default:
			h.methodNotAllowed(w, "GET, POST")
		}
	case len(route) == 1 && route[0] == "progress":
		if r.Method != http.MethodPost {
			h.methodNotAllowed(w, "POST")
			return
		}
		h.handleEnqueue(w, r, userID)
	case len(route) == 1 && route[0] == "narrative":
		switch r.Method {
		case http.MethodPost:
			h.handleInstantiate(w, r, userID)
		case http.MethodGet:
			h.handleState(w, r, userID)
		default:
			h.methodNotAllowed(w, "GET, POST")
		}
	case len(route) == 2 && route[0] == "narrative" && route[1] == "tick":
		if r.Method != http.MethodPost {
			h.methodNotAllowed(w, "POST")
			return
		}
		h.handleTick(w, r, userID)
	case len(route) == 2 && route[0] == "narrative" && route[1] == "progress":
		if r.Method != http.MethodGet {
			h.methodNotAllowed(w, "GET")
			return
		}
		h.handleProgress(w, r, userID)
	case len(route) == 2 && route[0] == "narrative" && route[1] == "undelivered":
		if r.Method != http.MethodGet {
			h.methodNotAllowed(w, "GET")
			return
		}
		h.handleUndelivered(w, r, userID)
	case len(route) == 3 && route[0] == "quests" && route[2] == "deliver":
		if r.Method != http.MethodPost {
			h.methodNotAllowed(w, "POST")
			return
		}
		h.handleDeliver(w, r, userID, route[1])
	case len(route) == 3 && route[0] == "quests" && route[2] == "reward":
		if r.Method != http.MethodPost {
			h.methodNotAllowed(w, "POST")
			return
		}
		h.handleReward(w, r, userID, route[1])
	case len(route) == 1 && route[0] == "ledger":
		if r.Method != http.MethodGet {
			h.methodNotAllowed(w, "GET")
			return
		}
		h.handleLedger(w, r, userID)
	case len(route) == 1 && route[0] == "stream":
		if h.stream == nil {
			writeMessage(w, h.logger, http.StatusNotImplemented, "Event stream requires the redis backend")
			return
		}
		if r.Method != http.MethodGet {
			h.methodNotAllowed(w, "GET")
			return
		}
		h.stream.Stream(w, r, userID)
	default:
		writeMessage(w, h.logger, http.StatusNotFound, "Unknown route")
	}
}

func (h *UserHandler) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeMessage(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: "+allowed)
}

func (h *UserHandler) handleAppendEvents(w http.ResponseWriter, r *http.Request, userID string) {
	var req AppendEventsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if len(req.Events) == 0 {
		writeMessage(w, h.logger, http.StatusBadRequest, "events cannot be empty")
		return
	}

	batch := make([]narrative.Event, 0, len(req.Events))
	for _, pe := range req.Events {
		batch = append(batch, pe.Event(userID))
	}
	out, err := h.engine.AppendEvents(r.Context(), batch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, AppendEventsResponse{Events: out})
}

func (h *UserHandler) handleQueryEvents(w http.ResponseWriter, r *http.Request, userID string) {
	filter, err := parseEventFilter(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	events, err := h.engine.Events(r.Context(), userID, filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, AppendEventsResponse{Events: events})
}

func parseEventFilter(r *http.Request) (narrative.EventFilter, error) {
	q := r.URL.Query()
	var filter narrative.EventFilter
	if k := q.Get("kind"); k != "" {
		filter.Kind = narrative.NormalizeEventKind(k)
	}
	if a := q.Get("attribute"); a != "" {
		attr, err := narrative.ParseAttribute(a)
		if err != nil {
			return filter, err
		}
		filter.Attribute = &attr
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, narrative.Validationf("%s must be RFC 3339: %v", p.name, err)
		}
		*p.dst = &t
	}
	return filter, nil
}

func (h *UserHandler) handleEnqueue(w http.ResponseWriter, r *http.Request, userID string) {
	if h.queue == nil {
		writeMessage(w, h.logger, http.StatusNotImplemented, "Progress queue is not configured")
		return
	}
	var body AppendEventsRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	req := &queue.Request{Type: queue.RequestTypeTick, UserID: userID, Events: body.Events}
	if len(body.Events) > 0 {
		req.Type = queue.RequestTypeProgress
	}
	if err := h.queue.Enqueue(r.Context(), req); err != nil {
		h.logger.Error("Failed to enqueue progress request", "error", err, "user_id", userID)
		writeMessage(w, h.logger, http.StatusInternalServerError, "Failed to enqueue request")
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, EnqueueResponse{RequestID: req.RequestID, Status: "queued"})
}

func (h *UserHandler) handleInstantiate(w http.ResponseWriter, r *http.Request, userID string) {
	var req InstantiateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(req.ScenarioID) == "" {
		writeMessage(w, h.logger, http.StatusBadRequest, "scenario_id is required")
		return
	}
	st, err := h.engine.Instantiate(r.Context(), req.ScenarioID, userID, req.TimeZone)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, st)
}

func (h *UserHandler) handleState(w http.ResponseWriter, r *http.Request, userID string) {
	st, err := h.engine.State(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, st)
}

func (h *UserHandler) handleTick(w http.ResponseWriter, r *http.Request, userID string) {
	res, err := h.engine.Tick(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func (h *UserHandler) handleProgress(w http.ResponseWriter, r *http.Request, userID string) {
	progress, err := h.engine.Progress(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, progress)
}

func (h *UserHandler) handleUndelivered(w http.ResponseWriter, r *http.Request, userID string) {
	reveals, err := h.engine.Undelivered(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, reveals)
}

func (h *UserHandler) handleDeliver(w http.ResponseWriter, r *http.Request, userID, questID string) {
	res, err := h.engine.Deliver(r.Context(), userID, questID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func (h *UserHandler) handleReward(w http.ResponseWriter, r *http.Request, userID, questID string) {
	entry, err := h.engine.ApplyReward(r.Context(), userID, questID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, entry)
}

func (h *UserHandler) handleLedger(w http.ResponseWriter, r *http.Request, userID string) {
	entries, balances, err := h.engine.Ledger(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []narrative.LedgerEntry{}
	}
	if balances == nil {
		balances = narrative.Balances{}
	}
	writeJSON(w, h.logger, http.StatusOK, LedgerResponse{Entries: entries, Balances: balances})
}
