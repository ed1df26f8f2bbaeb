package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/quest-engine/pkg/scenario"
)

type ScenarioHandler struct {
	log      *slog.Logger
	registry *scenario.Registry
}

func NewScenarioHandler(log *slog.Logger, registry *scenario.Registry) *ScenarioHandler {
	return &ScenarioHandler{
		log:      log,
		registry: registry,
	}
}

// ServeHTTP serves
// GET /v1/scenarios       - summaries sorted by id
// GET /v1/scenarios/{id}  - full definition
func (h *ScenarioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMessage(w, h.log, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/scenarios"), "/")
	if id == "" {
		writeJSON(w, h.log, http.StatusOK, h.registry.List())
		return
	}
	if strings.Contains(id, "/") || !scenario.ValidID(id) {
		writeMessage(w, h.log, http.StatusBadRequest, "Invalid scenario id")
		return
	}

	sc, err := h.registry.Scenario(id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, sc)
}
