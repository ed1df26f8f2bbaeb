package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// writeError maps err to a status by its kind. Internal errors are logged
// and their message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := narrative.KindOf(err)
	status := kind.HTTPStatus()
	msg := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		msg = "operation timed out"
	case kind == narrative.KindInternal:
		logger.Error("Request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path)
		msg = "internal server error"
	default:
		logger.Debug("Request rejected",
			"error", err,
			"kind", kind,
			"path", r.URL.Path)
	}
	writeJSON(w, logger, status, ErrorResponse{Error: msg, Kind: string(kind)})
}

func writeMessage(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, ErrorResponse{Error: msg})
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
// An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return narrative.Validationf("invalid request body: %v", err)
	}
	return nil
}
