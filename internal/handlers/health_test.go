package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/jwebster45206/quest-engine/pkg/storage"
)

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		pingErr        error
		expectedStatus int
		expectedHealth string
		expectedStore  string
	}{
		{
			name:           "all healthy",
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
			expectedStore:  "healthy",
		},
		{
			name:           "unhealthy storage",
			pingErr:        errors.New("connection failed"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "degraded",
			expectedStore:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMockStorage()
			if tt.pingErr != nil {
				store.SetPingError(tt.pingErr)
			}
			handler := NewHealthHandler(map[string]Pinger{"storage": store}, testLogger())

			rr := do(t, handler, http.MethodGet, "/health", nil)
			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}

			resp := decode[HealthResponse](t, rr)
			if resp.Status != tt.expectedHealth {
				t.Errorf("expected health %q, got %q", tt.expectedHealth, resp.Status)
			}
			if resp.Components["storage"] != tt.expectedStore {
				t.Errorf("expected storage %q, got %q", tt.expectedStore, resp.Components["storage"])
			}
			if resp.Service != "quest-engine" {
				t.Errorf("unexpected service %q", resp.Service)
			}
		})
	}
}
