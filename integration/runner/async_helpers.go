package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/queue"
)

const (
	// PollInterval is how often to check the narrative for worker results
	PollInterval = 500 * time.Millisecond
	// WorkerTimeout is max time to wait for the worker to process a request
	WorkerTimeout = 30 * time.Second
)

// StatusError is a non-2xx API response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned %d: %s", e.Status, e.Body)
}

// EnqueueResponse is the response from the progress endpoint
type EnqueueResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// LedgerResponse is the response from the ledger endpoint
type LedgerResponse struct {
	Entries  []narrative.LedgerEntry `json:"entries"`
	Balances narrative.Balances      `json:"balances"`
}

// API is a thin client for the routes the runner drives.
type API struct {
	Client  *http.Client
	BaseURL string
}

func (a API) userURL(userID, suffix string) string {
	return fmt.Sprintf("%s/v1/users/%s/%s", a.BaseURL, url.PathEscape(userID), suffix)
}

// call sends body as JSON, requires want, and decodes the response into out.
func (a API) call(ctx context.Context, method, target string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return &StatusError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Instantiate starts scenarioID for userID.
func (a API) Instantiate(ctx context.Context, userID, scenarioID, timeZone string) (*narrative.NarrativeState, error) {
	var st narrative.NarrativeState
	body := map[string]string{"scenario_id": scenarioID, "time_zone": timeZone}
	if err := a.call(ctx, http.MethodPost, a.userURL(userID, "narrative"), body, http.StatusCreated, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// AppendEvents writes events straight to the event log.
func (a API) AppendEvents(ctx context.Context, userID string, events []queue.ProgressEvent) error {
	body := map[string]any{"events": events}
	return a.call(ctx, http.MethodPost, a.userURL(userID, "events"), body, http.StatusCreated, nil)
}

// PostProgressAsync queues events for the worker and returns the request id
func (a API) PostProgressAsync(ctx context.Context, userID string, events []queue.ProgressEvent) (string, error) {
	var resp EnqueueResponse
	body := map[string]any{"events": events}
	if err := a.call(ctx, http.MethodPost, a.userURL(userID, "progress"), body, http.StatusAccepted, &resp); err != nil {
		return "", err
	}
	return resp.RequestID, nil
}

func (a API) Tick(ctx context.Context, userID string) (engine.TickResult, error) {
	var out engine.TickResult
	err := a.call(ctx, http.MethodPost, a.userURL(userID, "narrative/tick"), nil, http.StatusOK, &out)
	return out, err
}

func (a API) Deliver(ctx context.Context, userID, questID string, want int) error {
	return a.call(ctx, http.MethodPost, a.userURL(userID, "quests/"+url.PathEscape(questID)+"/deliver"), nil, want, nil)
}

func (a API) State(ctx context.Context, userID string) (*narrative.NarrativeState, error) {
	var st narrative.NarrativeState
	if err := a.call(ctx, http.MethodGet, a.userURL(userID, "narrative"), nil, http.StatusOK, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (a API) Undelivered(ctx context.Context, userID string) ([]engine.Reveal, error) {
	var out []engine.Reveal
	err := a.call(ctx, http.MethodGet, a.userURL(userID, "narrative/undelivered"), nil, http.StatusOK, &out)
	return out, err
}

func (a API) Ledger(ctx context.Context, userID string) (LedgerResponse, error) {
	var out LedgerResponse
	err := a.call(ctx, http.MethodGet, a.userURL(userID, "ledger"), nil, http.StatusOK, &out)
	return out, err
}

// PollUntil calls check every interval until it returns nil, ctx ends or
// timeout passes. The last check error is reported on timeout.
func PollUntil(ctx context.Context, interval, timeout time.Duration, check func() error) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastErr := check()
	if lastErr == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("timeout waiting for worker (waited %v): %w", timeout, lastErr)
		case <-ticker.C:
			if lastErr = check(); lastErr == nil {
				return nil
			}
		}
	}
}
