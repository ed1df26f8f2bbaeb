package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/queue"
	"github.com/jwebster45206/quest-engine/pkg/scenario"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// apiError carries the status so callers can react to a conflict.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Status, e.Message)
}

type LedgerResponse struct {
	Entries  []narrative.LedgerEntry `json:"entries"`
	Balances narrative.Balances      `json:"balances"`
}

// apiClient talks to the quest engine API on behalf of one user.
type apiClient struct {
	http    *http.Client
	baseURL string
	userID  string
}

func newAPIClient(client *http.Client, baseURL, userID string) *apiClient {
	return &apiClient{http: client, baseURL: baseURL, userID: userID}
}

func (c *apiClient) userPath(suffix string) string {
	return fmt.Sprintf("%s/v1/users/%s/%s", c.baseURL, url.PathEscape(c.userID), suffix)
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *apiClient) do(ctx context.Context, method, target string, body, out any) error {
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

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errorResp ErrorResponse
		if err := json.Unmarshal(data, &errorResp); err != nil || errorResp.Error == "" {
			return &apiError{Status: resp.StatusCode, Message: string(data)}
		}
		return &apiError{Status: resp.StatusCode, Message: errorResp.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *apiClient) healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, c.baseURL+"/health", nil, nil) == nil
}

func (c *apiClient) listScenarios(ctx context.Context) ([]scenario.Summary, error) {
	var out []scenario.Summary
	err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/scenarios", nil, &out)
	return out, err
}

func (c *apiClient) getScenario(ctx context.Context, id string) (*scenario.Scenario, error) {
	var out scenario.Scenario
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/scenarios/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// startNarrative instantiates scenarioID, or resumes the user's existing
// narrative when they already have one.
func (c *apiClient) startNarrative(ctx context.Context, scenarioID string) (*narrative.NarrativeState, error) {
	var st narrative.NarrativeState
	err := c.do(ctx, http.MethodPost, c.userPath("narrative"), map[string]string{"scenario_id": scenarioID}, &st)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		return c.getState(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *apiClient) getState(ctx context.Context) (*narrative.NarrativeState, error) {
	var st narrative.NarrativeState
	if err := c.do(ctx, http.MethodGet, c.userPath("narrative"), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *apiClient) appendEvent(ctx context.Context, ev queue.ProgressEvent) (narrative.Event, error) {
	var out struct {
		Events []narrative.Event `json:"events"`
	}
	body := map[string]any{"events": []queue.ProgressEvent{ev}}
	if err := c.do(ctx, http.MethodPost, c.userPath("events"), body, &out); err != nil {
		return narrative.Event{}, err
	}
	if len(out.Events) != 1 {
		return narrative.Event{}, fmt.Errorf("expected 1 appended event, got %d", len(out.Events))
	}
	return out.Events[0], nil
}

func (c *apiClient) tick(ctx context.Context) (engine.TickResult, error) {
	var out engine.TickResult
	err := c.do(ctx, http.MethodPost, c.userPath("narrative/tick"), nil, &out)
	return out, err
}

func (c *apiClient) undelivered(ctx context.Context) ([]engine.Reveal, error) {
	var out []engine.Reveal
	err := c.do(ctx, http.MethodGet, c.userPath("narrative/undelivered"), nil, &out)
	return out, err
}

func (c *apiClient) deliver(ctx context.Context, questID string) (engine.DeliverResult, error) {
	var out engine.DeliverResult
	err := c.do(ctx, http.MethodPost, c.userPath("quests/"+url.PathEscape(questID)+"/deliver"), nil, &out)
	return out, err
}

func (c *apiClient) progress(ctx context.Context) ([]engine.QuestProgress, error) {
	var out []engine.QuestProgress
	err := c.do(ctx, http.MethodGet, c.userPath("narrative/progress"), nil, &out)
	return out, err
}

func (c *apiClient) ledger(ctx context.Context) (LedgerResponse, error) {
	var out LedgerResponse
	err := c.do(ctx, http.MethodGet, c.userPath("ledger"), nil, &out)
	return out, err
}

func withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

// listenStream relays server-sent events for the user to onEvent until ctx
// is done or the server closes the stream.
func (c *apiClient) listenStream(ctx context.Context, onEvent func(event, data string)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userPath("stream"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream stays open, so the client timeout must not apply.
	resp, err := (&http.Client{Transport: c.http.Transport}).Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	if resp.StatusCode != http.StatusOK {
		return &apiError{Status: resp.StatusCode, Message: "stream unavailable"}
	}

	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			onEvent(event, strings.TrimPrefix(line, "data: "))
		case line == "":
			event = ""
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return nil
}
