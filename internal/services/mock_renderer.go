package services

import (
	"context"
	"sync"
)

// MockRenderer is a mock implementation of Renderer for testing
type MockRenderer struct {
	RenderFunc func(ctx context.Context, req RenderRequest) (string, error)

	// Track calls for testing
	RenderCalls []RenderRequest

	mu sync.Mutex // protects all fields above
}

var _ Renderer = (*MockRenderer)(nil)

// NewMockRenderer creates a new mock renderer
func NewMockRenderer() *MockRenderer {
	return &MockRenderer{
		RenderCalls: make([]RenderRequest, 0),
	}
}

// Render records the call and returns "Mock: " plus the prompt unless
// RenderFunc overrides it.
func (m *MockRenderer) Render(ctx context.Context, req RenderRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RenderCalls = append(m.RenderCalls, req)

	if m.RenderFunc != nil {
		return m.RenderFunc(ctx, req)
	}
	return "Mock: " + req.Prompt, nil
}

// SetRenderError sets up the mock to return an error on Render
func (m *MockRenderer) SetRenderError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RenderFunc = func(ctx context.Context, req RenderRequest) (string, error) {
		return "", err
	}
}

// GetCalls returns a copy of the call tracking data in a thread-safe way
func (m *MockRenderer) GetCalls() []RenderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]RenderRequest, len(m.RenderCalls))
	copy(calls, m.RenderCalls)
	return calls
}

// Reset clears all call tracking
func (m *MockRenderer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RenderCalls = make([]RenderRequest, 0)
	m.RenderFunc = nil
}
