package services

import (
	"context"
	"errors"
	"testing"
)

func TestPassthroughRenderer(t *testing.T) {
	tests := []struct {
		name     string
		req      RenderRequest
		expected string
	}{
		{"prefers authored text", RenderRequest{Prompt: "QUEST REVEAL: x", Fallback: " The forge roars. "}, "The forge roars."},
		{"falls back to prompt", RenderRequest{Prompt: "QUEST REVEAL: x"}, "QUEST REVEAL: x"},
		{"empty", RenderRequest{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PassthroughRenderer{}.Render(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestMockRenderer(t *testing.T) {
	m := NewMockRenderer()
	ctx := context.Background()

	got, err := m.Render(ctx, RenderRequest{QuestID: "q1", Prompt: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Mock: hello" {
		t.Errorf("unexpected default response %q", got)
	}

	boom := errors.New("boom")
	m.SetRenderError(boom)
	if _, err := m.Render(ctx, RenderRequest{QuestID: "q2"}); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}

	calls := m.GetCalls()
	if len(calls) != 2 || calls[0].QuestID != "q1" || calls[1].QuestID != "q2" {
		t.Errorf("unexpected calls %+v", calls)
	}

	m.Reset()
	if len(m.GetCalls()) != 0 {
		t.Error("expected calls cleared after Reset")
	}
}

func TestLogEconomy(t *testing.T) {
	e := NewLogEconomy(testLogger())
	if err := e.Credit(context.Background(), "u1", "q1", map[string]int64{"essence": 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
