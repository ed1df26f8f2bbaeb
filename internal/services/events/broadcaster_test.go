package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

func setupBroadcaster(t *testing.T) *Broadcaster {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBroadcaster(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func receive(t *testing.T, sub *redis.PubSub) Event {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("bad payload %q: %v", msg.Payload, err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBroadcaster_Notify(t *testing.T) {
	b := setupBroadcaster(t)
	ctx := context.Background()

	sub := b.Subscribe(ctx, "u1")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	reward := narrative.Reward{Essence: 50}
	err := b.Notify(ctx, engine.Notification{
		Type:    engine.NotifyRewardApplied,
		UserID:  "u1",
		QuestID: "forge",
		Reward:  &reward,
		At:      time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	ev := receive(t, sub)
	if ev.Type != EventTypeRewardApplied {
		t.Errorf("expected %s, got %s", EventTypeRewardApplied, ev.Type)
	}
	if ev.UserID != "u1" || ev.Data["quest_id"] != "forge" {
		t.Errorf("unexpected event %+v", ev)
	}
	if _, ok := ev.Data["reward"]; !ok {
		t.Error("expected reward in data")
	}

	if err := b.PublishStoryRendered(ctx, "u1", "req-1", "forge", "The forge roars."); err != nil {
		t.Fatalf("PublishStoryRendered: %v", err)
	}
	ev = receive(t, sub)
	if ev.Type != EventTypeStoryRendered || ev.RequestID != "req-1" || ev.Data["text"] != "The forge roars." {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestBroadcaster_OtherUsersIsolated(t *testing.T) {
	b := setupBroadcaster(t)
	ctx := context.Background()

	sub := b.Subscribe(ctx, "u2")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.PublishRequestFailed(ctx, "u1", "req-1", "boom"); err != nil {
		t.Fatal(err)
	}
	if err := b.PublishRequestFailed(ctx, "u2", "req-2", "boom"); err != nil {
		t.Fatal(err)
	}

	ev := receive(t, sub)
	if ev.RequestID != "req-2" {
		t.Errorf("u2 received another user's event: %+v", ev)
	}
}

func TestChannel(t *testing.T) {
	if got := Channel("u1"); got != "quest-events:u1" {
		t.Errorf("unexpected channel %q", got)
	}
}
