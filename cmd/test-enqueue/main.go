package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/jwebster45206/quest-engine/internal/services/queue"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
	queuePkg "github.com/jwebster45206/quest-engine/pkg/queue"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "test-enqueue: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		redisURL  string
		userID    string
		kind      string
		attribute string
		count     int
		spread    time.Duration
		tickOnly  bool
	)

	flagSet := pflag.NewFlagSet("test-enqueue", pflag.ContinueOnError)
	flagSet.StringVar(&redisURL, "redis-url", "redis://localhost:6379", "Redis URL")
	flagSet.StringVarP(&userID, "user", "u", "test-user", "user to report progress for")
	flagSet.StringVarP(&kind, "kind", "k", string(narrative.KindMissionCompleted), "event kind")
	flagSet.StringVarP(&attribute, "attribute", "a", "none", "event attribute (growth, health, craft, connection, none)")
	flagSet.IntVarP(&count, "count", "n", 1, "number of events in the batch")
	flagSet.DurationVar(&spread, "spread", 24*time.Hour, "time between events, newest first, ending now")
	flagSet.BoolVar(&tickOnly, "tick", false, "enqueue a tick request with no events")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	attr, err := narrative.ParseAttribute(attribute)
	if err != nil {
		return err
	}
	if count < 1 && !tickOnly {
		return fmt.Errorf("--count must be at least 1")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := queue.NewClient(redisURL, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	fmt.Println("Connected to Redis successfully!")

	ctx := context.Background()
	pq := queue.NewProgressQueue(client, logger)

	req := &queuePkg.Request{Type: queuePkg.RequestTypeTick, UserID: userID}
	if !tickOnly {
		req.Type = queuePkg.RequestTypeProgress
		now := time.Now().UTC()
		for i := count - 1; i >= 0; i-- {
			req.Events = append(req.Events, queuePkg.ProgressEvent{
				Kind:       narrative.NormalizeEventKind(kind),
				Attribute:  attr,
				OccurredAt: now.Add(-time.Duration(i) * spread),
			})
		}
	}

	if err := pq.Enqueue(ctx, req); err != nil {
		return err
	}
	fmt.Printf("Enqueued %s request %s for %s with %d event(s)\n", req.Type, req.RequestID, userID, len(req.Events))

	depth, err := pq.Depth(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Queue depth: %d requests\n", depth)
	fmt.Println("Start the worker to process them: go run ./cmd/worker")
	return nil
}
