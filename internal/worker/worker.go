package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/quest-engine/pkg/queue"
)

const (
	workerTimeout = 5 * time.Second
	errorBackoff  = 1 * time.Second
)

// Source yields queued progress requests. A nil request means the wait
// timed out with nothing queued.
type Source interface {
	BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.Request, error)
}

// Worker processes requests from the progress queue
type Worker struct {
	id        string
	source    Source
	processor *Processor
	log       *slog.Logger
	timeout   time.Duration
	backoff   time.Duration
}

// New creates a new worker instance
func New(workerID string, source Source, processor *Processor, log *slog.Logger) *Worker {
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	return &Worker{
		id:        workerID,
		source:    source,
		processor: processor,
		log:       log.With("worker_id", workerID),
		timeout:   workerTimeout,
		backoff:   errorBackoff,
	}
}

// ID returns the worker's identifier.
func (w *Worker) ID() string { return w.id }

// Run processes requests until ctx is cancelled. Request failures are
// logged and never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Worker starting")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker shutting down")
			return nil
		default:
		}

		if err := w.processNext(ctx); err != nil {
			if ctx.Err() != nil {
				w.log.Info("Worker shutting down")
				return nil
			}
			w.log.Error("Error processing request", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.backoff):
			}
		}
	}
}

// processNext pulls the next request from the queue and processes it
func (w *Worker) processNext(ctx context.Context) error {
	req, err := w.source.BlockingDequeue(ctx, w.timeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("failed to dequeue request: %w", err)
	}
	if req == nil {
		return nil
	}

	w.log.Info("Processing request",
		"request_id", req.RequestID,
		"type", req.Type,
		"user_id", req.UserID,
		"events", len(req.Events))

	start := time.Now()
	out, err := w.processor.Process(ctx, req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.RequestID, err)
	}

	w.log.Info("Request processed successfully",
		"request_id", req.RequestID,
		"user_id", req.UserID,
		"unlocked", out.Unlocked,
		"delivered", out.Delivered,
		"skipped", out.Skipped,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
