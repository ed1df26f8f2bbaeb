package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/queue"
)

// ProgressRequestsKey is the global list progress requests are pushed to.
const ProgressRequestsKey = "progress-requests"

// ProgressQueue is the global FIFO of progress requests consumed by workers.
type ProgressQueue struct {
	client *Client
	logger *slog.Logger
}

func NewProgressQueue(client *Client, logger *slog.Logger) *ProgressQueue {
	return &ProgressQueue{
		client: client,
		logger: logger,
	}
}

// Enqueue validates req, fills in its id and timestamp when missing, and
// appends it to the queue.
func (pq *ProgressQueue) Enqueue(ctx context.Context, req *queue.Request) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now().UTC()
	}

	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}
	if err := pq.client.rdb.RPush(ctx, ProgressRequestsKey, data).Err(); err != nil {
		pq.logger.Error("Failed to enqueue progress request",
			"error", err,
			"user_id", req.UserID,
			"request_id", req.RequestID)
		return fmt.Errorf("failed to enqueue request: %w", err)
	}

	pq.logger.Debug("Enqueued progress request",
		"user_id", req.UserID,
		"request_id", req.RequestID,
		"events", len(req.Events))
	return nil
}

// Dequeue removes and returns the next request, or nil when the queue is
// empty.
func (pq *ProgressQueue) Dequeue(ctx context.Context) (*queue.Request, error) {
	result, err := pq.client.rdb.LPop(ctx, ProgressRequestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}
	return parseRequest(result)
}

// BlockingDequeue waits up to timeout for a request. It returns nil, nil
// when the wait times out.
func (pq *ProgressQueue) BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.Request, error) {
	result, err := pq.client.rdb.BLPop(ctx, timeout, ProgressRequestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}
	return parseRequest(result[1])
}

// Depth returns the number of requests waiting.
func (pq *ProgressQueue) Depth(ctx context.Context) (int, error) {
	count, err := pq.client.rdb.LLen(ctx, ProgressRequestsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get request queue depth: %w", err)
	}
	return int(count), nil
}

func parseRequest(raw string) (*queue.Request, error) {
	req, err := queue.FromJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}
