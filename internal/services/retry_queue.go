package services

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const retryQueueKey = "provision:retry"

// RetryQueue is the enqueue side of the out-of-band provisioning retry
// pipeline. Tickets whose device write failed are pushed here; a worker
// outside this service drains the list and calls reprovision.
type RetryQueue struct {
	redis *redis.Client
}

func NewRetryQueue(redisClient *redis.Client) *RetryQueue {
	return &RetryQueue{redis: redisClient}
}

func (q *RetryQueue) Enqueue(ctx context.Context, ticketID string) error {
	if err := q.redis.LPush(ctx, retryQueueKey, ticketID).Err(); err != nil {
		return fmt.Errorf("retry queue: enqueue %s: %w", ticketID, err)
	}
	return nil
}

// Depth reports how many tickets are waiting for a provisioning retry.
func (q *RetryQueue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.redis.LLen(ctx, retryQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("retry queue: depth: %w", err)
	}
	return depth, nil
}
