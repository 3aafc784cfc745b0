// Package queue provides the job submission gateway and the two queue
// backends it can route to: a durable Redis sorted-set queue and a local
// in-memory queue. Both feed the same processing engine contract.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nkapadia/mailbridge/internal/domain"
	"github.com/redis/go-redis/v9"
)

// JobQueue is the contract shared by the durable and local backends.
// Dequeue claims up to max envelopes whose delay has elapsed; a claimed
// envelope is no longer visible to other consumers.
type JobQueue interface {
	Enqueue(ctx context.Context, env *domain.JobEnvelope, delay time.Duration) error
	Dequeue(ctx context.Context, max int) ([]*domain.JobEnvelope, error)
}

// Build selects the queue backend from configuration. Durable mode without
// a Redis connection is a construction-time error, never a silent fallback.
func Build(durable bool, client *redis.Client, queueName string) (JobQueue, error) {
	if durable {
		if client == nil {
			return nil, fmt.Errorf("durable job queue requires a redis connection")
		}
		return NewRedisQueue(client, queueName), nil
	}
	return NewMemoryQueue(), nil
}
