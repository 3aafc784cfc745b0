package queue

import (
	"context"
	"sync"
	"time"

	"github.com/nkapadia/mailbridge/internal/domain"
)

// MemoryQueue is the local backend: an in-process queue with the same
// delay/claim semantics as the durable one. Intended for single-instance
// deployments and tests.
type MemoryQueue struct {
	mu    sync.Mutex
	items []memoryItem
}

type memoryItem struct {
	env     *domain.JobEnvelope
	readyAt time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, env *domain.JobEnvelope, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, memoryItem{env: env, readyAt: time.Now().Add(delay)})
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, max int) ([]*domain.JobEnvelope, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var envs []*domain.JobEnvelope
	var remaining []memoryItem

	for _, item := range q.items {
		if len(envs) < max && !item.readyAt.After(now) {
			envs = append(envs, item.env)
			continue
		}
		remaining = append(remaining, item)
	}

	q.items = remaining
	return envs, nil
}

// Len reports queued items, ready or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
