package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedisQueue(t *testing.T) (*RedisQueue, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisQueue(client, "test_jobs"), client
}

func TestRedisQueue_Roundtrip(t *testing.T) {
	q, client := setupRedisQueue(t)
	ctx := context.Background()

	env := testEnvelope("job-1")
	if err := q.Enqueue(ctx, env, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	envs, err := q.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(envs) != 1 {
		t.Fatalf("got %d envelopes, want 1", len(envs))
	}

	got := envs[0]
	if got.JobID != env.JobID {
		t.Errorf("JobID = %q, want %q", got.JobID, env.JobID)
	}
	if got.JobType != env.JobType {
		t.Errorf("JobType = %q, want %q", got.JobType, env.JobType)
	}
	if got.IdempotencyKey != env.IdempotencyKey {
		t.Errorf("IdempotencyKey = %q, want %q", got.IdempotencyKey, env.IdempotencyKey)
	}
	if got.Attempt != 1 || got.MaxAttempts != 3 {
		t.Errorf("Attempt/MaxAttempts = %d/%d, want 1/3", got.Attempt, got.MaxAttempts)
	}

	// The claim removed the member: nothing left in the sorted set.
	n, err := client.ZCard(ctx, "test_jobs").Result()
	if err != nil {
		t.Fatalf("ZCard: %v", err)
	}
	if n != 0 {
		t.Errorf("queue still holds %d members after claim", n)
	}
}

func TestRedisQueue_DelayedJobNotReady(t *testing.T) {
	q, client := setupRedisQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, testEnvelope("job-1"), time.Hour); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	envs, err := q.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(envs) != 0 {
		t.Fatal("delayed job dequeued early")
	}

	// Still queued for later.
	n, _ := client.ZCard(ctx, "test_jobs").Result()
	if n != 1 {
		t.Errorf("queue holds %d members, want 1", n)
	}
}

func TestRedisQueue_BatchLimit(t *testing.T) {
	q, _ := setupRedisQueue(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		env := testEnvelope("job")
		env.JobID = env.JobID + string(rune('a'+i))
		if err := q.Enqueue(ctx, env, 0); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	envs, err := q.Dequeue(ctx, 3)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(envs) != 3 {
		t.Errorf("got %d envelopes, want 3", len(envs))
	}
}
