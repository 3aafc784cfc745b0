package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nkapadia/mailbridge/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is the durable backend: a sorted set keyed by ready-time, with
// the serialized envelope as member. Claiming is ZRem — if another instance
// already removed the member, the job is skipped here and processed there.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, env *domain.JobEnvelope, delay time.Duration) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling job envelope: %w", err)
	}

	readyAt := time.Now().Add(delay)
	err = q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(readyAt.UnixMicro()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("queuing job %s: %w", env.JobID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, max int) ([]*domain.JobEnvelope, error) {
	now := float64(time.Now().UnixMicro())

	results, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(now, 'f', -1, 64),
		Count: int64(max),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling job queue: %w", err)
	}

	var envs []*domain.JobEnvelope
	for _, member := range results {
		removed, err := q.client.ZRem(ctx, q.key, member).Result()
		if err != nil {
			return envs, fmt.Errorf("claiming job: %w", err)
		}
		if removed == 0 {
			// Another instance already claimed this job.
			continue
		}

		var env domain.JobEnvelope
		if err := json.Unmarshal([]byte(member), &env); err != nil {
			return envs, fmt.Errorf("unmarshaling job envelope: %w", err)
		}
		envs = append(envs, &env)
	}

	return envs, nil
}
