package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupCache is the fast idempotency check in front of the entity store's
// uniqueness constraint. It is an optimization only — correctness under
// concurrent webhook/poll races comes from the store.
type DedupCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkSeen(ctx context.Context, key string) error
}

func cacheKey(key string) string {
	return fmt.Sprintf("ingest_seen:%s", key)
}

// RedisCache marks keys with a TTL so the cache bounds itself.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, cacheKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("checking dedup cache: %w", err)
	}
	return n > 0, nil
}

func (c *RedisCache) MarkSeen(ctx context.Context, key string) error {
	if err := c.client.Set(ctx, cacheKey(key), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("marking dedup cache: %w", err)
	}
	return nil
}

// MemoryCache is the local-mode substitute.
type MemoryCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{seen: make(map[string]time.Time), ttl: ttl}
}

func (c *MemoryCache) Seen(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.seen[key]
	if !ok {
		return false, nil
	}
	if time.Since(at) > c.ttl {
		delete(c.seen, key)
		return false, nil
	}
	return true, nil
}

func (c *MemoryCache) MarkSeen(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[key] = time.Now()
	return nil
}
