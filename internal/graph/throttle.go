package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle is a per-source sliding window limiter on outbound platform
// calls, backed by Redis. The platform rate-limits aggressively; staying
// under its ceiling locally is cheaper than absorbing 429 retries.
type Throttle struct {
	redisClient *redis.Client
	logger      *slog.Logger
	limit       int
	script      *redis.Script
}

// Lua script for atomic sliding window limiting:
// drop entries outside the window, count the rest, admit and record the
// call only while under the limit.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
else
    return 0
end
`)

// NewThrottle creates a throttle allowing limit calls per second per source.
func NewThrottle(redisClient *redis.Client, limit int, logger *slog.Logger) *Throttle {
	return &Throttle{
		redisClient: redisClient,
		logger:      logger,
		limit:       limit,
		script:      slidingWindowScript,
	}
}

func throttleKey(sourceID string) string {
	return fmt.Sprintf("platform_rl:%s", sourceID)
}

// Allow reports whether one more outbound call for this source fits in the
// current window. Fails open when Redis is unavailable.
func (t *Throttle) Allow(ctx context.Context, sourceID string) bool {
	if t.limit <= 0 {
		return true
	}

	key := throttleKey(sourceID)
	now := time.Now().UnixMilli()
	window := int64(1000)
	member := fmt.Sprintf("%d:%d", now, time.Now().UnixNano()%10000)

	result, err := t.script.Run(ctx, t.redisClient, []string{key},
		now, window, t.limit, member,
	).Int64()
	if err != nil {
		t.logger.Error("throttle script failed", "error", err, "source_id", sourceID)
		return true
	}

	if result == 0 {
		t.logger.Debug("outbound call throttled",
			"source_id", sourceID,
			"limit", t.limit,
		)
		return false
	}

	return true
}
