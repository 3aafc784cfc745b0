package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisCache_SeenAfterMark(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewRedisCache(client, time.Hour)
	ctx := context.Background()
	key := Key("ops@example.com", "msg-1")

	seen, err := cache.Seen(ctx, key)
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Error("unmarked key reported seen")
	}

	if err := cache.MarkSeen(ctx, key); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}

	seen, err = cache.Seen(ctx, key)
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if !seen {
		t.Error("marked key not reported seen")
	}
}

func TestRedisCache_EntriesExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewRedisCache(client, time.Minute)
	ctx := context.Background()
	key := Key("ops@example.com", "msg-1")

	if err := cache.MarkSeen(ctx, key); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	seen, err := cache.Seen(ctx, key)
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Error("expired key still reported seen")
	}
}

func TestMemoryCache_SeenAfterMark(t *testing.T) {
	cache := NewMemoryCache(time.Hour)
	ctx := context.Background()
	key := Key("ops@example.com", "msg-1")

	if seen, _ := cache.Seen(ctx, key); seen {
		t.Error("unmarked key reported seen")
	}
	if err := cache.MarkSeen(ctx, key); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if seen, _ := cache.Seen(ctx, key); !seen {
		t.Error("marked key not reported seen")
	}
	if seen, _ := cache.Seen(ctx, Key("ops@example.com", "msg-2")); seen {
		t.Error("different message reported seen")
	}
}

func TestKeyDerivation(t *testing.T) {
	if got := Key("ops@example.com", "msg-1"); got != "ops@example.com:msg-1" {
		t.Errorf("Key = %q", got)
	}
}
