package gateway

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisCache(t *testing.T) *RedisDecisionCache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDecisionCache(client, "")
}

func TestRedisDecisionCache_MissThenHit(t *testing.T) {
	ctx := context.Background()
	c := newTestRedisCache(t)

	if _, ok := c.GetVerdict(ctx, "hello", "v1", "idx1"); ok {
		t.Fatal("expected miss before Put")
	}
	c.PutVerdict(ctx, "hello", "v1", "idx1", Verdict{Action: ActionWarn, FailureClass: ClassOverconfidence})
	v, ok := c.GetVerdict(ctx, "hello", "v1", "idx1")
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if v.Action != ActionWarn || v.FailureClass != ClassOverconfidence {
		t.Errorf("got %+v, want warn/overconfidence", v)
	}
	if !v.CacheHit {
		t.Error("expected CacheHit=true on round-tripped verdict")
	}
}

func TestRedisDecisionCache_DownDegradesToMiss(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisDecisionCache(client, "")

	mr.Close() // simulate the backend going away
	_ = client.Close()

	if _, ok := c.GetVerdict(context.Background(), "hello", "v1", "idx1"); ok {
		t.Fatal("expected a downed backend to degrade to a miss, not an error")
	}
}

func TestRedisDecisionCache_KeyIncludesIndexHash(t *testing.T) {
	ctx := context.Background()
	c := newTestRedisCache(t)

	c.PutVerdict(ctx, "hello", "v1", "idx1", Verdict{Action: ActionBlock})
	if _, ok := c.GetVerdict(ctx, "hello", "v1", "idx2"); ok {
		t.Fatal("expected a different index_hash to be a logically distinct key")
	}
}
