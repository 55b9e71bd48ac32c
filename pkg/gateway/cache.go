package gateway

import (
	"container/list"
	"sync"
)

// DecisionCache is the bounded LRU of spec §4.5, keyed by
// H(normalized_text, policy_version, index_hash). No third-party LRU
// library appears anywhere in the retrieved corpus (checked across every
// go.mod in _examples/), so this is a justified stdlib fallback built on
// container/list — see DESIGN.md Open Question 3. There is no TTL:
// invalidation is logical, via the key changing when policy_version or
// index_hash changes on reload.
type DecisionCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[uint64]*list.Element
}

type cacheEntry struct {
	key     uint64
	verdict Verdict
}

const defaultCacheCapacity = 10000

func NewDecisionCache(capacity int) *DecisionCache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &DecisionCache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[uint64]*list.Element),
	}
}

// Get returns the cached Verdict, with CacheHit set, or false if absent.
// Concurrent reads are safe; the single mutex also serializes the
// front-of-list move, which is the "single-writer semantics on eviction"
// spec §4.5 asks for — a plain mutex is enough at this scale and keeps the
// implementation auditable, unlike a lock-free structure that would need
// its own correctness argument this project has no room to carry.
func (c *DecisionCache) Get(normalizedText, policyVersion, indexHash string) (Verdict, bool) {
	key := cacheKey(normalizedText, policyVersion, indexHash)

	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return Verdict{}, false
	}
	c.ll.MoveToFront(el)
	v := el.Value.(*cacheEntry).verdict
	v.CacheHit = true
	return v, true
}

// Put stores verdict, evicting the least-recently-used entry if the cache
// is at capacity. The stored copy preserves the original ProcessingMs;
// CacheHit is only ever set on the copy returned by Get.
func (c *DecisionCache) Put(normalizedText, policyVersion, indexHash string, verdict Verdict) {
	key := cacheKey(normalizedText, policyVersion, indexHash)
	stored := verdict
	stored.CacheHit = false

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		el.Value.(*cacheEntry).verdict = stored
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: key, verdict: stored})
	c.index[key] = el
	for c.ll.Len() > c.capacity {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.ll.Remove(back)
		delete(c.index, back.Value.(*cacheEntry).key)
	}
}

func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
