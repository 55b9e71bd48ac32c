package gateway

import "testing"

func TestDecisionCache_MissThenHit(t *testing.T) {
	c := NewDecisionCache(10)
	if _, ok := c.Get("hello", "v1", "idx1"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put("hello", "v1", "idx1", Verdict{Action: ActionAllow, FailureClass: ClassNone})
	v, ok := c.Get("hello", "v1", "idx1")
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if !v.CacheHit {
		t.Error("expected CacheHit=true on returned verdict")
	}
	if v.Action != ActionAllow {
		t.Errorf("got action=%s, want allow", v.Action)
	}
}

func TestDecisionCache_KeyChangesOnPolicyVersion(t *testing.T) {
	c := NewDecisionCache(10)
	c.Put("hello", "v1", "idx1", Verdict{Action: ActionBlock})
	if _, ok := c.Get("hello", "v2", "idx1"); ok {
		t.Fatal("expected a different policy_version to produce a logically distinct key")
	}
}

func TestDecisionCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewDecisionCache(2)
	c.Put("a", "v1", "idx1", Verdict{Action: ActionAllow})
	c.Put("b", "v1", "idx1", Verdict{Action: ActionAllow})
	c.Put("c", "v1", "idx1", Verdict{Action: ActionAllow}) // evicts "a"

	if _, ok := c.Get("a", "v1", "idx1"); ok {
		t.Fatal("expected 'a' to have been evicted")
	}
	if _, ok := c.Get("b", "v1", "idx1"); !ok {
		t.Fatal("expected 'b' to still be present")
	}
	if _, ok := c.Get("c", "v1", "idx1"); !ok {
		t.Fatal("expected 'c' to still be present")
	}
	if c.Len() != 2 {
		t.Errorf("expected Len=2, got %d", c.Len())
	}
}

func TestDecisionCache_RecencyProtectsFromEviction(t *testing.T) {
	c := NewDecisionCache(2)
	c.Put("a", "v1", "idx1", Verdict{})
	c.Put("b", "v1", "idx1", Verdict{})
	c.Get("a", "v1", "idx1")              // touch "a", making "b" the LRU entry
	c.Put("c", "v1", "idx1", Verdict{}) // should evict "b", not "a"

	if _, ok := c.Get("b", "v1", "idx1"); ok {
		t.Fatal("expected 'b' to have been evicted instead of 'a'")
	}
	if _, ok := c.Get("a", "v1", "idx1"); !ok {
		t.Fatal("expected 'a' to survive due to recent access")
	}
}
