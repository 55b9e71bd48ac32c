package gateway

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// contentHasher accumulates a stable hash over an unordered collection of
// (class, text) pairs so the resulting ExemplarIndex.ContentHash is
// independent of load order but changes whenever the exemplar set changes
// — exactly the property the cache key in spec §3/§4.5 depends on.
type contentHasher struct {
	entries []string
}

func newContentHasher() *contentHasher {
	return &contentHasher{}
}

func (h *contentHasher) add(class FailureClass, text string) {
	h.entries = append(h.entries, string(class)+"\x00"+text)
}

func (h *contentHasher) sum() string {
	sorted := append([]string{}, h.entries...)
	sort.Strings(sorted)
	d := xxhash.New()
	for _, e := range sorted {
		_, _ = d.WriteString(e)
		_, _ = d.WriteString("\x1f")
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// cacheKey computes H(normalized_text, policy_version, index_hash), per
// spec §3's CacheEntry definition.
func cacheKey(normalizedText, policyVersion, indexHash string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(normalizedText)
	_, _ = d.WriteString("\x1f")
	_, _ = d.WriteString(policyVersion)
	_, _ = d.WriteString("\x1f")
	_, _ = d.WriteString(indexHash)
	return d.Sum64()
}
