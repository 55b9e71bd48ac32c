package gateway

import "sync"

// HealthStatus is C9's public shape (spec §4.8): tier-usage percentages
// over a rolling window, a boolean ok, and human-readable messages.
type HealthStatus struct {
	Tier1Pct float64
	Tier2Pct float64
	Tier3Pct float64
	OK       bool
	Messages []string
}

// HealthMonitor tracks the tier used by the last N verdicts (default
// 1,000) in a fixed-size ring buffer and flags deviations from the
// expected distribution (spec §4.8): tier1 usage dropping below 80% means
// the cheap stage is no longer absorbing most traffic; tier2/tier3 usage
// rising above their ceilings means escalation is happening more than
// expected.
type HealthMonitor struct {
	mu     sync.Mutex
	window []int
	pos    int
	filled int
	counts [4]int // index by tier, 0 unused
}

const (
	tier1FloorPct  = 80.0
	tier2CeilPct   = 15.0
	tier3CeilPct   = 5.0
)

func NewHealthMonitor(windowSize int) *HealthMonitor {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &HealthMonitor{window: make([]int, windowSize)}
}

// Record is called once per verdict emitted by the orchestrator (spec
// §4.8's "Increments per-tier counters atomically on verdict emission" —
// here "atomically" is achieved by a single mutex around the ring-buffer
// update, not a lock-free structure; at pipeline request rates this is
// not the bottleneck).
func (h *HealthMonitor) Record(v Verdict) {
	tier := v.TierUsed
	if tier < 1 || tier > 3 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.filled == len(h.window) {
		old := h.window[h.pos]
		h.counts[old]--
	} else {
		h.filled++
	}
	h.window[h.pos] = tier
	h.counts[tier]++
	h.pos = (h.pos + 1) % len(h.window)
}

func (h *HealthMonitor) Status() HealthStatus {
	h.mu.Lock()
	total := h.filled
	c1, c2, c3 := h.counts[1], h.counts[2], h.counts[3]
	h.mu.Unlock()

	if total == 0 {
		return HealthStatus{OK: true}
	}

	pct := func(c int) float64 { return 100 * float64(c) / float64(total) }
	t1, t2, t3 := pct(c1), pct(c2), pct(c3)

	status := HealthStatus{Tier1Pct: t1, Tier2Pct: t2, Tier3Pct: t3, OK: true}
	if t1 < tier1FloorPct {
		status.OK = false
		status.Messages = append(status.Messages, "tier1 usage below floor: escalation is happening more than expected")
	}
	if t2 > tier2CeilPct {
		status.OK = false
		status.Messages = append(status.Messages, "tier2 usage above ceiling")
	}
	if t3 > tier3CeilPct {
		status.OK = false
		status.Messages = append(status.Messages, "tier3 usage above ceiling")
	}
	return status
}
