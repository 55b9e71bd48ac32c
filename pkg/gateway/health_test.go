package gateway

import "testing"

func recordN(h *HealthMonitor, tier, n int) {
	for i := 0; i < n; i++ {
		h.Record(Verdict{TierUsed: tier})
	}
}

func TestHealthMonitor_EmptyIsOK(t *testing.T) {
	h := NewHealthMonitor(100)
	s := h.Status()
	if !s.OK {
		t.Fatalf("expected empty monitor to report OK, got %+v", s)
	}
}

func TestHealthMonitor_HealthyDistribution(t *testing.T) {
	h := NewHealthMonitor(100)
	recordN(h, 1, 90)
	recordN(h, 2, 8)
	recordN(h, 3, 2)
	s := h.Status()
	if !s.OK {
		t.Fatalf("expected 90/8/2 distribution to be OK, got %+v", s)
	}
}

func TestHealthMonitor_Tier1BelowFloorFlagsUnhealthy(t *testing.T) {
	h := NewHealthMonitor(100)
	recordN(h, 1, 50)
	recordN(h, 2, 30)
	recordN(h, 3, 20)
	s := h.Status()
	if s.OK {
		t.Fatalf("expected tier1 below floor to flag unhealthy, got %+v", s)
	}
	if len(s.Messages) == 0 {
		t.Error("expected an explanatory message")
	}
}

func TestHealthMonitor_Tier3AboveCeilingFlagsUnhealthy(t *testing.T) {
	h := NewHealthMonitor(100)
	recordN(h, 1, 85)
	recordN(h, 2, 5)
	recordN(h, 3, 10)
	s := h.Status()
	if s.OK {
		t.Fatalf("expected tier3 above ceiling to flag unhealthy, got %+v", s)
	}
}

func TestHealthMonitor_RingBufferEvictsOldest(t *testing.T) {
	h := NewHealthMonitor(10)
	recordN(h, 3, 10) // fill window entirely with tier3
	recordN(h, 1, 10) // now entirely tier1, old tier3 counts must be evicted
	s := h.Status()
	if s.Tier3Pct != 0 {
		t.Fatalf("expected evicted tier3 entries to no longer count, got %+v", s)
	}
	if s.Tier1Pct != 100 {
		t.Fatalf("expected tier1 at 100%% after full window replacement, got %+v", s)
	}
}

func TestHealthMonitor_InvalidTierIgnored(t *testing.T) {
	h := NewHealthMonitor(10)
	h.Record(Verdict{TierUsed: 0})
	h.Record(Verdict{TierUsed: 4})
	s := h.Status()
	if s.Tier1Pct != 0 || s.Tier2Pct != 0 || s.Tier3Pct != 0 {
		t.Fatalf("expected out-of-range tiers to be ignored, got %+v", s)
	}
}
