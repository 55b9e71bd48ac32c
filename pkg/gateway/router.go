package gateway

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// grayBandLow/High bound T1's "no terminal signal yet" escalation window
// (spec §4.6).
const (
	grayBandLow  = 0.30
	grayBandHigh = 0.85
)

// routeDeps bundles everything the router needs from the current Snapshot
// and the Orchestrator's long-lived resources. It exists so router.go has
// no direct dependency on the Orchestrator type (C6 stays a pure function
// of its inputs, independently testable, per spec §9's "polymorphism over
// stages" note).
type routeDeps struct {
	snapshot   *Snapshot
	embedder   EmbeddingProvider
	reasoner   Reasoner
	cache      CacheBackend
	t2Sem      *semaphore.Weighted
	t3Sem      *semaphore.Weighted
	encodeTO   time.Duration
	reasonTO   time.Duration
	t2CertainT float64
	tiersOn    TierFlags
}

// TierFlags lets an operator disable T2 and/or T3 entirely (spec §6
// "tier-enable flags").
type TierFlags struct {
	T2Enabled bool
	T3Enabled bool
}

// route implements the Router (C6): given the Input Guard's already-
// terminal-or-not result, it runs T1, conditionally T2, conditionally T3,
// and returns whichever stage produced the final (pre-policy) verdict.
// deadline is the remaining total-budget deadline computed by the
// orchestrator; the router never enters a stage whose minimum expected
// cost would exceed it.
func route(ctx context.Context, gr GuardResult, deps routeDeps, deadline time.Time) Verdict {
	if gr.Verdict != nil {
		return *gr.Verdict
	}

	t1 := EvaluatePatterns(ctx, gr.PatternText, deps.snapshot.Patterns)
	if t1.Terminal {
		return t1.Verdict
	}

	if !deps.tiersOn.T2Enabled {
		return t1.Verdict // fall through as the tentative/allow verdict
	}
	if !(t1.MaxPos == 0 || (t1.MaxPos >= grayBandLow && t1.MaxPos < grayBandHigh)) {
		return t1.Verdict
	}
	if !hasBudgetFor(ctx, deadline, deps.encodeTO) {
		return t1.Verdict
	}

	t2 := runT2(ctx, gr.VectorText, deps)

	if t2.Method == "semantic_clear" || t2.Method == "semantic_timeout" {
		return t2
	}
	if t2.Confidence >= deps.t2CertainT {
		return t2
	}

	inBand := t2.Confidence >= escalationBandLow && t2.Confidence < deps.t2CertainT
	if !inBand || !deps.tiersOn.T3Enabled || !hasBudgetFor(ctx, deadline, deps.reasonTO) {
		return t2
	}

	return runT3(ctx, gr.NormalizedText, deps, t2)
}

func hasBudgetFor(ctx context.Context, deadline time.Time, stageBudget time.Duration) bool {
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return time.Until(deadline) >= stageBudget
}

// runT2 acquires the T2 inflight semaphore (bounding CPU-heavy embedding
// fan-in, spec §5) before encoding.
func runT2(ctx context.Context, text string, deps routeDeps) Verdict {
	if deps.t2Sem != nil {
		if err := deps.t2Sem.Acquire(ctx, 1); err != nil {
			return allowVerdict(2, "semantic_timeout", 0)
		}
		defer deps.t2Sem.Release(1)
	}
	return EvaluateExemplars(ctx, text, deps.snapshot.Exemplars, deps.embedder, deps.encodeTO)
}

// runT3 consults the cache first (spec §4.4), then acquires the T3
// inflight semaphore before calling the reasoner.
func runT3(ctx context.Context, normalizedText string, deps routeDeps, tentative Verdict) Verdict {
	if deps.cache != nil {
		if v, ok := deps.cache.GetVerdict(ctx, normalizedText, deps.snapshot.Version, deps.snapshot.Exemplars.ContentHash()); ok {
			return v
		}
	}

	if deps.t3Sem != nil {
		if err := deps.t3Sem.Acquire(ctx, 1); err != nil {
			return stageTimeoutVerdict(3, "reason_unavailable", tentative)
		}
		defer deps.t3Sem.Release(1)
	}

	v := EvaluateReasoner(ctx, normalizedText, nil, deps.reasoner, deps.reasonTO, tentative)

	if deps.cache != nil && v.Method == "reason" {
		deps.cache.PutVerdict(ctx, normalizedText, deps.snapshot.Version, deps.snapshot.Exemplars.ContentHash(), v)
	}
	return v
}
