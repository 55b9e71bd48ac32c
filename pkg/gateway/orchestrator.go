package gateway

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// PipelineConfig carries every budget named in spec §5/§6. All fields have
// documented defaults; a zero value is replaced by its default, never left
// as zero at call time (mirrors the teacher's clampInt/GetEnvInt idiom of
// "any missing value yields the default").
type PipelineConfig struct {
	Guard GuardConfig

	EncodeTimeout   time.Duration // default 3s
	ReasonBudget    time.Duration // default 15s
	TotalSoftBudget time.Duration // default 5s
	TotalHardBudget time.Duration // default 15s

	T2Permits int64 // default 2x CPU cores
	T3Permits int64 // default 4

	T2CertainThreshold float64 // default 0.78

	Tiers TierFlags

	CacheCapacity int // default 10,000
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Guard:              DefaultGuardConfig(),
		EncodeTimeout:      3 * time.Second,
		ReasonBudget:       15 * time.Second,
		TotalSoftBudget:    5 * time.Second,
		TotalHardBudget:    15 * time.Second,
		T2Permits:          int64(2 * runtime.NumCPU()),
		T3Permits:          4,
		T2CertainThreshold: escalationBandHigh,
		Tiers:              TierFlags{T2Enabled: true, T3Enabled: true},
		CacheCapacity:      defaultCacheCapacity,
	}
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	d := DefaultPipelineConfig()
	if c.EncodeTimeout <= 0 {
		c.EncodeTimeout = d.EncodeTimeout
	}
	if c.ReasonBudget <= 0 {
		c.ReasonBudget = d.ReasonBudget
	}
	if c.TotalSoftBudget <= 0 {
		c.TotalSoftBudget = d.TotalSoftBudget
	}
	if c.TotalHardBudget <= 0 {
		c.TotalHardBudget = d.TotalHardBudget
	}
	if c.T2Permits <= 0 {
		c.T2Permits = d.T2Permits
	}
	if c.T3Permits <= 0 {
		c.T3Permits = d.T3Permits
	}
	if c.T2CertainThreshold <= 0 {
		c.T2CertainThreshold = d.T2CertainThreshold
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = d.CacheCapacity
	}
	c.Guard = c.Guard.withDefaults()
	return c
}

// Recorder is the optional persistence sink (spec §6): best-effort, never
// allowed to block or fail the verdict path. pkg/persist.PostgresRecorder
// satisfies this interface; it is declared here rather than imported from
// pkg/persist because pkg/persist imports pkg/gateway for the Verdict type,
// and Go does not allow the reverse edge.
type Recorder interface {
	Record(ctx context.Context, requestID string, v Verdict)
}

// Orchestrator is the Pipeline Orchestrator (C8): the public entry point,
// enforcing the total latency budget, emitting metrics, and feeding the
// Tier-health Monitor (C9).
type Orchestrator struct {
	cfg       PipelineConfig
	snapshots *SnapshotStore
	embedder  EmbeddingProvider
	reasoner  Reasoner
	cache     CacheBackend
	recorder  Recorder
	t2Sem     *semaphore.Weighted
	t3Sem     *semaphore.Weighted
	health    *HealthMonitor
	metrics   *Metrics
}

func NewOrchestrator(cfg PipelineConfig, snapshots *SnapshotStore, embedder EmbeddingProvider, reasoner Reasoner, cache CacheBackend, recorder Recorder, metrics *Metrics) *Orchestrator {
	cfg = cfg.withDefaults()
	if cache == nil {
		cache = NewLocalCacheBackend(cfg.CacheCapacity)
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Orchestrator{
		cfg:       cfg,
		snapshots: snapshots,
		embedder:  embedder,
		reasoner:  reasoner,
		cache:     cache,
		recorder:  recorder,
		t2Sem:     semaphore.NewWeighted(cfg.T2Permits),
		t3Sem:     semaphore.NewWeighted(cfg.T3Permits),
		health:    NewHealthMonitor(1000),
		metrics:   metrics,
	}
}

// Evaluate is the pipeline's public entry point: request → Verdict, within
// the total budget, always.
func (o *Orchestrator) Evaluate(ctx context.Context, req Request) Verdict {
	start := time.Now()
	deadline := start.Add(o.cfg.TotalHardBudget)

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	type result struct{ v Verdict }
	resCh := make(chan result, 1)

	go func() {
		resCh <- result{v: o.evaluateInner(ctx, req, deadline)}
	}()

	var v Verdict
	select {
	case r := <-resCh:
		v = r.v
	case <-ctx.Done():
		v = budgetExhaustedVerdict()
	}

	v.ProcessingTime = time.Since(start)
	v.finalize()

	o.health.Record(v)
	o.metrics.Record(v)
	if o.recorder != nil {
		o.recorder.Record(ctx, req.CorrelationID, v)
	}

	return v
}

func (o *Orchestrator) evaluateInner(ctx context.Context, req Request, deadline time.Time) Verdict {
	snap := o.snapshots.Load()
	if snap == nil {
		return internalErrorVerdict()
	}

	gr := Guard(req.Text, o.cfg.Guard)
	if gr.Verdict != nil {
		return snap.Policy.Apply(*gr.Verdict)
	}

	indexHash := snap.Exemplars.ContentHash()
	if o.cache != nil {
		if v, ok := o.cache.GetVerdict(ctx, gr.NormalizedText, snap.Version, indexHash); ok {
			return v
		}
	}

	deps := routeDeps{
		snapshot:   snap,
		embedder:   o.embedder,
		reasoner:   o.reasoner,
		cache:      o.cache,
		t2Sem:      o.t2Sem,
		t3Sem:      o.t3Sem,
		encodeTO:   o.cfg.EncodeTimeout,
		reasonTO:   o.cfg.ReasonBudget,
		t2CertainT: o.cfg.T2CertainThreshold,
		tiersOn:    o.cfg.Tiers,
	}

	v := route(ctx, gr, deps, deadline)
	v = snap.Policy.Apply(v)

	if o.cache != nil {
		o.cache.PutVerdict(ctx, gr.NormalizedText, snap.Version, indexHash, v)
	}

	return v
}

// Health returns the Tier-health Monitor's current snapshot (C9).
func (o *Orchestrator) Health() HealthStatus {
	return o.health.Status()
}

// Metrics exposes the Prometheus registry backing the metrics endpoint.
func (o *Orchestrator) Metrics() *Metrics {
	return o.metrics
}

// Reload atomically rebuilds and publishes a new Snapshot from a policy
// file. A parse/build error leaves the running snapshot untouched.
func (o *Orchestrator) Reload(ctx context.Context, policyPath, version string) error {
	return o.snapshots.ReloadFromFile(ctx, policyPath, o.embedder, version)
}
