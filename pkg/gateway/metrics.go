package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the concrete implementation of spec §6's metrics endpoint:
// total verdicts, per-tier counters, per-class counters, cache hit/miss
// counters, a latency histogram, and timeout counters, all exported via
// prometheus/client_golang so `GET /metrics` can be scraped directly
// (grounded on the pack's Sentinel-Gate-Sentinelgate / kubernaut usage of
// the same library). Latency is observed once per verdict, end to end,
// labelled by the tier that produced it; individual stage durations are
// not measured.
type Metrics struct {
	Registry *prometheus.Registry

	verdictsTotal   *prometheus.CounterVec
	tierTotal       *prometheus.CounterVec
	classTotal      *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	timeoutsTotal   *prometheus.CounterVec
	stageLatencyMs  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		verdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardengate",
			Name:      "verdicts_total",
			Help:      "Total verdicts emitted, by action.",
		}, []string{"action"}),
		tierTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardengate",
			Name:      "tier_total",
			Help:      "Verdicts emitted, by tier used.",
		}, []string{"tier"}),
		classTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardengate",
			Name:      "failure_class_total",
			Help:      "Verdicts emitted, by failure class.",
		}, []string{"class"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wardengate",
			Name:      "cache_hits_total",
			Help:      "Decision cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wardengate",
			Name:      "cache_misses_total",
			Help:      "Decision cache misses.",
		}),
		timeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardengate",
			Name:      "stage_timeouts_total",
			Help:      "Stage timeouts, by method.",
		}, []string{"method"}),
		stageLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wardengate",
			Name:      "stage_latency_ms",
			Help:      "End-to-end verdict latency in milliseconds, by tier.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 15000},
		}, []string{"tier"}),
	}

	reg.MustRegister(m.verdictsTotal, m.tierTotal, m.classTotal, m.cacheHits, m.cacheMisses, m.timeoutsTotal, m.stageLatencyMs)
	return m
}

// Record updates every counter/histogram from one final Verdict. Called
// once per request by the orchestrator, never on a per-stage basis, so a
// single verdict cannot double-count.
func (m *Metrics) Record(v Verdict) {
	m.verdictsTotal.WithLabelValues(string(v.Action)).Inc()
	m.tierTotal.WithLabelValues(tierLabel(v.TierUsed)).Inc()
	m.classTotal.WithLabelValues(string(v.FailureClass)).Inc()
	m.stageLatencyMs.WithLabelValues(tierLabel(v.TierUsed)).Observe(v.ProcessingMs)

	if v.CacheHit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}

	switch v.Method {
	case "semantic_timeout", "reason_unavailable", "reason_parse_failure", "budget_exhausted":
		m.timeoutsTotal.WithLabelValues(v.Method).Inc()
	}
}

func tierLabel(tier int) string {
	switch tier {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "0"
	}
}
