// Package persist implements the optional persistence sink of spec §6:
// record(Verdict) — best-effort, never blocks the verdict path.
package persist

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardengate/wardengate/pkg/gateway"
)

// Recorder is the injected persistence interface. A nil Recorder is valid
// and simply means "no audit sink configured" — the pipeline never
// requires one to function.
type Recorder interface {
	Record(ctx context.Context, requestID string, v gateway.Verdict)
}

// PostgresRecorder writes verdicts to a Postgres table via pgx, fire-and-
// forget: every call spawns its own bounded-timeout write and swallows
// errors (logged, never surfaced) so a database outage can never slow down
// or fail a verdict. This is the pipeline's one consumer of the teacher's
// pgx/v5 dependency, otherwise unused by the detection path itself.
type PostgresRecorder struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool, timeout: 2 * time.Second}
}

// EnsureSchema creates the verdicts table if absent. Call once at startup;
// a failure here is a startup-time decision for the operator, not a
// per-request concern.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wardengate_verdicts (
			request_id      TEXT PRIMARY KEY,
			action          TEXT NOT NULL,
			tier_used       SMALLINT NOT NULL,
			method          TEXT NOT NULL,
			failure_class   TEXT NOT NULL,
			severity        TEXT NOT NULL,
			confidence      DOUBLE PRECISION NOT NULL,
			processing_ms   DOUBLE PRECISION NOT NULL,
			cache_hit       BOOLEAN NOT NULL,
			recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

// Record writes one verdict in its own goroutine with its own bounded
// deadline, so the caller (the orchestrator, on its own hot path) never
// waits on it. Spec §6: "best-effort, never blocks the verdict path."
func (r *PostgresRecorder) Record(ctx context.Context, requestID string, v gateway.Verdict) {
	if r == nil || r.pool == nil {
		return
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		_, err := r.pool.Exec(writeCtx, `
			INSERT INTO wardengate_verdicts
				(request_id, action, tier_used, method, failure_class, severity, confidence, processing_ms, cache_hit)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (request_id) DO NOTHING
		`, requestID, string(v.Action), v.TierUsed, v.Method, string(v.FailureClass), string(v.Severity), v.Confidence, v.ProcessingMs, v.CacheHit)
		if err != nil {
			log.Printf("persist: failed to record verdict %s: %v", requestID, err)
		}
	}()
}
