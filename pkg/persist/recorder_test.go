package persist

import (
	"context"
	"testing"

	"github.com/wardengate/wardengate/pkg/gateway"
)

// Exercising PostgresRecorder against a live Postgres is out of scope here —
// no pgx mocking library is grounded anywhere in the retrieved pack (only a
// manifest reference, never a demonstrated file), so these tests cover the
// nil-safety contract instead: Record must never panic or block the caller
// when no pool is configured, since a nil Recorder is a valid "no audit sink"
// configuration (spec §6).

func TestPostgresRecorder_NilReceiverDoesNotPanic(t *testing.T) {
	var r *PostgresRecorder
	r.Record(context.Background(), "req-1", gateway.Verdict{Action: gateway.ActionAllow})
}

func TestPostgresRecorder_NilPoolDoesNotPanic(t *testing.T) {
	r := &PostgresRecorder{}
	r.Record(context.Background(), "req-1", gateway.Verdict{Action: gateway.ActionBlock})
}
