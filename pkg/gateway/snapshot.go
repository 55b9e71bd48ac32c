package gateway

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Snapshot is the atomically-published tuple of spec §3 Lifecycle / §5 Hot
// reload: patterns, exemplar index, and policy, plus a version string used
// in cache keys. In-flight requests hold a reference to the Snapshot they
// started with; a reload publishes a new one without mutating the old.
type Snapshot struct {
	Version   string
	Patterns  []Pattern
	Exemplars *ExemplarIndex
	Policy    *PolicyEngine
}

// SnapshotStore publishes Snapshots via a single atomic pointer — one
// owner, explicit init, explicit teardown — generalizing the teacher's
// per-global sync.RWMutex pattern into the single swap point spec §5
// requires ("readers never observe torn state").
type SnapshotStore struct {
	current atomic.Pointer[Snapshot]
}

func NewSnapshotStore(initial *Snapshot) *SnapshotStore {
	s := &SnapshotStore{}
	s.current.Store(initial)
	return s
}

// Load returns the currently published Snapshot. Callers must capture it
// once at request entry and hold that reference for the whole request
// (spec §5's "Cache and exemplar-index access is read-mostly").
func (s *SnapshotStore) Load() *Snapshot {
	return s.current.Load()
}

// Publish atomically swaps in a new Snapshot. It never mutates the
// previous one, so requests already holding it finish unaffected.
func (s *SnapshotStore) Publish(next *Snapshot) {
	s.current.Store(next)
}

// BuildSnapshot compiles patterns, builds the exemplar index, and
// constructs the policy engine from a policy file (nil means "defaults
// only"). Returns an error rather than a partial Snapshot — per spec §7,
// a failed reload must leave the previous snapshot untouched, which is the
// caller's responsibility (see ReloadFromFile).
func BuildSnapshot(ctx context.Context, pf *PolicyFile, embedder EmbeddingProvider, version string) (*Snapshot, error) {
	policy := BuildPolicyEngine(pf)

	patterns, err := BuildPatterns(pf)
	if err != nil {
		return nil, fmt.Errorf("build patterns: %w", err)
	}

	exemplars := BuildExemplars(pf)
	index, err := BuildExemplarIndex(ctx, exemplars, embedder, policy.ThresholdOverrides())
	if err != nil {
		return nil, fmt.Errorf("build exemplar index: %w", err)
	}

	if version == "" {
		version = policy.Version()
	}

	return &Snapshot{
		Version:   version,
		Patterns:  patterns,
		Exemplars: index,
		Policy:    policy,
	}, nil
}

// ReloadFromFile builds a new Snapshot off-line and only publishes it on
// success; a parse or build error leaves the running snapshot untouched
// and is returned to the caller to log (spec §7 Policy load errors).
func (s *SnapshotStore) ReloadFromFile(ctx context.Context, path string, embedder EmbeddingProvider, version string) error {
	pf, err := LoadPolicyFile(path)
	if err != nil {
		return err
	}
	next, err := BuildSnapshot(ctx, pf, embedder, version)
	if err != nil {
		return err
	}
	s.Publish(next)
	return nil
}
