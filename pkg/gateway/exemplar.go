package gateway

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/philippgille/chromem-go"
)

// Exemplar is a short text whose embedding represents one way a failure
// class appears. Class-level decisions use max-pool over its exemplars,
// never mean-pool — a single unambiguous exemplar should be enough to
// trigger its class, it should not be diluted by weaker siblings.
type Exemplar struct {
	FailureClass FailureClass
	Text         string
	Embedding    []float32
	Source       string // "policy" | "builtin"
}

// securityClasses get the stricter default threshold (spec §4.3 /
// resolved Open Question in §9): these are the classes where a false
// negative is worse than a false positive.
var securityClasses = map[FailureClass]bool{
	ClassPromptInjection:  true,
	ClassSQLInjection:     true,
	ClassXSS:              true,
	ClassPathTraversal:    true,
	ClassCommandInjection: true,
}

func defaultClassThreshold(class FailureClass) float64 {
	if securityClasses[class] {
		return 0.65
	}
	return 0.70
}

// escalationBandLow/High is the confidence window in which a triggered
// class is marked tentative so the router may still send the request to
// T3 (spec §4.3 / §4.6).
const (
	escalationBandLow  = 0.60
	escalationBandHigh = 0.78 // T2_CERTAIN: at/above this, T2's verdict is terminal
)

// ExemplarIndex is the atomically-published vector index for the Exemplar
// Index stage (C3). It wraps an in-process chromem-go collection for
// storage/query and keeps its own class->threshold table and content hash
// for cache keying and dimension-mismatch detection.
type ExemplarIndex struct {
	dimension    int
	contentHash  string
	thresholds   map[FailureClass]float64
	collection   *chromem.Collection
	db           *chromem.DB
}

// BuildExemplarIndex embeds every exemplar (skipping ones that already
// carry a precomputed embedding, e.g. from a prior snapshot) and publishes
// a fresh chromem-go collection. Mixing embedding dimensions across
// exemplars is a load-time error, per spec §3.
func BuildExemplarIndex(ctx context.Context, exemplars []Exemplar, embedder EmbeddingProvider, thresholdOverrides map[FailureClass]float64) (*ExemplarIndex, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection("exemplars", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create exemplar collection: %w", err)
	}

	dim := 0
	hasher := newContentHasher()
	for i, ex := range exemplars {
		vec := ex.Embedding
		if vec == nil {
			v, err := embedder.Encode(ctx, ex.Text)
			if err != nil {
				return nil, fmt.Errorf("embed exemplar %q: %w", ex.Text, err)
			}
			vec = v
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, fmt.Errorf("exemplar %q: dimension %d does not match index dimension %d", ex.Text, len(vec), dim)
		}
		doc := chromem.Document{
			ID:        fmt.Sprintf("ex-%d", i),
			Content:   ex.Text,
			Embedding: vec,
			Metadata:  map[string]string{"class": string(ex.FailureClass), "source": ex.Source},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("index exemplar %q: %w", ex.Text, err)
		}
		hasher.add(ex.FailureClass, ex.Text)
	}

	thresholds := map[FailureClass]float64{}
	for class := range KnownClasses {
		thresholds[class] = defaultClassThreshold(class)
	}
	for class, v := range thresholdOverrides {
		thresholds[class] = v
	}

	return &ExemplarIndex{
		dimension:   dim,
		contentHash: hasher.sum(),
		thresholds:  thresholds,
		collection:  col,
		db:          db,
	}, nil
}

func (idx *ExemplarIndex) Dimension() int      { return idx.dimension }
func (idx *ExemplarIndex) ContentHash() string { return idx.contentHash }

type classScore struct {
	class FailureClass
	score float64
}

// Query runs nearest-neighbor search against every indexed exemplar and
// max-pools the results per class, per spec §4.3.
func (idx *ExemplarIndex) Query(ctx context.Context, vec []float32, topN int) ([]classScore, error) {
	if idx.collection == nil {
		return nil, nil
	}
	n := topN
	if n <= 0 || n > idx.collection.Count() {
		n = idx.collection.Count()
	}
	if n == 0 {
		return nil, nil
	}
	results, err := idx.collection.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query exemplar index: %w", err)
	}

	best := map[FailureClass]float64{}
	for _, r := range results {
		class := FailureClass(r.Metadata["class"])
		if class == "" {
			continue
		}
		if float64(r.Similarity) > best[class] {
			best[class] = float64(r.Similarity)
		}
	}

	out := make([]classScore, 0, len(best))
	for class, score := range best {
		out = append(out, classScore{class: class, score: score})
	}
	return out, nil
}

// EvaluateExemplars runs the Exemplar Index stage (C3) end to end: encode,
// query, threshold, resolve ties, mark the escalation band.
func EvaluateExemplars(ctx context.Context, text string, idx *ExemplarIndex, embedder EmbeddingProvider, encodeTimeout time.Duration) Verdict {
	encCtx, cancel := context.WithTimeout(ctx, encodeTimeout)
	defer cancel()

	vec, err := embedder.Encode(encCtx, text)
	if err != nil {
		return Verdict{
			Action:       ActionAllow,
			TierUsed:     2,
			Method:       "semantic_timeout",
			FailureClass: ClassNone,
			Severity:     SeverityInfo,
			Confidence:   0,
			Explanation:  "embedding encode did not complete within budget",
		}
	}

	scores, err := idx.Query(ctx, vec, 0)
	if err != nil {
		return internalErrorVerdict()
	}

	var triggered []classScore
	for _, cs := range scores {
		if cs.score >= idx.thresholds[cs.class] {
			triggered = append(triggered, cs)
		}
	}

	if len(triggered) == 0 {
		maxScore := 0.0
		for _, cs := range scores {
			if cs.score > maxScore {
				maxScore = cs.score
			}
		}
		return allowVerdict(2, "semantic_clear", 1-maxScore)
	}

	sort.Slice(triggered, func(i, j int) bool {
		si, sj := triggered[i], triggered[j]
		ri, rj := severityRank[severityOf(si.class)], severityRank[severityOf(sj.class)]
		if ri != rj {
			return ri < rj // lower rank number = more severe, wins
		}
		if si.score != sj.score {
			return si.score > sj.score
		}
		return si.class < sj.class // lexicographic, for determinism
	})

	winner := triggered[0]
	method := "semantic"
	if winner.score >= escalationBandLow && winner.score < escalationBandHigh {
		method = "semantic_tentative"
	}

	return Verdict{
		Action:       ActionAllow, // policy engine has final say; stage proposes
		TierUsed:     2,
		Method:       method,
		FailureClass: winner.class,
		Severity:     severityOf(winner.class),
		Confidence:   winner.score,
	}
}

// severityOf looks a class up in the default policy table. It drives
// exemplar tie-breaking and the provisional Severity that the Exemplar and
// Reasoning stages propose; the policy engine is the source of truth for
// the Verdict's final Severity field (spec §4.7).
func severityOf(class FailureClass) Severity {
	if s, ok := defaultPolicyTable[class]; ok {
		return s.Severity
	}
	return SeverityInfo
}
