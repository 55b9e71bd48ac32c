package gateway

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// EmbeddingProvider is the injected encoding interface of spec §6: it must
// be deterministic for a given model version and must respect ctx's
// deadline.
type EmbeddingProvider interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// HashEmbedder is a deterministic, dependency-free fallback used when no
// ONNX model has been downloaded (tests, CI, offline dev). It is not a
// semantically meaningful embedding — it exists only so the Exemplar Index
// stage has something deterministic to query against without requiring a
// model file, the same role the teacher's multiturn_stub.go no-op
// implementations play for disabled Pro features.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, h.dim)
	// Running FNV-1a hash over the text's prefix at each rune, scattered
	// into buckets by the hash value — cheap, stable across process restarts
	// (no randomness), and sensitive enough to text changes to separate
	// distinct exemplars in tests.
	var acc uint64 = 1469598103934665603 // FNV offset basis
	for i, r := range text {
		acc ^= uint64(r)
		acc *= 1099511628211
		vec[acc%uint64(h.dim)] += float32((acc>>uint(i%17))%997) / 997.0
	}
	normalizeUnit(vec)
	return vec, nil
}

func normalizeUnit(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := sqrt(sumSq)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// sqrt avoids importing math solely for one call site; kept inline because
// this file otherwise has no other math dependency.
func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// LocalEmbedder wraps a hugot ONNX pipeline, adapting the teacher's
// local_embedder.go auto-detection/graceful-fallback shape: construction
// never panics, and IsReady reports whether the pipeline initialized.
type LocalEmbedder struct {
	mu       sync.Mutex
	pipeline *pipelines.FeatureExtractionPipeline
	dim      int
	ready    bool
}

type LocalEmbedderConfig struct {
	ModelPath string
	OnnxFile  string
}

// NewLocalEmbedder attempts to build a hugot feature-extraction session. On
// any failure it returns a non-nil, non-ready embedder rather than an
// error — callers fall back to HashEmbedder, matching the teacher's
// "OSS degrades gracefully when the model/session is unavailable" idiom.
func NewLocalEmbedder(cfg LocalEmbedderConfig) *LocalEmbedder {
	le := &LocalEmbedder{dim: 384}
	if cfg.ModelPath == "" {
		return le
	}

	// Try the ONNX Runtime backend first (fastest); fall back to the pure
	// Go backend so the embedder still works with no native library
	// installed — same two-tier fallback as the teacher's createSession.
	session, err := hugot.NewORTSession()
	if err != nil {
		session, err = hugot.NewGoSession()
		if err != nil {
			return le
		}
	}

	pipe, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath:    cfg.ModelPath,
		Name:         "wardengate-embedder",
		OnnxFilename: cfg.OnnxFile,
	})
	if err != nil {
		_ = session.Destroy()
		return le
	}
	le.pipeline = pipe
	le.ready = true
	return le
}

func (l *LocalEmbedder) IsReady() bool { return l.ready }

func (l *LocalEmbedder) Dimension() int { return l.dim }

func (l *LocalEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if !l.ready {
		return nil, newStageError("embedder", "not_ready", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	result := make(chan []float32, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err := l.pipeline.RunPipeline([]string{text})
		if err != nil {
			errCh <- err
			return
		}
		if len(out.Embeddings) == 0 {
			errCh <- fmt.Errorf("empty embedding result")
			return
		}
		vec := out.Embeddings[0]
		normalizeUnit(vec)
		if l.dim == 0 {
			l.dim = len(vec)
		}
		result <- vec
	}()

	select {
	case v := <-result:
		return v, nil
	case err := <-errCh:
		return nil, newStageError("embedder", "encode_error", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EmbeddingMemo is the process-local bounded LRU mapping H(text) ->
// embedding, per spec §4.3's "Deterministic cache" note. It wraps any
// EmbeddingProvider.
type EmbeddingMemo struct {
	inner EmbeddingProvider
	mu    sync.Mutex
	cap   int
	ll    *list.List
	index map[uint64]*list.Element
}

type memoEntry struct {
	key uint64
	vec []float32
}

func NewEmbeddingMemo(inner EmbeddingProvider, capacity int) *EmbeddingMemo {
	if capacity <= 0 {
		capacity = 4096
	}
	return &EmbeddingMemo{
		inner: inner,
		cap:   capacity,
		ll:    list.New(),
		index: make(map[uint64]*list.Element),
	}
}

func (m *EmbeddingMemo) Dimension() int { return m.inner.Dimension() }

func (m *EmbeddingMemo) Encode(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text, "", "")

	m.mu.Lock()
	if el, ok := m.index[key]; ok {
		m.ll.MoveToFront(el)
		vec := el.Value.(*memoEntry).vec
		m.mu.Unlock()
		return vec, nil
	}
	m.mu.Unlock()

	vec, err := m.inner.Encode(ctx, text)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	el := m.ll.PushFront(&memoEntry{key: key, vec: vec})
	m.index[key] = el
	for m.ll.Len() > m.cap {
		back := m.ll.Back()
		if back == nil {
			break
		}
		m.ll.Remove(back)
		delete(m.index, back.Value.(*memoEntry).key)
	}
	return vec, nil
}
