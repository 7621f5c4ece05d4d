// Package matryoshka searches Matryoshka embeddings: a roargraph index over
// the leading PrefixDim components finds candidates, which are reranked
// exactly on the full vectors.
package matryoshka

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/roargraph"
	"github.com/hupe1980/roargraph/distance"
)

// ErrInvalidPrefix is returned when the prefix dimension is not in [1, dim].
var ErrInvalidPrefix = errors.New("matryoshka: prefix dimension must be in [1, dimension]")

// Options configures an Index.
type Options struct {
	// Oversample is the number of coarse candidates per requested result.
	// Default: 4.
	Oversample int

	// IndexOptions configure the coarse roargraph index.
	IndexOptions []roargraph.Option
}

// DefaultOptions contains the default options.
var DefaultOptions = Options{
	Oversample: 4,
}

type entry struct {
	vector []float32
	seq    uint64
}

// Index wraps a coarse roargraph index with full-dimension rerank.
type Index[K comparable] struct {
	dim    int
	prefix int
	metric roargraph.Metric
	score  distance.Func
	opts   Options

	coarse *roargraph.Index[K]

	mu   sync.RWMutex
	full map[K]entry
	seq  uint64
}

// New creates an index for dim-dimensional vectors whose first prefixDim
// components form the coarse embedding.
func New[K comparable](dim, prefixDim int, metric roargraph.Metric, optFns ...func(o *Options)) (*Index[K], error) {
	if prefixDim < 1 || prefixDim > dim {
		return nil, ErrInvalidPrefix
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Oversample < 1 {
		opts.Oversample = 1
	}

	score, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	coarse, err := roargraph.New[K](prefixDim, metric, opts.IndexOptions...)
	if err != nil {
		return nil, err
	}

	return &Index[K]{
		dim:    dim,
		prefix: prefixDim,
		metric: metric,
		score:  score,
		opts:   opts,
		coarse: coarse,
		full:   make(map[K]entry),
	}, nil
}

// Dimension returns the full dimension.
func (m *Index[K]) Dimension() int { return m.dim }

// PrefixDimension returns the coarse dimension.
func (m *Index[K]) PrefixDimension() int { return m.prefix }

// Coarse returns the underlying prefix index.
func (m *Index[K]) Coarse() *roargraph.Index[K] { return m.coarse }

func (m *Index[K]) prepare(v []float32) []float32 {
	if m.metric == roargraph.Cosine {
		n, _ := distance.NormalizeL2Copy(v)
		return n
	}
	return slices.Clone(v)
}

// Insert adds a full-dimension vector.
func (m *Index[K]) Insert(ctx context.Context, id K, vector []float32) error {
	if len(vector) != m.dim {
		return &roargraph.ErrDimensionMismatch{Expected: m.dim, Actual: len(vector)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.full[id]; ok {
		return roargraph.ErrDuplicateID
	}
	if err := m.coarse.Insert(ctx, id, vector[:m.prefix]); err != nil {
		return err
	}
	m.seq++
	m.full[id] = entry{vector: m.prepare(vector), seq: m.seq}
	return nil
}

// Remove deletes a vector.
func (m *Index[K]) Remove(ctx context.Context, id K) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.coarse.Remove(ctx, id); err != nil {
		return err
	}
	delete(m.full, id)
	return nil
}

// Get returns the stored full vector. Cosine vectors are normalized.
func (m *Index[K]) Get(id K) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.full[id]
	if !ok {
		return nil, roargraph.ErrIDNotFound
	}
	return slices.Clone(e.vector), nil
}

// Len returns the number of vectors.
func (m *Index[K]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.full)
}

// Finalize compiles the coarse graph.
func (m *Index[K]) Finalize(ctx context.Context) error {
	return m.coarse.Finalize(ctx)
}

// Optimize rebuilds the coarse graph.
func (m *Index[K]) Optimize(ctx context.Context) error {
	return m.coarse.Optimize(ctx)
}

// Search returns the k nearest vectors by full-dimension distance among the
// k*Oversample nearest by prefix distance.
func (m *Index[K]) Search(ctx context.Context, query []float32, k int) ([]roargraph.SearchResult[K], error) {
	if len(query) != m.dim {
		return nil, &roargraph.ErrDimensionMismatch{Expected: m.dim, Actual: len(query)}
	}
	if k <= 0 {
		return nil, roargraph.ErrInvalidK
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	pool := k * m.opts.Oversample
	cands, err := m.coarse.Search(ctx, query[:m.prefix], pool)
	if err != nil {
		return nil, err
	}

	q := m.prepare(query)

	type scored struct {
		id    K
		score float32
		seq   uint64
	}
	ranked := make([]scored, 0, len(cands))
	for _, c := range cands {
		e, ok := m.full[c.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %v missing from full vectors", roargraph.ErrInternalInconsistency, c.ID)
		}
		ranked = append(ranked, scored{id: c.ID, score: m.score(q, e.vector), seq: e.seq})
	}

	slices.SortFunc(ranked, func(a, b scored) int {
		if a.score != b.score {
			if a.score < b.score {
				return -1
			}
			return 1
		}
		if a.seq < b.seq {
			return -1
		}
		if a.seq > b.seq {
			return 1
		}
		return 0
	})

	results := make([]roargraph.SearchResult[K], 0, min(k, len(ranked)))
	for _, r := range ranked[:min(k, len(ranked))] {
		results = append(results, roargraph.SearchResult[K]{
			ID:       r.id,
			Distance: distance.Report(m.metric, r.score),
		})
	}
	return results, nil
}

// Close releases the coarse index.
func (m *Index[K]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.full = nil
	return m.coarse.Close()
}
