package roargraph

import (
	"context"
	"iter"
	"time"

	"github.com/hupe1980/roargraph/distance"
	"github.com/hupe1980/roargraph/internal/graph"
	"github.com/hupe1980/roargraph/internal/searcher"
	"github.com/hupe1980/roargraph/model"
)

// SearchResult is one match of a search.
type SearchResult[K comparable] struct {
	// ID is the id the vector was inserted under.
	ID K
	// Distance is the Euclidean distance (L2) or 1 - cosine similarity.
	Distance float32
}

// FilterFunc reports whether a vector may appear in the results.
type FilterFunc[K comparable] func(id K) bool

// SearchOptions contains options for Search.
type SearchOptions[K comparable] struct {
	// EF is the beam width of the graph traversal. It cannot be lower than k.
	// Default: 0 (max(k, index EFSearch)).
	EF int

	// Filter drops results. Filtered vectors are still traversed, so fewer
	// than k results may be returned.
	Filter FilterFunc[K]
}

// Search returns the k stored vectors closest to query, nearest first.
// Ties are broken by insertion order. An empty index yields no results.
//
// Search serves from the compiled graph and scans vectors inserted since
// its compilation exactly. When more than the staleness tolerance is
// uncompiled, or vectors were removed, it compiles the graph first.
func (idx *Index[K]) Search(ctx context.Context, query []float32, k int, optFns ...func(o *SearchOptions[K])) ([]SearchResult[K], error) {
	start := time.Now()
	results, served, err := idx.search(ctx, query, k, optFns)
	if err == nil && served > 0 {
		idx.sched.Observe(served)
	}
	idx.opts.metricsCollector.RecordSearch(k, time.Since(start), err)
	idx.opts.logger.LogSearch(ctx, k, len(results), err)
	return results, err
}

// search returns the results and the latency of the traversal alone.
func (idx *Index[K]) search(ctx context.Context, query []float32, k int, optFns []func(o *SearchOptions[K])) ([]SearchResult[K], time.Duration, error) {
	if idx.closed.Load() {
		return nil, 0, ErrClosed
	}
	if k <= 0 {
		return nil, 0, ErrInvalidK
	}
	if len(query) != idx.dim {
		return nil, 0, &ErrDimensionMismatch{Expected: idx.dim, Actual: len(query)}
	}

	opts := SearchOptions[K]{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.EF > 0 && opts.EF < k {
		return nil, 0, ErrInvalidEFValue
	}
	ef := max(k, idx.opts.efSearch)
	if opts.EF > 0 {
		ef = opts.EF
	}

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := idx.store.Len()
	if n == 0 {
		return []SearchResult[K]{}, 0, nil
	}

	active := idx.graph.Active()
	if active == nil || n-active.Len() > idx.opts.stalenessTolerance {
		if err := idx.compile(ctx, "stale"); err != nil {
			return nil, 0, err
		}
		active = idx.graph.Active()
	}

	q := idx.prepare(query)

	s := searcher.Get()
	defer searcher.Put(s)

	start := time.Now()
	cands := idx.searchLocked(s, q, k, ef, active, opts.Filter)
	served := time.Since(start)

	return idx.toResults(cands), served, nil
}

// BruteSearch returns the exact k nearest vectors by scanning every stored
// vector. It is meant for recall measurements and small indexes.
func (idx *Index[K]) BruteSearch(ctx context.Context, query []float32, k int, filter FilterFunc[K]) ([]SearchResult[K], error) {
	if idx.closed.Load() {
		return nil, ErrClosed
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != idx.dim {
		return nil, &ErrDimensionMismatch{Expected: idx.dim, Actual: len(query)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s := searcher.Get()
	defer searcher.Put(s)

	return idx.toResults(idx.searchLocked(s, idx.prepare(query), k, 0, nil, filter)), nil
}

// searchLocked traverses active (which may be nil) from the prefiltered seed
// pool, scans the uncompiled tail exactly and returns the best k candidates
// sorted. query must be prepared. The result aliases s.
func (idx *Index[K]) searchLocked(s *searcher.Searcher, query []float32, k, ef int, active *graph.CSR, filter FilterFunc[K]) []model.Candidate {
	n := idx.store.Len()
	score := func(node model.NodeID) float32 {
		return idx.store.Score(node, query)
	}

	compiled := 0
	if active != nil && ef > 0 {
		compiled = min(active.Len(), n)
		graph.Search(s, active, idx.seeds(s, active, query), score, ef)
		for _, it := range s.Results.Items() {
			idx.collect(s, it.Node, it.Distance, k, filter)
		}
	}

	for i := compiled; i < n; i++ {
		node := model.NodeID(i) //nolint:gosec // < MaxRows
		idx.collect(s, node, score(node), k, filter)
	}

	s.Candidates = s.Heap.AppendSorted(s.Candidates[:0])
	return s.Candidates
}

// seeds picks the traversal entry points: the seed pool of the compiled
// graph, narrowed to SeedCount by the projection cascade.
func (idx *Index[K]) seeds(s *searcher.Searcher, active *graph.CSR, query []float32) []model.NodeID {
	pool := active.Seeds
	if !idx.pipeline.Enabled() || len(pool) <= idx.opts.seedCount {
		return pool
	}
	s.ScratchIDs = append(s.ScratchIDs[:0], pool...)
	return idx.sketches.Filter(idx.pipeline.Project(query), s.ScratchIDs, idx.opts.seedCount)
}

func (idx *Index[K]) collect(s *searcher.Searcher, node model.NodeID, score float32, k int, filter FilterFunc[K]) {
	if filter != nil && !filter(idx.store.ID(node)) {
		return
	}
	s.Heap.PushBounded(model.Candidate{Node: node, Score: score, Seq: idx.store.Seq(node)}, k)
}

func (idx *Index[K]) toResults(cands []model.Candidate) []SearchResult[K] {
	results := make([]SearchResult[K], len(cands))
	for i, c := range cands {
		results[i] = SearchResult[K]{
			ID:       idx.store.ID(c.Node),
			Distance: distance.Report(idx.metric, c.Score),
		}
	}
	return results
}

// Query creates a new fluent search builder for the given query vector.
//
// Example:
//
//	results, err := idx.Query(query).
//	    KNN(10).
//	    EF(100).
//	    Execute(ctx)
//
//	// Or with streaming:
//	for result, err := range idx.Query(query).KNN(100).Stream(ctx) {
//	    if err != nil { break }
//	    if result.Distance > threshold { break }
//	    process(result)
//	}
func (idx *Index[K]) Query(query []float32) *SearchBuilder[K] {
	return &SearchBuilder[K]{
		idx:   idx,
		query: query,
		k:     10, // Default k
	}
}

// SearchBuilder is a fluent builder for constructing search queries.
type SearchBuilder[K comparable] struct {
	idx    *Index[K]
	query  []float32
	k      int
	ef     int
	filter FilterFunc[K]
}

// KNN sets the number of nearest neighbors to return.
func (sb *SearchBuilder[K]) KNN(k int) *SearchBuilder[K] {
	sb.k = k
	return sb
}

// EF sets the traversal beam width.
// Higher values improve recall but slow down search.
// Must be >= k.
func (sb *SearchBuilder[K]) EF(ef int) *SearchBuilder[K] {
	sb.ef = ef
	return sb
}

// Filter sets a filter function for search results.
// Only vectors where filter(id) returns true are returned.
func (sb *SearchBuilder[K]) Filter(fn FilterFunc[K]) *SearchBuilder[K] {
	sb.filter = fn
	return sb
}

// Execute runs the search and returns the results.
func (sb *SearchBuilder[K]) Execute(ctx context.Context) ([]SearchResult[K], error) {
	return sb.idx.Search(ctx, sb.query, sb.k, func(o *SearchOptions[K]) {
		o.EF = sb.ef
		o.Filter = sb.filter
	})
}

// MustExecute runs the search, panicking on error.
// Use this only in tests or when you're certain the query is valid.
func (sb *SearchBuilder[K]) MustExecute(ctx context.Context) []SearchResult[K] {
	results, err := sb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return results
}

// Stream returns an iterator over search results.
// Results are yielded in order from nearest to farthest.
// The iterator supports early termination by breaking from the loop.
func (sb *SearchBuilder[K]) Stream(ctx context.Context) iter.Seq2[SearchResult[K], error] {
	return func(yield func(SearchResult[K], error) bool) {
		results, err := sb.Execute(ctx)
		if err != nil {
			yield(SearchResult[K]{}, err)
			return
		}
		for _, r := range results {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// First returns only the nearest result, or ErrIDNotFound on an empty
// index.
func (sb *SearchBuilder[K]) First(ctx context.Context) (SearchResult[K], error) {
	sb.k = 1
	results, err := sb.Execute(ctx)
	if err != nil {
		return SearchResult[K]{}, err
	}
	if len(results) == 0 {
		return SearchResult[K]{}, ErrIDNotFound
	}
	return results[0], nil
}
