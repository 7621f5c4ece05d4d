package roargraph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/roargraph/codec"
	"github.com/hupe1980/roargraph/distance"
	"github.com/hupe1980/roargraph/internal/builder"
	"github.com/hupe1980/roargraph/internal/graph"
	"github.com/hupe1980/roargraph/internal/projection"
	"github.com/hupe1980/roargraph/internal/resource"
	"github.com/hupe1980/roargraph/internal/scheduler"
	"github.com/hupe1980/roargraph/internal/searcher"
	"github.com/hupe1980/roargraph/internal/vectorstore"
	"github.com/hupe1980/roargraph/model"
)

// State is the lifecycle state of an index.
type State int

const (
	// StateEmpty means the index holds no vectors.
	StateEmpty State = iota
	// StateBuilding means changes are pending compilation.
	StateBuilding
	// StateReady means the compiled graph reflects every change.
	StateReady
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Index is an approximate nearest neighbor index over vectors identified by
// caller-chosen ids of type K.
//
// Writers (Insert, Remove, Clear, ...) are exclusive. Searches run
// concurrently with each other and with graph compilation, which never
// blocks readers: a compiled graph is swapped in atomically.
type Index[K comparable] struct {
	dim    int
	metric Metric
	opts   options

	mu      sync.RWMutex // writers exclusive, searches shared
	buildMu sync.Mutex   // serializes full rebuilds

	controller *resource.Controller
	store      *vectorstore.Store[K]
	pipeline   *projection.Pipeline
	sketches   *projection.SketchStore
	graph      *graph.Graph
	builder    *builder.Builder
	sched      *scheduler.Scheduler
	ids        map[K]model.NodeID

	epoch          uint64       // bumped by every mutation; guarded by mu
	verifiedEpoch  uint64       // epoch of the last check of every node
	pending        atomic.Int64 // changes since the last compilation
	failedCompiles atomic.Int64
	unlinked       int
	repaired       int
	lastBuild      builder.Stats

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	rebuilding atomic.Bool
	closed     atomic.Bool
}

// New creates an empty index for dimension-dimensional vectors compared
// with metric.
func New[K comparable](dimension int, metric Metric, optFns ...Option) (*Index[K], error) {
	if dimension <= 0 {
		return nil, &ErrInvalidDimension{Dimension: dimension}
	}
	if !metric.Valid() {
		return nil, &ErrInvalidMetric{Metric: metric}
	}

	opts := applyOptions(optFns)

	p, err := projection.New(dimension, func(o *projection.Options) {
		o.NumLayers = opts.numProjectionLayers
		o.Seed = opts.randomSeed
	})
	if err != nil {
		return nil, err
	}

	return newIndex[K](dimension, metric, opts, newController(opts), p, nil, nil, nil)
}

func newController(opts options) *resource.Controller {
	return resource.NewController(resource.Config{
		MemoryLimitBytes: opts.memoryLimitBytes,
	})
}

// newIndex wires the components. store, sketches and g may be nil, in which
// case empty ones are created; otherwise they must account against
// controller.
func newIndex[K comparable](
	dim int,
	metric Metric,
	opts options,
	controller *resource.Controller,
	p *projection.Pipeline,
	store *vectorstore.Store[K],
	sketches *projection.SketchStore,
	g *graph.Graph,
) (*Index[K], error) {
	var err error
	if store == nil {
		store, err = vectorstore.New[K](dim, func(o *vectorstore.Options) {
			o.Metric = metric
			o.Quantized = opts.quantization
			o.Controller = controller
		})
		if err != nil {
			return nil, translateError(err)
		}
	}
	if sketches == nil {
		sketches = projection.NewSketchStore(p, controller)
	}

	b := builder.New(func(o *builder.Options) {
		opts.builderOptions(o)
		o.Controller = controller
	})
	if g == nil {
		g = b.NewGraph()
	}

	ids := make(map[K]model.NodeID, store.Len())
	for i := 0; i < store.Len(); i++ {
		node := model.NodeID(i) //nolint:gosec // < MaxRows
		ids[store.ID(node)] = node
	}
	if len(ids) != store.Len() {
		return nil, fmt.Errorf("%w: duplicate ids", ErrCorruptSnapshot)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Index[K]{
		dim:        dim,
		metric:     metric,
		opts:       opts,
		controller: controller,
		store:      store,
		pipeline:   p,
		sketches:   sketches,
		graph:      g,
		builder:    b,
		sched:      scheduler.New(opts.schedulerOptions),
		ids:        ids,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Dimension returns the vector dimension.
func (idx *Index[K]) Dimension() int { return idx.dim }

// Metric returns the distance metric.
func (idx *Index[K]) Metric() Metric { return idx.metric }

// Codec returns the codec used to serialize ids.
func (idx *Index[K]) Codec() codec.Codec { return idx.opts.codec }

// State returns the lifecycle state.
func (idx *Index[K]) State() State {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.stateLocked()
}

func (idx *Index[K]) stateLocked() State {
	switch {
	case idx.store.Len() == 0:
		return StateEmpty
	case idx.graph.Compiled() && idx.graph.Active() != nil:
		return StateReady
	default:
		return StateBuilding
	}
}

// prepare returns the vector as stored and ranked: a normalized copy for
// cosine, v itself otherwise.
func (idx *Index[K]) prepare(v []float32) []float32 {
	if idx.metric == distance.MetricCosine {
		out, _ := distance.NormalizeL2Copy(v)
		return out
	}
	return v
}

// Insert adds a vector under id.
//
// The vector is stored before it is linked into the graph: once Insert
// returns nil the vector is searchable, even if linking failed (the failure
// is logged and the next rebuild covers it).
func (idx *Index[K]) Insert(ctx context.Context, id K, vector []float32) error {
	start := time.Now()
	err := idx.insert(ctx, id, vector)
	idx.opts.metricsCollector.RecordInsert(time.Since(start), err)
	idx.opts.logger.LogInsert(ctx, id, err)
	return err
}

func (idx *Index[K]) insert(ctx context.Context, id K, vector []float32) error {
	if idx.closed.Load() {
		return ErrClosed
	}
	if len(vector) != idx.dim {
		return &ErrDimensionMismatch{Expected: idx.dim, Actual: len(vector)}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.ids[id]; ok {
		return ErrDuplicateID
	}

	node, err := idx.appendLocked(id, vector)
	if err != nil {
		return err
	}
	idx.linkLocked(ctx, id, node)
	idx.scheduleLocked(ctx)

	return nil
}

// appendLocked stores the vector in every component or in none.
func (idx *Index[K]) appendLocked(id K, vector []float32) (model.NodeID, error) {
	node, err := idx.store.Add(id, vector)
	if err != nil {
		return 0, translateError(err)
	}

	if err := idx.sketches.Append(idx.prepare(vector)); err != nil {
		_, _, _ = idx.store.SwapRemove(node)
		return 0, translateError(err)
	}

	if _, err := idx.graph.AddNode(); err != nil {
		idx.sketches.SwapRemove(node)
		_, _, _ = idx.store.SwapRemove(node)
		return 0, translateError(err)
	}

	idx.ids[id] = node
	idx.epoch++
	idx.pending.Add(1)

	return node, nil
}

func (idx *Index[K]) linkLocked(ctx context.Context, id K, node model.NodeID) {
	if err := idx.builder.Link(ctx, idx.graph, idx.store, idx.sketches, node); err != nil {
		idx.unlinked++
		idx.opts.logger.LogLinkFailure(ctx, id, err)
	}
}

// scheduleLocked asks the scheduler whether the graph should be compiled.
// It runs with the write lock held.
func (idx *Index[K]) scheduleLocked(ctx context.Context) {
	pending := int(idx.pending.Load())

	if !idx.opts.asyncRebuild {
		d := idx.sched.Evaluate(pending, idx.sampleLocked)
		if d.Rebuild {
			// Failures are logged and the next trigger or Finalize retries.
			// Compile failures also show in Stats().FailedCompiles.
			if err := idx.repairLocked(ctx, false); err == nil {
				_ = idx.compile(ctx, d.Reason.String())
			}
		}
		return
	}

	if pending < idx.sched.Options().MinPending {
		return
	}
	if !idx.rebuilding.CompareAndSwap(false, true) {
		return
	}
	if !idx.controller.TryAcquireBackground() {
		idx.rebuilding.Store(false)
		return
	}

	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		defer idx.rebuilding.Store(false)
		defer idx.controller.ReleaseBackground()
		idx.backgroundRebuild()
	}()
}

func (idx *Index[K]) backgroundRebuild() {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed.Load() {
		return
	}

	d := idx.sched.Evaluate(int(idx.pending.Load()), idx.sampleLocked)
	if d.Rebuild {
		_ = idx.compile(idx.ctx, d.Reason.String())
	}
}

// sampleLocked measures one diagnostic search against the current graph
// without compiling it first. The most recently stored vector is the query.
func (idx *Index[K]) sampleLocked() time.Duration {
	n := idx.store.Len()
	if n == 0 {
		return 0
	}

	s := searcher.Get()
	defer searcher.Put(s)

	query := idx.store.VectorInto(s.ScratchVector(idx.dim), model.NodeID(n-1)) //nolint:gosec // < MaxRows
	start := time.Now()
	_ = idx.searchLocked(s, query, min(10, n), idx.opts.efSearch, idx.graph.Active(), nil)
	return time.Since(start)
}

// compile finalizes the graph. It runs with either side of mu held.
func (idx *Index[K]) compile(ctx context.Context, reason string) error {
	if idx.graph.Compiled() {
		return nil
	}

	start := time.Now()
	err := idx.graph.Finalize(ctx)
	duration := time.Since(start)
	if err == nil {
		idx.pending.Store(0)
		idx.sched.Reset()
	} else {
		idx.failedCompiles.Add(1)
	}
	err = translateError(err)

	idx.opts.metricsCollector.RecordRebuild(false, duration, err)
	idx.opts.logger.LogRebuild(ctx, "compile", reason, idx.graph.Len(), duration, err)
	return err
}

// BatchResult reports the outcome of InsertBatch.
type BatchResult struct {
	// Errors holds one entry per item: nil on success.
	Errors []error
	// Inserted is the number of stored vectors.
	Inserted int
	// Failed is the number of rejected items.
	Failed int
	// Bulk is set when the graph was rebuilt instead of linked per item.
	Bulk bool
}

// InsertBatch adds vectors[i] under ids[i] for every i. Items are validated
// individually; a rejected item does not stop the batch.
//
// When the batch is large relative to the index (see WithBulkBuildRatio),
// the whole graph is rebuilt from training queries instead of linking every
// vector incrementally.
func (idx *Index[K]) InsertBatch(ctx context.Context, ids []K, vectors [][]float32) (BatchResult, error) {
	start := time.Now()
	res, err := idx.insertBatch(ctx, ids, vectors)
	idx.opts.metricsCollector.RecordBatchInsert(len(ids), res.Failed, time.Since(start))
	idx.opts.logger.LogBatchInsert(ctx, len(ids), res.Failed, res.Bulk)
	return res, err
}

func (idx *Index[K]) insertBatch(ctx context.Context, ids []K, vectors [][]float32) (BatchResult, error) {
	res := BatchResult{Errors: make([]error, len(ids))}
	if idx.closed.Load() {
		return res, ErrClosed
	}
	if len(ids) != len(vectors) {
		return res, fmt.Errorf("%w: %d ids, %d vectors", ErrBatchLengthMismatch, len(ids), len(vectors))
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	before := idx.store.Len()
	added := make([]model.NodeID, 0, len(ids))
	for i, id := range ids {
		var err error
		if len(vectors[i]) != idx.dim {
			err = &ErrDimensionMismatch{Expected: idx.dim, Actual: len(vectors[i])}
		} else if _, ok := idx.ids[id]; ok {
			err = ErrDuplicateID
		} else {
			var node model.NodeID
			if node, err = idx.appendLocked(id, vectors[i]); err == nil {
				added = append(added, node)
			}
		}
		if err != nil {
			res.Errors[i] = err
			res.Failed++
		}
	}
	res.Inserted = len(added)

	if len(added) == 0 {
		return res, nil
	}

	ratio := idx.opts.bulkBuildRatio
	if ratio > 0 && float64(len(added)) >= ratio*float64(before) {
		res.Bulk = true
		if err := idx.rebuildLocked(ctx, "bulk insert"); err != nil {
			idx.unlinked += len(added)
			return res, err
		}
		return res, nil
	}

	for _, node := range added {
		idx.linkLocked(ctx, idx.store.ID(node), node)
	}
	idx.scheduleLocked(ctx)

	return res, nil
}

// Upsert inserts the vector, replacing the one stored under id if any.
func (idx *Index[K]) Upsert(ctx context.Context, id K, vector []float32) error {
	start := time.Now()
	err := idx.upsert(ctx, id, vector)
	idx.opts.metricsCollector.RecordInsert(time.Since(start), err)
	idx.opts.logger.LogInsert(ctx, id, err)
	return err
}

func (idx *Index[K]) upsert(ctx context.Context, id K, vector []float32) error {
	if idx.closed.Load() {
		return ErrClosed
	}
	if len(vector) != idx.dim {
		return &ErrDimensionMismatch{Expected: idx.dim, Actual: len(vector)}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if node, ok := idx.ids[id]; ok {
		if err := idx.removeLocked(id, node); err != nil {
			return err
		}
	}

	node, err := idx.appendLocked(id, vector)
	if err != nil {
		return err
	}
	idx.linkLocked(ctx, id, node)
	idx.scheduleLocked(ctx)

	return nil
}

// Remove deletes the vector stored under id.
//
// The last node takes the removed position, so the compiled graph is
// invalidated and the next search compiles it again.
func (idx *Index[K]) Remove(ctx context.Context, id K) error {
	start := time.Now()
	err := idx.remove(ctx, id)
	idx.opts.metricsCollector.RecordRemove(time.Since(start), err)
	idx.opts.logger.LogRemove(ctx, id, err)
	return err
}

func (idx *Index[K]) remove(ctx context.Context, id K) error {
	if idx.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	node, ok := idx.ids[id]
	if !ok {
		return ErrIDNotFound
	}
	return idx.removeLocked(id, node)
}

// RemoveBatch deletes every id. It returns one error per id: nil on success.
func (idx *Index[K]) RemoveBatch(ctx context.Context, ids []K) []error {
	errs := make([]error, len(ids))
	if idx.closed.Load() {
		for i := range errs {
			errs[i] = ErrClosed
		}
		return errs
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i, id := range ids {
		start := time.Now()
		var err error
		if err = ctx.Err(); err == nil {
			if node, ok := idx.ids[id]; ok {
				err = idx.removeLocked(id, node)
			} else {
				err = ErrIDNotFound
			}
		}
		errs[i] = err
		idx.opts.metricsCollector.RecordRemove(time.Since(start), err)
		idx.opts.logger.LogRemove(ctx, id, err)
	}

	return errs
}

func (idx *Index[K]) removeLocked(id K, node model.NodeID) error {
	if err := idx.graph.SwapRemove(node); err != nil {
		return translateError(err)
	}
	_, renumbered, err := idx.store.SwapRemove(node)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInternalInconsistency, err)
	}
	idx.sketches.SwapRemove(node)

	delete(idx.ids, id)
	if renumbered {
		idx.ids[idx.store.ID(node)] = node
	}
	idx.epoch++
	idx.pending.Add(1)

	return nil
}

// Get returns a copy of the vector stored under id. Quantized vectors are
// dequantized; cosine vectors are returned normalized.
func (idx *Index[K]) Get(id K) ([]float32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	node, ok := idx.ids[id]
	if !ok {
		return nil, ErrIDNotFound
	}
	v, err := idx.store.Get(node)
	if err != nil {
		return nil, translateError(err)
	}
	return v, nil
}

// Contains reports whether a vector is stored under id.
func (idx *Index[K]) Contains(id K) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	_, ok := idx.ids[id]
	return ok
}

// Len returns the number of stored vectors.
func (idx *Index[K]) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.store.Len()
}

// IDs returns every id in storage order.
func (idx *Index[K]) IDs() []K {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]K, idx.store.Len())
	for i := range out {
		out[i] = idx.store.ID(model.NodeID(i)) //nolint:gosec // < MaxRows
	}
	return out
}

// IDsRange returns at most limit ids in storage order, skipping the first
// offset. A negative limit means no limit.
func (idx *Index[K]) IDsRange(offset, limit int) []K {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := idx.store.Len()
	offset = max(offset, 0)
	if offset >= n || limit == 0 {
		return []K{}
	}
	end := n
	if limit > 0 {
		end = min(n, offset+limit)
	}

	out := make([]K, 0, end-offset)
	for i := offset; i < end; i++ {
		out = append(out, idx.store.ID(model.NodeID(i))) //nolint:gosec // < MaxRows
	}
	return out
}

// Clear removes every vector. Configuration and projections are kept.
func (idx *Index[K]) Clear() error {
	if idx.closed.Load() {
		return ErrClosed
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.graph.Reset()
	idx.sketches.Reset()
	idx.store.Reset()
	idx.ids = make(map[K]model.NodeID)
	idx.epoch++
	idx.pending.Store(0)
	idx.unlinked = 0
	idx.repaired = 0
	idx.failedCompiles.Store(0)
	idx.lastBuild = builder.Stats{}
	idx.sched.Reset()
	idx.sched.ResetBaseline()

	return nil
}

// Finalize compiles pending graph changes. It is a no-op when nothing
// changed.
//
// If the index changed since the last Finalize, every vector is first checked
// under the write lock: a search for it must find it, otherwise it gets an
// edge from the nearest node that search reached. Compilation then runs next
// to searches, which keep using the previous compiled graph.
func (idx *Index[K]) Finalize(ctx context.Context) error {
	if idx.closed.Load() {
		return ErrClosed
	}

	idx.mu.Lock()
	err := idx.repairLocked(ctx, true)
	idx.mu.Unlock()
	if err != nil {
		return err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.compile(ctx, "explicit")
}

// repairLocked runs the reachability repair over the suspect nodes, or over
// every node when all is set and the index changed since the last such run.
// It runs with the write lock held.
func (idx *Index[K]) repairLocked(ctx context.Context, all bool) error {
	if all && idx.epoch != idx.verifiedEpoch {
		idx.graph.MarkAllSuspect()
	}
	checked := idx.graph.Suspects()
	if checked == 0 {
		return nil
	}

	start := time.Now()
	forced, err := idx.builder.Repair(ctx, idx.graph, idx.store, idx.sketches)
	idx.repaired += forced
	if forced > 0 {
		idx.epoch++
	}
	if err == nil && all {
		idx.verifiedEpoch = idx.epoch
	}
	err = translateError(err)
	idx.opts.logger.LogRepair(ctx, checked, forced, time.Since(start), err)
	return err
}

// Optimize rebuilds the whole graph from training queries and compiles it.
//
// The build runs next to searches and is swapped in at the end. If a writer
// changed the index meanwhile, the build is repeated under the write lock.
func (idx *Index[K]) Optimize(ctx context.Context) error {
	if idx.closed.Load() {
		return ErrClosed
	}

	idx.buildMu.Lock()
	defer idx.buildMu.Unlock()

	start := time.Now()

	idx.mu.RLock()
	epoch := idx.epoch
	g, stats, err := idx.buildGraph(ctx)
	idx.mu.RUnlock()
	if err != nil {
		idx.recordRebuild(ctx, "optimize", time.Since(start), err)
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.epoch != epoch {
		g.Reset()
		return idx.rebuildLocked(ctx, "optimize")
	}

	idx.swapGraphLocked(g, stats)
	idx.recordRebuild(ctx, "optimize", time.Since(start), nil)
	return nil
}

// rebuildLocked builds and compiles a new graph with the write lock held.
func (idx *Index[K]) rebuildLocked(ctx context.Context, reason string) error {
	start := time.Now()
	g, stats, err := idx.buildGraph(ctx)
	if err == nil {
		idx.swapGraphLocked(g, stats)
	}
	idx.recordRebuild(ctx, reason, time.Since(start), err)
	return err
}

func (idx *Index[K]) buildGraph(ctx context.Context) (*graph.Graph, builder.Stats, error) {
	g, stats, err := idx.builder.Build(ctx, idx.store, idx.sketches)
	if err != nil {
		return nil, stats, translateError(err)
	}
	if err := g.Finalize(ctx); err != nil {
		g.Reset()
		return nil, stats, translateError(err)
	}
	return g, stats, nil
}

func (idx *Index[K]) swapGraphLocked(g *graph.Graph, stats builder.Stats) {
	old := idx.graph
	idx.graph = g
	old.Reset()

	idx.lastBuild = stats
	idx.unlinked = 0
	idx.repaired = stats.Repaired
	idx.verifiedEpoch = idx.epoch
	idx.pending.Store(0)
	idx.sched.Reset()
	idx.sched.ResetBaseline()
}

func (idx *Index[K]) recordRebuild(ctx context.Context, reason string, d time.Duration, err error) {
	idx.opts.metricsCollector.RecordRebuild(true, d, err)
	idx.opts.logger.LogRebuild(ctx, "full", reason, idx.store.Len(), d, err)
}

// MemoryFootprint returns the bytes held by vectors, sketches and graph.
func (idx *Index[K]) MemoryFootprint() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.store.MemoryFootprint() +
		idx.sketches.MemoryFootprint() +
		idx.graph.MemoryFootprint()
}

// Stats describes the index.
type Stats struct {
	Dimension int
	Metric    Metric
	Quantized bool
	State     State

	// Vectors is the number of stored vectors.
	Vectors int
	// Edges is the number of graph edges.
	Edges int
	// MaxDegree is the configured out-degree cap.
	MaxDegree int
	// AvgDegree is Edges / Vectors.
	AvgDegree float64

	// Pending is the number of changes since the last compilation.
	Pending int
	// Generation is the number of compilations of the current graph.
	Generation uint64
	// Unlinked is the number of vectors stored but not linked since the
	// last full rebuild.
	Unlinked int
	// Repaired is the number of edges forced to keep every vector
	// reachable since the last full rebuild, that rebuild's included.
	Repaired int
	// FailedCompiles is the number of failed graph compilations, explicit
	// or triggered, since the index was created or cleared.
	FailedCompiles int64

	// Degraded is set when the last full rebuild had no training queries.
	Degraded bool
	// TrainingQueries is the number of training queries of the last full
	// rebuild.
	TrainingQueries int

	// ProjectionLayers and ProjectionDim describe the prefilter.
	ProjectionLayers int
	ProjectionDim    int

	// Baseline is the search latency baseline; zero while unset.
	Baseline time.Duration

	// MemoryBytes is MemoryFootprint.
	MemoryBytes int64
	// MemoryLimitBytes is the configured limit; zero means unlimited.
	MemoryLimitBytes int64
}

// Stats returns a snapshot of index statistics.
func (idx *Index[K]) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := idx.store.Len()
	st := Stats{
		Dimension:        idx.dim,
		Metric:           idx.metric,
		Quantized:        idx.store.Quantized(),
		State:            idx.stateLocked(),
		Vectors:          n,
		Edges:            idx.graph.NumEdges(),
		MaxDegree:        idx.graph.MaxDegree(),
		Pending:          int(idx.pending.Load()),
		Generation:       idx.graph.Generation(),
		Unlinked:         idx.unlinked,
		Repaired:         idx.repaired,
		FailedCompiles:   idx.failedCompiles.Load(),
		Degraded:         idx.lastBuild.Degraded,
		TrainingQueries:  idx.lastBuild.TrainingQueries,
		ProjectionLayers: idx.pipeline.NumLayers(),
		ProjectionDim:    idx.pipeline.OutputDim(),
		MemoryBytes:      idx.store.MemoryFootprint() + idx.sketches.MemoryFootprint() + idx.graph.MemoryFootprint(),
		MemoryLimitBytes: idx.controller.MemoryLimit(),
	}
	if n > 0 {
		st.AvgDegree = float64(st.Edges) / float64(n)
	}
	if b, ok := idx.sched.Baseline(); ok {
		st.Baseline = b
	}
	return st
}

// Close waits for background rebuilds and releases every buffer.
// Further calls return ErrClosed.
func (idx *Index[K]) Close() error {
	if idx == nil {
		return nil
	}
	if !idx.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	idx.cancel()
	idx.wg.Wait()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.graph.Reset()
	idx.sketches.Reset()
	idx.store.Release()
	idx.ids = nil

	return nil
}
