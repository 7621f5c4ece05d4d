package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/roargraph/internal/mem"
	"github.com/hupe1980/roargraph/internal/resource"
	"github.com/hupe1980/roargraph/model"
)

var (
	// ErrInternalInconsistency is returned when compiled structures violate
	// their invariants.
	ErrInternalInconsistency = errors.New("graph: internal inconsistency")
	// ErrCapacityExceeded is returned when a buffer cannot grow.
	ErrCapacityExceeded = errors.New("graph: capacity exceeded")
	// ErrNodeOutOfRange is returned for a node past the end of the graph.
	ErrNodeOutOfRange = errors.New("graph: node out of range")
	// ErrCorrupt is returned when encoded graph data is inconsistent.
	ErrCorrupt = errors.New("graph: corrupt data")
)

// cancelCheckInterval is the number of rows compiled between context checks.
const cancelCheckInterval = 1024

// Options configures a Graph.
type Options struct {
	// MaxDegree caps the out-degree of every node.
	MaxDegree int

	// SeedPoolSize is the number of nodes kept as search entry candidates.
	SeedPoolSize int

	// Controller accounts list and CSR buffers. Optional.
	Controller *resource.Controller
}

// DefaultOptions contains the default configuration for a Graph.
var DefaultOptions = Options{
	MaxDegree:    32,
	SeedPoolSize: 64,
}

// Graph owns the adjacency lists and the active CSR.
//
// Mutations (AddNode, Admit, SwapRemove, Reset) require external exclusive
// access. Finalize may run concurrently with searches reading Active; two
// Finalize calls serialize on an internal build mutex.
type Graph struct {
	opts  Options
	lists *Lists

	buildMu sync.Mutex // serializes Finalize

	mu         sync.Mutex // guards state and generation
	state      State
	generation uint64

	active    atomic.Pointer[CSR]
	csrBudget *resource.Budget // owned by Finalize under buildMu

	// suspects are nodes added, or that lost an incoming edge, since the
	// last reachability repair. Guarded like the lists.
	suspects *roaring.Bitmap
}

// New creates an empty graph.
func New(optFns ...func(o *Options)) *Graph {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxDegree <= 0 {
		opts.MaxDegree = DefaultOptions.MaxDegree
	}
	if opts.SeedPoolSize <= 0 {
		opts.SeedPoolSize = DefaultOptions.SeedPoolSize
	}

	return &Graph{
		opts:      opts,
		lists:     NewLists(opts.MaxDegree, opts.Controller),
		state:     Building{Dirty: roaring.New()},
		csrBudget: resource.NewBudget(opts.Controller),
		suspects:  roaring.New(),
	}
}

// MaxDegree returns the per-node edge cap.
func (g *Graph) MaxDegree() int { return g.opts.MaxDegree }

// Lists returns the adjacency lists.
func (g *Graph) Lists() *Lists { return g.lists }

// Len returns the number of nodes.
func (g *Graph) Len() int { return g.lists.Len() }

// NumEdges returns the number of edges in the lists.
func (g *Graph) NumEdges() int { return g.lists.NumEdges() }

// Active returns the CSR searches may serve from, or nil when there is none
// or nodes were renumbered since it was compiled. Nodes past its Len are the
// uncompiled tail.
func (g *Graph) Active() *CSR { return g.active.Load() }

// State returns the current compilation state. The returned value must be
// treated as read-only.
func (g *Graph) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Compiled reports whether the active CSR reflects the lists exactly.
func (g *Graph) Compiled() bool {
	_, ok := g.State().(Compiled)
	return ok
}

// Pending returns the number of rows changed since the last compilation.
func (g *Graph) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.state.(Building); ok {
		return int(b.Dirty.GetCardinality())
	}
	return 0
}

// Generation returns the number of completed compilations.
func (g *Graph) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}

func (g *Graph) markDirty(nodes ...model.NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.state.(Building)
	if !ok {
		b = Building{Dirty: roaring.New()}
	}
	for _, n := range nodes {
		b.Dirty.Add(uint32(n))
	}
	g.state = b
}

// AddNode appends an isolated node.
func (g *Graph) AddNode() (model.NodeID, error) {
	n, err := g.lists.AddNode()
	if err != nil {
		return n, err
	}
	g.markDirty(n)
	g.suspects.Add(uint32(n))
	return n, nil
}

// Admit offers the edge from -> to under the admission rule of Lists.
func (g *Graph) Admit(from, to model.NodeID, dist float32) (bool, error) {
	return g.admit(from, to, dist, false)
}

// Force adds the edge from -> to under the rule of Lists.Force.
func (g *Graph) Force(from, to model.NodeID, dist float32) (bool, error) {
	return g.admit(from, to, dist, true)
}

func (g *Graph) admit(from, to model.NodeID, dist float32, force bool) (bool, error) {
	changed, displaced, err := g.lists.admit(from, to, dist, force)
	if err != nil || !changed {
		return changed, err
	}
	if displaced != model.InvalidNode {
		g.suspects.Add(uint32(displaced))
	}
	g.markDirty(from)
	return true, nil
}

// Suspects returns the number of nodes awaiting a reachability check.
func (g *Graph) Suspects() int { return int(g.suspects.GetCardinality()) }

// DrainSuspects returns the nodes awaiting a reachability check in
// ascending order and forgets them.
func (g *Graph) DrainSuspects() []model.NodeID {
	out := make([]model.NodeID, 0, g.suspects.GetCardinality())
	it := g.suspects.Iterator()
	for it.HasNext() {
		out = append(out, model.NodeID(it.Next()))
	}
	g.suspects.Clear()
	return out
}

// MarkAllSuspect queues every node for a reachability check.
func (g *Graph) MarkAllSuspect() {
	g.suspects.AddRange(0, uint64(g.lists.Len()))
}

// MarkSuspect queues nodes for a reachability check.
func (g *Graph) MarkSuspect(nodes ...model.NodeID) {
	for _, n := range nodes {
		if int(n) < g.lists.Len() {
			g.suspects.Add(uint32(n))
		}
	}
}

// SwapRemove deletes node n and moves the last node into its place.
// The active CSR is withdrawn: its numbering no longer matches.
func (g *Graph) SwapRemove(n model.NodeID) error {
	if int(n) >= g.lists.Len() {
		return fmt.Errorf("%w: %d", ErrNodeOutOfRange, n)
	}
	last := model.NodeID(g.lists.Len() - 1) //nolint:gosec // bounded by MaxRows
	orphaned := g.lists.Neighbors(n, nil)
	movedSuspect := g.suspects.Contains(uint32(last))

	changed, err := g.lists.SwapRemove(n)
	if err != nil {
		return err
	}

	// The targets of the removed row lost an incoming edge.
	g.suspects.Remove(uint32(n))
	g.suspects.Remove(uint32(last))
	if movedSuspect && n != last {
		g.suspects.Add(uint32(n))
	}
	for _, t := range orphaned {
		if t == last {
			t = n
		}
		g.suspects.Add(uint32(t))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	dirty := roaring.New()
	if b, ok := g.state.(Building); ok {
		dirty = b.Dirty
	}
	// Rows past the new end no longer exist.
	dirty.RemoveRange(uint64(g.lists.Len()), uint64(mem.MaxRows)+1)
	for _, c := range changed {
		dirty.Add(uint32(c))
	}
	g.state = Building{Dirty: dirty, Invalidated: true}
	if old := g.active.Swap(nil); old != nil {
		g.csrBudget.Release(old.MemoryFootprint())
	}

	return nil
}

// Reset drops every node and edge.
func (g *Graph) Reset() {
	g.buildMu.Lock()
	defer g.buildMu.Unlock()

	g.lists.Reset()
	g.suspects.Clear()
	g.csrBudget.ReleaseAll()
	g.active.Store(nil)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Building{Dirty: roaring.New(), Invalidated: true}
}

// MemoryFootprint returns the bytes held by the lists and the active CSR.
func (g *Graph) MemoryFootprint() int64 {
	total := g.lists.MemoryFootprint() + int64(cap(g.lists.rows))*24
	if c := g.active.Load(); c != nil {
		total += c.MemoryFootprint()
	}
	return total
}

// Finalize compiles the lists into a fresh CSR and makes it active.
//
// It is a no-op in the Compiled state, so consecutive calls yield the same
// CSR. Rows that did not change since the previous compilation are copied
// from it; dirty rows are sorted anew. A canceled context leaves the previous
// state untouched.
func (g *Graph) Finalize(ctx context.Context) error {
	g.buildMu.Lock()
	defer g.buildMu.Unlock()

	g.mu.Lock()
	var (
		dirty       *roaring.Bitmap
		invalidated bool
	)
	switch s := g.state.(type) {
	case Compiled:
		g.mu.Unlock()
		return nil
	case Building:
		dirty = s.Dirty.Clone()
		invalidated = s.Invalidated
	}
	generation := g.generation + 1
	g.mu.Unlock()

	prev := g.active.Load()
	if invalidated {
		prev = nil
	}

	csr, err := g.compile(ctx, prev, dirty, generation)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if old := g.active.Swap(csr); old != nil {
		g.csrBudget.Release(old.MemoryFootprint())
	}

	g.generation = generation
	g.state = Compiled{CSR: csr}

	return nil
}

func (g *Graph) compile(ctx context.Context, prev *CSR, dirty *roaring.Bitmap, generation uint64) (*CSR, error) {
	n := g.lists.Len()
	numEdges := g.lists.NumEdges()

	var prevOffsets, prevEdges int
	if prev != nil {
		prevOffsets, prevEdges = cap(prev.RowOffsets), cap(prev.EdgeIndices)
	}
	offsetCap, err := mem.NextCapacity(prevOffsets, n+1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
	}
	edgeCap, err := mem.NextCapacity(prevEdges, numEdges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
	}
	seeds := g.seedPool(n)

	reserved := int64(offsetCap)*4 + int64(edgeCap)*4 + int64(len(seeds))*4
	if err := g.csrBudget.Reserve(reserved); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
	}
	ok := false
	defer func() {
		if !ok {
			g.csrBudget.Release(reserved)
		}
	}()

	offsets := make([]uint32, n+1, offsetCap)
	edges := make([]uint32, 0, edgeCap)

	for node := 0; node < n; node++ {
		if node%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row := g.lists.Edges(model.NodeID(node))
		if len(edges)+len(row) > cap(edges) {
			return nil, fmt.Errorf("%w: node %d overflows edge capacity %d", ErrInternalInconsistency, node, cap(edges))
		}

		start := len(edges)
		if prev != nil && node < prev.Nodes && !dirty.Contains(uint32(node)) { //nolint:gosec // node < MaxRows
			clean := prev.Row(model.NodeID(node))
			if len(clean) != len(row) {
				return nil, fmt.Errorf("%w: clean row %d has %d edges, lists %d", ErrInternalInconsistency, node, len(clean), len(row))
			}
			edges = append(edges, clean...)
		} else {
			for _, e := range row {
				edges = append(edges, uint32(e.To))
			}
			slices.Sort(edges[start:])
		}
		offsets[node+1] = uint32(len(edges)) //nolint:gosec // <= numEdges
	}

	csr := &CSR{
		RowOffsets:  offsets,
		EdgeIndices: edges,
		Seeds:       seeds,
		Nodes:       n,
		Generation:  generation,
	}
	if err := csr.Validate(g.opts.MaxDegree); err != nil {
		return nil, err
	}

	ok = true
	return csr, nil
}

// seedPool picks up to SeedPoolSize nodes spread evenly over index order.
func (g *Graph) seedPool(n int) []model.NodeID {
	size := min(n, g.opts.SeedPoolSize)
	seeds := make([]model.NodeID, size)
	for i := range seeds {
		seeds[i] = model.NodeID(i * n / size) //nolint:gosec // < n
	}
	return seeds
}

// CompileSeeds returns the seed pool the next compilation publishes.
func (g *Graph) CompileSeeds() []model.NodeID {
	return g.seedPool(g.lists.Len())
}

// SeedPool returns the entry candidates for a traversal over the lists:
// the active CSR's pool when there is one, a fresh spread otherwise.
func (g *Graph) SeedPool() []model.NodeID {
	if c := g.active.Load(); c != nil && len(c.Seeds) > 0 {
		return c.Seeds
	}
	return g.seedPool(g.lists.Len())
}
