package graph

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/roargraph/internal/mem"
	"github.com/hupe1980/roargraph/model"
	"github.com/hupe1980/roargraph/persistence"
)

// Encode writes the adjacency lists and, when compiled, the active CSR.
func (g *Graph) Encode(w *persistence.Writer) error {
	if err := w.WriteSection(persistence.SectionGraph); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(g.opts.MaxDegree)); err != nil { //nolint:gosec // positive int
		return err
	}
	n := g.lists.Len()
	if err := w.WriteUint64(uint64(n)); err != nil { //nolint:gosec // non-negative
		return err
	}

	degrees := make([]uint32, n)
	targets := make([]uint32, 0, g.lists.NumEdges())
	dists := make([]float32, 0, g.lists.NumEdges())
	for i := range degrees {
		row := g.lists.Edges(model.NodeID(i)) //nolint:gosec // < MaxRows
		degrees[i] = uint32(len(row))         //nolint:gosec // <= MaxDegree
		for _, e := range row {
			targets = append(targets, uint32(e.To))
			dists = append(dists, e.Dist)
		}
	}
	if err := w.WriteUint32Slice(degrees); err != nil {
		return err
	}
	if err := w.WriteUint64(uint64(len(targets))); err != nil {
		return err
	}
	if err := w.WriteUint32Slice(targets); err != nil {
		return err
	}
	if err := w.WriteFloat32Slice(dists); err != nil {
		return err
	}

	if err := w.WriteSection(persistence.SectionCSR); err != nil {
		return err
	}
	var csr *CSR
	if c, ok := g.State().(Compiled); ok {
		csr = c.CSR
	}
	if csr == nil {
		return w.WriteUint8(0)
	}
	if err := w.WriteUint8(1); err != nil {
		return err
	}
	if err := w.WriteUint64(csr.Generation); err != nil {
		return err
	}
	if err := w.WriteUint32Slice(csr.RowOffsets); err != nil {
		return err
	}
	if err := w.WriteUint32Slice(csr.EdgeIndices); err != nil {
		return err
	}
	if err := w.WriteUint64(uint64(len(csr.Seeds))); err != nil {
		return err
	}
	seeds := make([]uint32, len(csr.Seeds))
	for i, s := range csr.Seeds {
		seeds[i] = uint32(s)
	}
	return w.WriteUint32Slice(seeds)
}

// Decode reads a graph written by Encode. The decoded CSR is validated
// against the lists before it becomes active.
func Decode(r *persistence.Reader, optFns ...func(o *Options)) (*Graph, error) {
	if err := r.ExpectSection(persistence.SectionGraph); err != nil {
		return nil, err
	}
	maxDegree, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	n64, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	if maxDegree == 0 || maxDegree > math.MaxInt32 || n64 > uint64(mem.MaxRows-1) {
		return nil, fmt.Errorf("%w: max degree %d, %d nodes", ErrCorrupt, maxDegree, n64)
	}
	n := int(n64)

	fns := append([]func(o *Options){}, optFns...)
	fns = append(fns, func(o *Options) { o.MaxDegree = int(maxDegree) })
	g := New(fns...)

	degrees, err := r.ReadUint32Slice(n)
	if err != nil {
		return nil, err
	}
	numEdges, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	if numEdges > uint64(n)*uint64(maxDegree) {
		return nil, fmt.Errorf("%w: %d edges for %d nodes", ErrCorrupt, numEdges, n)
	}
	targets, err := r.ReadUint32Slice(int(numEdges))
	if err != nil {
		return nil, err
	}
	dists, err := r.ReadFloat32Slice(int(numEdges))
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		if _, err := g.lists.AddNode(); err != nil {
			return nil, err
		}
	}
	pos := 0
	for i, deg := range degrees {
		if deg > maxDegree || pos+int(deg) > len(targets) {
			return nil, fmt.Errorf("%w: node %d degree %d", ErrCorrupt, i, deg)
		}
		for j := pos; j < pos+int(deg); j++ {
			if targets[j] >= uint32(n) { //nolint:gosec // n < MaxRows
				return nil, fmt.Errorf("%w: node %d has edge to %d", ErrCorrupt, i, targets[j])
			}
			if _, err := g.lists.Admit(model.NodeID(i), model.NodeID(targets[j]), dists[j]); err != nil { //nolint:gosec // i < n
				return nil, err
			}
		}
		pos += int(deg)
	}
	if pos != len(targets) || g.lists.NumEdges() != len(targets) {
		return nil, fmt.Errorf("%w: %d edges decoded, %d admitted", ErrCorrupt, len(targets), g.lists.NumEdges())
	}

	if err := r.ExpectSection(persistence.SectionCSR); err != nil {
		return nil, err
	}
	hasCSR, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}

	dirty := roaring.New()
	dirty.AddRange(0, uint64(n))
	if hasCSR == 0 {
		g.suspects.AddRange(0, uint64(n))
		g.state = Building{Dirty: dirty, Invalidated: true}
		return g, nil
	}

	generation, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	offsets, err := r.ReadUint32Slice(n + 1)
	if err != nil {
		return nil, err
	}
	edges, err := r.ReadUint32Slice(len(targets))
	if err != nil {
		return nil, err
	}
	numSeeds, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	if numSeeds > uint64(n) {
		return nil, fmt.Errorf("%w: %d seeds for %d nodes", ErrCorrupt, numSeeds, n)
	}
	rawSeeds, err := r.ReadUint32Slice(int(numSeeds))
	if err != nil {
		return nil, err
	}
	seeds := make([]model.NodeID, len(rawSeeds))
	for i, s := range rawSeeds {
		seeds[i] = model.NodeID(s)
	}

	csr := &CSR{RowOffsets: offsets, EdgeIndices: edges, Seeds: seeds, Nodes: n, Generation: generation}
	if err := csr.Validate(int(maxDegree)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	for i := 0; i < n; i++ {
		if csr.Degree(model.NodeID(i)) != g.lists.Degree(model.NodeID(i)) { //nolint:gosec // i < n
			return nil, fmt.Errorf("%w: csr row %d disagrees with lists", ErrCorrupt, i)
		}
	}

	if err := g.csrBudget.Reserve(csr.MemoryFootprint()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
	}
	g.active.Store(csr)
	g.generation = generation
	g.state = Compiled{CSR: csr}

	return g, nil
}
