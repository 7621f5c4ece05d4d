package graph

import (
	"fmt"
	"slices"

	"github.com/hupe1980/roargraph/model"
)

// CSR is the compiled, immutable form of the graph.
//
// Row n spans EdgeIndices[RowOffsets[n]:RowOffsets[n+1]] and is sorted
// ascending. RowOffsets has Nodes+1 entries, starts at 0 and ends at the
// edge count.
type CSR struct {
	RowOffsets  []uint32
	EdgeIndices []uint32

	// Seeds is the fixed pool search entry points are chosen from.
	Seeds []model.NodeID

	// Nodes is the number of nodes compiled.
	Nodes int

	// Generation counts the compilations of the owning graph.
	Generation uint64
}

// Len returns the number of compiled nodes.
func (c *CSR) Len() int { return c.Nodes }

// NumEdges returns the number of edges.
func (c *CSR) NumEdges() int {
	if len(c.RowOffsets) == 0 {
		return 0
	}
	return int(c.RowOffsets[c.Nodes])
}

// Row returns the sorted neighbors of n without copying.
func (c *CSR) Row(n model.NodeID) []uint32 {
	return c.EdgeIndices[c.RowOffsets[n]:c.RowOffsets[n+1]]
}

// Degree returns the out-degree of n.
func (c *CSR) Degree(n model.NodeID) int {
	return int(c.RowOffsets[n+1] - c.RowOffsets[n])
}

// Neighbors implements NeighborSource.
func (c *CSR) Neighbors(n model.NodeID, buf []model.NodeID) []model.NodeID {
	buf = buf[:0]
	if int(n) >= c.Nodes {
		return buf
	}
	for _, to := range c.Row(n) {
		buf = append(buf, model.NodeID(to))
	}
	return buf
}

// HasEdge reports whether a -> b exists.
func (c *CSR) HasEdge(a, b model.NodeID) bool {
	if int(a) >= c.Nodes {
		return false
	}
	_, found := slices.BinarySearch(c.Row(a), uint32(b))
	return found
}

// MaxDegree returns the largest out-degree.
func (c *CSR) MaxDegree() int {
	best := 0
	for n := 0; n < c.Nodes; n++ {
		best = max(best, int(c.RowOffsets[n+1]-c.RowOffsets[n]))
	}
	return best
}

// MemoryFootprint returns the bytes held by the CSR buffers.
func (c *CSR) MemoryFootprint() int64 {
	return int64(cap(c.RowOffsets))*4 + int64(cap(c.EdgeIndices))*4 + int64(cap(c.Seeds))*4
}

// Validate checks the structural invariants: offsets start at 0, never
// decrease and end at the edge count; every row is strictly ascending,
// free of self loops, within maxDegree (if positive) and points at compiled
// nodes; every seed is a compiled node.
func (c *CSR) Validate(maxDegree int) error {
	if c.Nodes < 0 || len(c.RowOffsets) != c.Nodes+1 {
		return fmt.Errorf("%w: %d offsets for %d nodes", ErrInternalInconsistency, len(c.RowOffsets), c.Nodes)
	}
	if c.RowOffsets[0] != 0 {
		return fmt.Errorf("%w: first offset %d", ErrInternalInconsistency, c.RowOffsets[0])
	}
	if int(c.RowOffsets[c.Nodes]) != len(c.EdgeIndices) {
		return fmt.Errorf("%w: last offset %d, %d edges", ErrInternalInconsistency, c.RowOffsets[c.Nodes], len(c.EdgeIndices))
	}

	for n := 0; n < c.Nodes; n++ {
		lo, hi := c.RowOffsets[n], c.RowOffsets[n+1]
		if hi < lo {
			return fmt.Errorf("%w: offsets decrease at node %d", ErrInternalInconsistency, n)
		}
		if int(hi) > len(c.EdgeIndices) {
			return fmt.Errorf("%w: node %d ends past the edges", ErrInternalInconsistency, n)
		}
		if maxDegree > 0 && int(hi-lo) > maxDegree {
			return fmt.Errorf("%w: node %d has degree %d > %d", ErrInternalInconsistency, n, hi-lo, maxDegree)
		}
		row := c.EdgeIndices[lo:hi]
		for i, to := range row {
			if int(to) >= c.Nodes || int(to) == n {
				return fmt.Errorf("%w: node %d has edge to %d", ErrInternalInconsistency, n, to)
			}
			if i > 0 && row[i-1] >= to {
				return fmt.Errorf("%w: row %d not sorted", ErrInternalInconsistency, n)
			}
		}
	}

	for _, s := range c.Seeds {
		if int(s) >= c.Nodes {
			return fmt.Errorf("%w: seed %d out of range", ErrInternalInconsistency, s)
		}
	}

	return nil
}
