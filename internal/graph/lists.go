package graph

import (
	"fmt"

	"github.com/hupe1980/roargraph/internal/mem"
	"github.com/hupe1980/roargraph/internal/resource"
	"github.com/hupe1980/roargraph/model"
)

// Edge is a directed edge with the distance between its endpoints.
type Edge struct {
	To   model.NodeID
	Dist float32
}

const edgeSize = 8

// Lists is the mutable adjacency list form of the graph.
// Every row holds at most MaxDegree edges, never a self loop or a duplicate.
//
// Lists are not thread-safe.
type Lists struct {
	maxDegree int
	rows      [][]Edge
	in        []uint32 // in-degree per node
	numEdges  int
	budget    *resource.Budget
}

// NewLists creates empty adjacency lists. The controller may be nil.
func NewLists(maxDegree int, c *resource.Controller) *Lists {
	return &Lists{maxDegree: maxDegree, budget: resource.NewBudget(c)}
}

// MaxDegree returns the per-node edge cap.
func (l *Lists) MaxDegree() int { return l.maxDegree }

// Len returns the number of nodes.
func (l *Lists) Len() int { return len(l.rows) }

// NumEdges returns the number of edges.
func (l *Lists) NumEdges() int { return l.numEdges }

// Degree returns the out-degree of n.
func (l *Lists) Degree(n model.NodeID) int { return len(l.rows[n]) }

// InDegree returns the number of edges pointing to n.
func (l *Lists) InDegree(n model.NodeID) int { return int(l.in[n]) }

// Edges returns the edges of n in admission order. The slice aliases the
// lists; do not modify.
func (l *Lists) Edges(n model.NodeID) []Edge { return l.rows[n] }

// Neighbors implements NeighborSource.
func (l *Lists) Neighbors(n model.NodeID, buf []model.NodeID) []model.NodeID {
	buf = buf[:0]
	for _, e := range l.rows[n] {
		buf = append(buf, e.To)
	}
	return buf
}

// AddNode appends an empty row and returns its node.
func (l *Lists) AddNode() (model.NodeID, error) {
	if len(l.rows) >= mem.MaxRows-1 {
		return model.InvalidNode, fmt.Errorf("%w: %v", ErrCapacityExceeded, mem.ErrOverflow)
	}
	rows, err := mem.GrowWith(l.budget, l.rows, len(l.rows)+1, 1, nil)
	if err != nil {
		return model.InvalidNode, fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
	}
	l.rows = append(rows, nil)
	l.in = append(l.in, 0)
	return model.NodeID(len(l.rows) - 1), nil //nolint:gosec // bounded by MaxRows
}

// Admit offers the edge from -> to. A free slot takes it; a saturated row
// replaces its current worst edge only if dist is strictly smaller. An existing
// edge to the same target keeps the smaller distance. It reports whether the
// row changed.
func (l *Lists) Admit(from, to model.NodeID, dist float32) (bool, error) {
	changed, _, err := l.admit(from, to, dist, false)
	return changed, err
}

// Force adds the edge from -> to regardless of its distance. A saturated row
// gives up its farthest edge whose target keeps another incoming edge; when
// every target depends on this row the edge is refused. It reports whether
// the row changed.
func (l *Lists) Force(from, to model.NodeID, dist float32) (bool, error) {
	changed, _, err := l.admit(from, to, dist, true)
	return changed, err
}

// admit implements Admit and Force. displaced is the target of the replaced
// edge, or InvalidNode.
func (l *Lists) admit(from, to model.NodeID, dist float32, force bool) (changed bool, displaced model.NodeID, err error) {
	displaced = model.InvalidNode
	if from == to {
		return false, displaced, nil
	}
	if int(from) >= len(l.rows) || int(to) >= len(l.rows) {
		return false, displaced, fmt.Errorf("%w: edge %d -> %d with %d nodes", ErrNodeOutOfRange, from, to, len(l.rows))
	}

	row := l.rows[from]
	worst, spare := -1, -1
	for i, e := range row {
		if e.To == to {
			if dist < e.Dist {
				row[i].Dist = dist
				return true, displaced, nil
			}
			return false, displaced, nil
		}
		if worst < 0 || e.Dist > row[worst].Dist {
			worst = i
		}
		if l.in[e.To] > 1 && (spare < 0 || e.Dist > row[spare].Dist) {
			spare = i
		}
	}

	if len(row) < l.maxDegree {
		if row == nil {
			if err := l.budget.Reserve(int64(l.maxDegree) * edgeSize); err != nil {
				return false, displaced, fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
			}
			row = make([]Edge, 0, l.maxDegree)
		}
		l.rows[from] = append(row, Edge{To: to, Dist: dist})
		l.in[to]++
		l.numEdges++
		return true, displaced, nil
	}

	victim := worst
	if force {
		victim = spare
	} else if worst < 0 || dist >= row[worst].Dist {
		return false, displaced, nil
	}
	if victim < 0 {
		return false, displaced, nil
	}

	displaced = row[victim].To
	l.in[displaced]--
	l.in[to]++
	row[victim] = Edge{To: to, Dist: dist}
	return true, displaced, nil
}

// SwapRemove deletes node n: its row and every edge pointing to it are
// dropped, then the last node takes n's place and every reference to it is
// renumbered. It returns the rows that changed, n included when a node
// moved. The caller mirrors the move in its own stores.
func (l *Lists) SwapRemove(n model.NodeID) ([]model.NodeID, error) {
	if int(n) >= len(l.rows) {
		return nil, fmt.Errorf("%w: %d", ErrNodeOutOfRange, n)
	}
	last := model.NodeID(len(l.rows) - 1) //nolint:gosec // bounded by MaxRows

	for _, e := range l.rows[n] {
		l.in[e.To]--
	}

	var changed []model.NodeID
	for i, row := range l.rows {
		if model.NodeID(i) == n {
			continue
		}
		touched := false
		for j := 0; j < len(row); {
			switch row[j].To {
			case n:
				row[j] = row[len(row)-1]
				row = row[:len(row)-1]
				l.numEdges--
				touched = true
				continue
			case last:
				row[j].To = n
				touched = true
			}
			j++
		}
		l.rows[i] = row
		if touched && model.NodeID(i) != last {
			changed = append(changed, model.NodeID(i)) //nolint:gosec // bounded by MaxRows
		}
	}

	l.numEdges -= len(l.rows[n])
	if cap(l.rows[n]) > 0 {
		l.budget.Release(int64(l.maxDegree) * edgeSize)
	}
	if n != last {
		l.rows[n] = l.rows[last]
		l.in[n] = l.in[last]
		changed = append(changed, n)
	}
	l.rows[last] = nil
	l.rows = l.rows[:last]
	l.in = l.in[:last]

	return changed, nil
}

// Reset drops every node and releases all rows.
func (l *Lists) Reset() {
	l.rows = nil
	l.in = nil
	l.numEdges = 0
	l.budget.ReleaseAll()
}

// MemoryFootprint returns the bytes held by the rows.
func (l *Lists) MemoryFootprint() int64 {
	return l.budget.Reserved()
}
