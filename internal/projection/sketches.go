package projection

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/roargraph/internal/math32"
	"github.com/hupe1980/roargraph/internal/mem"
	"github.com/hupe1980/roargraph/internal/resource"
	"github.com/hupe1980/roargraph/model"
	"github.com/hupe1980/roargraph/persistence"
)

// ErrCapacityExceeded is returned when the sketch buffer cannot grow.
var ErrCapacityExceeded = errors.New("projection: capacity exceeded")

// SketchStore keeps one sketch per node, in node order, next to the vector
// store. Writes require external synchronization.
type SketchStore struct {
	p      *Pipeline
	width  int
	n      int
	data   []float32
	budget *resource.Budget
}

// NewSketchStore creates an empty store for sketches of p.
// The controller may be nil.
func NewSketchStore(p *Pipeline, c *resource.Controller) *SketchStore {
	return &SketchStore{p: p, width: p.SketchWidth(), budget: resource.NewBudget(c)}
}

// Pipeline returns the pipeline producing the sketches.
func (s *SketchStore) Pipeline() *Pipeline { return s.p }

// Len returns the number of stored sketches.
func (s *SketchStore) Len() int { return s.n }

// Append projects v and stores its sketch as the next node.
func (s *SketchStore) Append(v []float32) error {
	if s.width == 0 {
		s.n++
		return nil
	}

	data, err := mem.GrowWith(s.budget, s.data, s.n+1, s.width, mem.Aligned[float32])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
	}
	start := s.n * s.width
	data = data[:start+s.width]
	s.p.ProjectInto(Sketch(data[start:start+s.width]), v)

	s.data = data
	s.n++
	return nil
}

// Get returns the sketch of node without copying. The node must be in range.
func (s *SketchStore) Get(node model.NodeID) Sketch {
	start := int(node) * s.width
	end := start + s.width
	return Sketch(s.data[start:end:end])
}

// SwapRemove moves the last sketch into node, mirroring the vector store.
func (s *SketchStore) SwapRemove(node model.NodeID) {
	last := s.n - 1
	if int(node) > last {
		return
	}
	if s.width > 0 {
		if int(node) != last {
			copy(s.data[int(node)*s.width:], s.data[last*s.width:s.n*s.width])
		}
		s.data = s.data[:last*s.width]
	}
	s.n = last
}

// Reset drops every sketch and releases the buffer.
func (s *SketchStore) Reset() {
	s.data = nil
	s.n = 0
	s.budget.ReleaseAll()
}

// MemoryFootprint returns the bytes held by the sketch buffer.
func (s *SketchStore) MemoryFootprint() int64 {
	return int64(cap(s.data)) * 4
}

type scored struct {
	node model.NodeID
	dist float32
}

// Filter narrows candidates to at most keep nodes closest to query in sketch
// space. Layer i keeps the better half of the survivors of layer i-1, never
// fewer than keep; the last layer trims to keep. The result is ordered by the
// last layer's distance, ties by node.
//
// With no layers or no more than keep candidates, candidates is returned as is.
func (s *SketchStore) Filter(query Sketch, candidates []model.NodeID, keep int) []model.NodeID {
	if s.width == 0 || keep <= 0 || len(candidates) <= keep {
		return candidates
	}

	out := s.p.OutputDim()
	layers := s.p.NumLayers()

	cur := make([]scored, len(candidates))
	for i, c := range candidates {
		cur[i].node = c
	}

	for l := 0; l < layers; l++ {
		q := query.Layer(l, out)
		for i := range cur {
			cur[i].dist = math32.SquaredL2(q, s.Get(cur[i].node).Layer(l, out))
		}
		slices.SortFunc(cur, func(a, b scored) int {
			if c := cmp.Compare(a.dist, b.dist); c != 0 {
				return c
			}
			return cmp.Compare(a.node, b.node)
		})

		n := keep
		if l < layers-1 {
			n = max(len(cur)/2, keep)
		}
		cur = cur[:min(n, len(cur))]
	}

	result := make([]model.NodeID, len(cur))
	for i, c := range cur {
		result[i] = c.node
	}
	return result
}

// Encode writes the sketches.
func (s *SketchStore) Encode(w *persistence.Writer) error {
	if err := w.WriteSection(persistence.SectionSketches); err != nil {
		return err
	}
	if err := w.WriteUint64(uint64(s.n)); err != nil { //nolint:gosec // non-negative
		return err
	}
	return w.WriteFloat32Slice(s.data[:s.n*s.width])
}

// DecodeSketchStore reads sketches of p written by Encode.
func DecodeSketchStore(r *persistence.Reader, p *Pipeline, c *resource.Controller) (*SketchStore, error) {
	if err := r.ExpectSection(persistence.SectionSketches); err != nil {
		return nil, err
	}
	n, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}

	s := NewSketchStore(p, c)
	if n > uint64(mem.MaxRows) || (s.width > 0 && n > uint64(persistence.MaxSliceLen/s.width)) {
		return nil, fmt.Errorf("%w: %d sketches", ErrCorrupt, n)
	}

	data, err := r.ReadFloat32Slice(int(n) * s.width)
	if err != nil {
		return nil, err
	}
	if err := s.budget.Reserve(int64(cap(data)) * 4); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
	}
	s.data = data
	s.n = int(n)
	return s, nil
}
