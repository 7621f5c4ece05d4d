package vectorstore

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/roargraph/distance"
	"github.com/hupe1980/roargraph/internal/mem"
	"github.com/hupe1980/roargraph/internal/resource"
	"github.com/hupe1980/roargraph/model"
	"github.com/hupe1980/roargraph/quantization"
)

var (
	// ErrInvalidDimension is returned for a non-positive dimension.
	ErrInvalidDimension = errors.New("vectorstore: invalid dimension")
	// ErrInvalidMetric is returned for an unsupported metric.
	ErrInvalidMetric = errors.New("vectorstore: invalid metric")
	// ErrCapacityExceeded is returned when a buffer cannot grow.
	ErrCapacityExceeded = errors.New("vectorstore: capacity exceeded")
	// ErrNodeOutOfRange is returned for a node past the end of the store.
	ErrNodeOutOfRange = errors.New("vectorstore: node out of range")
)

// DimensionError is returned when a vector does not match the store dimension.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vectorstore: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Options configures a Store.
type Options struct {
	// Metric selects the ranking score. Cosine vectors are L2-normalized on Add.
	Metric distance.Metric

	// Quantized stores uint8 codes with a per-vector scale and offset
	// instead of float32 components.
	Quantized bool

	// InitialCapacity is the number of rows allocated up front.
	InitialCapacity int

	// Controller accounts buffer growth against a memory budget. Optional.
	Controller *resource.Controller
}

// DefaultOptions contains the default configuration for a Store.
var DefaultOptions = Options{
	Metric: distance.MetricL2,
}

// Store is an append-only, contiguous vector store.
//
// Rows are addressed by model.NodeID. Every row has an external id of type K
// (duplicates are allowed; uniqueness is the caller's concern) and an
// insertion sequence used to break distance ties deterministically.
//
// Raw rows live in one []float32 (vector i = vectors[i*dim:(i+1)*dim]).
// Quantized rows live in one []uint8 plus one quantization.Params per row.
// Every buffer grows independently under the mem.NextCapacity policy.
//
// Thread safety: concurrent reads are safe; writes require external
// synchronization.
type Store[K comparable] struct {
	opts  Options
	dim   int
	n     int
	score distance.Func

	vectors []float32
	codes   []uint8
	params  []quantization.Params
	seqs    []uint64
	ids     []K

	nextSeq uint64
	budget  *resource.Budget
}

// New creates an empty store for dim-dimensional vectors.
func New[K comparable](dim int, optFns ...func(o *Options)) (*Store[K], error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}

	score, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetric, opts.Metric)
	}

	s := &Store[K]{
		opts:   opts,
		dim:    dim,
		score:  score,
		budget: resource.NewBudget(opts.Controller),
	}

	if opts.InitialCapacity > 0 {
		if err := s.reserve(opts.InitialCapacity); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Dimension returns the vector dimensionality.
func (s *Store[K]) Dimension() int { return s.dim }

// Len returns the number of stored rows.
func (s *Store[K]) Len() int { return s.n }

// Metric returns the configured metric.
func (s *Store[K]) Metric() distance.Metric { return s.opts.Metric }

// Quantized reports whether rows are stored as uint8 codes.
func (s *Store[K]) Quantized() bool { return s.opts.Quantized }

// NextSeq returns the sequence number the next Add will assign.
func (s *Store[K]) NextSeq() uint64 { return s.nextSeq }

func capacityError(err error) error {
	return fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
}

// reserve grows every buffer to hold at least rows rows.
// Growth only adds capacity, so a failure part way leaves the store valid.
func (s *Store[K]) reserve(rows int) error {
	var err error
	if s.opts.Quantized {
		if s.codes, err = growRows(s, s.codes, rows, s.dim, mem.Aligned[uint8]); err != nil {
			return err
		}
		if s.params, err = growRows(s, s.params, rows, 1, nil); err != nil {
			return err
		}
	} else {
		if s.vectors, err = growRows(s, s.vectors, rows, s.dim, mem.Aligned[float32]); err != nil {
			return err
		}
	}
	if s.seqs, err = growRows(s, s.seqs, rows, 1, nil); err != nil {
		return err
	}
	if s.ids, err = growRows(s, s.ids, rows, 1, nil); err != nil {
		return err
	}
	return nil
}

func growRows[K comparable, T any](s *Store[K], buf []T, rows, width int, alloc func(int) []T) ([]T, error) {
	out, err := mem.GrowWith(s.budget, buf, rows, width, alloc)
	if err != nil {
		return buf, capacityError(err)
	}
	return out, nil
}

// Add appends v under id and returns its node. The vector is copied.
func (s *Store[K]) Add(id K, v []float32) (model.NodeID, error) {
	if len(v) != s.dim {
		return model.InvalidNode, &DimensionError{Expected: s.dim, Actual: len(v)}
	}
	if s.n >= mem.MaxRows-1 {
		return model.InvalidNode, capacityError(mem.ErrOverflow)
	}
	if err := s.reserve(s.n + 1); err != nil {
		return model.InvalidNode, err
	}

	start := s.n * s.dim
	end := start + s.dim

	if s.opts.Quantized {
		src := v
		if s.opts.Metric == distance.MetricCosine {
			if norm, ok := distance.NormalizeL2Copy(v); ok {
				src = norm
			}
		}
		s.codes = s.codes[:end]
		s.params = append(s.params, quantization.Encode(s.codes[start:end], src))
	} else {
		s.vectors = append(s.vectors, v...)
		if s.opts.Metric == distance.MetricCosine {
			distance.NormalizeL2InPlace(s.vectors[start:end])
		}
	}

	s.seqs = append(s.seqs, s.nextSeq)
	s.ids = append(s.ids, id)
	s.nextSeq++

	node := model.NodeID(s.n) //nolint:gosec // bounded by MaxRows above
	s.n++

	return node, nil
}

func (s *Store[K]) check(node model.NodeID) error {
	if int(node) >= s.n {
		return fmt.Errorf("%w: %d >= %d", ErrNodeOutOfRange, node, s.n)
	}
	return nil
}

// ID returns the external id of node. The node must be in range.
func (s *Store[K]) ID(node model.NodeID) K {
	return s.ids[node]
}

// Seq returns the insertion sequence of node. The node must be in range.
func (s *Store[K]) Seq(node model.NodeID) uint64 {
	return s.seqs[node]
}

// Get returns a copy of the vector at node, dequantized if needed.
func (s *Store[K]) Get(node model.NodeID) ([]float32, error) {
	if err := s.check(node); err != nil {
		return nil, err
	}
	return s.VectorInto(nil, node), nil
}

// VectorInto writes the vector at node into dst, reallocating it if too
// small, and returns it. The node must be in range.
func (s *Store[K]) VectorInto(dst []float32, node model.NodeID) []float32 {
	start := int(node) * s.dim
	if s.opts.Quantized {
		return s.params[node].Decode(dst, s.codes[start:start+s.dim])
	}
	if cap(dst) < s.dim {
		dst = make([]float32, s.dim)
	}
	dst = dst[:s.dim]
	copy(dst, s.vectors[start:start+s.dim])
	return dst
}

// Raw returns the stored float32 row without copying, or false when rows are
// quantized. The slice aliases the store; do not modify.
func (s *Store[K]) Raw(node model.NodeID) ([]float32, bool) {
	if s.opts.Quantized {
		return nil, false
	}
	start := int(node) * s.dim
	end := start + s.dim
	return s.vectors[start:end:end], true
}

// Score returns the ranking score between query and the vector at node:
// squared L2 or 1 - dot for cosine. Quantized rows are dequantized inline.
// The node must be in range and query must be prepared (normalized for cosine).
func (s *Store[K]) Score(node model.NodeID, query []float32) float32 {
	start := int(node) * s.dim
	if !s.opts.Quantized {
		return s.score(query, s.vectors[start:start+s.dim])
	}

	code := s.codes[start : start+s.dim]
	p := s.params[node]
	if s.opts.Metric == distance.MetricCosine {
		return 1 - quantization.Dot(query, code, p)
	}
	return quantization.SquaredL2(query, code, p)
}

// Distance returns Score with bounds checking.
func (s *Store[K]) Distance(node model.NodeID, query []float32) (float32, error) {
	if err := s.check(node); err != nil {
		return float32(math.Inf(1)), err
	}
	if len(query) != s.dim {
		return float32(math.Inf(1)), &DimensionError{Expected: s.dim, Actual: len(query)}
	}
	return s.Score(node, query), nil
}

// SwapRemove removes node by moving the last row into its place.
// It returns the node that was moved and true, or false when node was the
// last row and nothing moved. Callers must renumber moved to node.
func (s *Store[K]) SwapRemove(node model.NodeID) (model.NodeID, bool, error) {
	if err := s.check(node); err != nil {
		return model.InvalidNode, false, err
	}

	last := s.n - 1
	i := int(node)
	moved := i != last

	if moved {
		dst, src := i*s.dim, last*s.dim
		if s.opts.Quantized {
			copy(s.codes[dst:dst+s.dim], s.codes[src:src+s.dim])
			s.params[i] = s.params[last]
		} else {
			copy(s.vectors[dst:dst+s.dim], s.vectors[src:src+s.dim])
		}
		s.seqs[i] = s.seqs[last]
		s.ids[i] = s.ids[last]
	}

	var zero K
	s.ids[last] = zero
	s.ids = s.ids[:last]
	s.seqs = s.seqs[:last]
	if s.opts.Quantized {
		s.codes = s.codes[:last*s.dim]
		s.params = s.params[:last]
	} else {
		s.vectors = s.vectors[:last*s.dim]
	}
	s.n = last

	return model.NodeID(last), moved, nil //nolint:gosec // last < MaxRows
}

// Reset drops every row and releases all buffers. Sequence numbers keep
// increasing across resets.
func (s *Store[K]) Reset() {
	s.vectors = nil
	s.codes = nil
	s.params = nil
	s.seqs = nil
	s.ids = nil
	s.n = 0
	s.budget.ReleaseAll()
}

// Release returns the reserved memory to the controller. The store must not
// be used afterwards.
func (s *Store[K]) Release() {
	s.Reset()
}

// MemoryFootprint returns the bytes held by all buffers (capacity based).
func (s *Store[K]) MemoryFootprint() int64 {
	var zero K
	idSize := int64(sizeOf(zero))
	return int64(cap(s.vectors))*4 +
		int64(cap(s.codes)) +
		int64(cap(s.params))*quantization.ParamsSize +
		int64(cap(s.seqs))*8 +
		int64(cap(s.ids))*idSize
}
