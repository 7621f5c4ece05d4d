package vectorstore

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/hupe1980/roargraph/codec"
	"github.com/hupe1980/roargraph/distance"
	"github.com/hupe1980/roargraph/internal/mem"
	"github.com/hupe1980/roargraph/persistence"
	"github.com/hupe1980/roargraph/quantization"
)

// MaxIDBytes bounds the encoded id section.
const MaxIDBytes = 1 << 32

// ErrCorrupt is returned when encoded store data is inconsistent.
var ErrCorrupt = errors.New("vectorstore: corrupt data")

func sizeOf[T any](v T) uintptr {
	return unsafe.Sizeof(v)
}

// Encode writes the store section: shape, rows, sequences and ids.
func (s *Store[K]) Encode(w *persistence.Writer, c codec.Codec) error {
	if c == nil {
		c = codec.Default
	}

	if err := w.WriteSection(persistence.SectionStore); err != nil {
		return err
	}
	var quantized uint8
	if s.opts.Quantized {
		quantized = 1
	}
	if err := w.WriteUint8(uint8(s.opts.Metric)); err != nil { //nolint:gosec // small enum
		return err
	}
	if err := w.WriteUint8(quantized); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(s.dim)); err != nil { //nolint:gosec // validated in New
		return err
	}
	if err := w.WriteUint64(uint64(s.n)); err != nil { //nolint:gosec // non-negative
		return err
	}
	if err := w.WriteUint64(s.nextSeq); err != nil {
		return err
	}

	if s.opts.Quantized {
		if err := w.WriteUint8Slice(s.codes[:s.n*s.dim]); err != nil {
			return err
		}
		flat := make([]float32, 2*s.n)
		for i, p := range s.params[:s.n] {
			flat[2*i], flat[2*i+1] = p.Scale, p.Offset
		}
		if err := w.WriteFloat32Slice(flat); err != nil {
			return err
		}
	} else {
		if err := w.WriteFloat32Slice(s.vectors[:s.n*s.dim]); err != nil {
			return err
		}
	}

	if err := w.WriteUint64Slice(s.seqs[:s.n]); err != nil {
		return err
	}

	if err := w.WriteSection(persistence.SectionIDs); err != nil {
		return err
	}
	ids, err := c.Marshal(s.ids[:s.n])
	if err != nil {
		return fmt.Errorf("vectorstore: encode ids: %w", err)
	}
	return w.WriteBytes(ids)
}

// Decode reads a store section written by Encode into a new store.
// The controller, if any, is charged for the decoded buffers.
func Decode[K comparable](r *persistence.Reader, c codec.Codec, optFns ...func(o *Options)) (*Store[K], error) {
	if c == nil {
		c = codec.Default
	}

	if err := r.ExpectSection(persistence.SectionStore); err != nil {
		return nil, err
	}
	metric, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	quantized, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	dim32, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	n64, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	nextSeq, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}

	dim := int(dim32)
	if dim <= 0 || n64 > uint64(mem.MaxRows) {
		return nil, fmt.Errorf("%w: dimension %d, count %d", ErrCorrupt, dim, n64)
	}
	n := int(n64)
	if n > persistence.MaxSliceLen/dim {
		return nil, fmt.Errorf("%w: %d rows of dimension %d", ErrCorrupt, n, dim)
	}

	fns := append([]func(o *Options){}, optFns...)
	fns = append(fns, func(o *Options) {
		o.Metric = distance.Metric(metric)
		o.Quantized = quantized == 1
		o.InitialCapacity = 0
	})
	s, err := New[K](dim, fns...)
	if err != nil {
		return nil, err
	}

	if s.opts.Quantized {
		codes, err := r.ReadUint8Slice(n * dim)
		if err != nil {
			return nil, err
		}
		flat, err := r.ReadFloat32Slice(2 * n)
		if err != nil {
			return nil, err
		}
		params := make([]quantization.Params, n)
		for i := range params {
			params[i] = quantization.Params{Scale: flat[2*i], Offset: flat[2*i+1]}
			if !(params[i].Scale > 0) {
				return nil, fmt.Errorf("%w: row %d: %v", ErrCorrupt, i, quantization.ErrInvalidParams)
			}
		}
		s.codes, s.params = codes, params
	} else {
		vectors, err := r.ReadFloat32Slice(n * dim)
		if err != nil {
			return nil, err
		}
		s.vectors = vectors
	}

	seqs, err := r.ReadUint64Slice(n)
	if err != nil {
		return nil, err
	}
	for _, seq := range seqs {
		if seq >= nextSeq {
			return nil, fmt.Errorf("%w: sequence %d >= next %d", ErrCorrupt, seq, nextSeq)
		}
	}
	s.seqs = seqs

	if err := r.ExpectSection(persistence.SectionIDs); err != nil {
		return nil, err
	}
	raw, err := r.ReadBytes(MaxIDBytes)
	if err != nil {
		return nil, err
	}
	var ids []K
	if len(raw) > 0 {
		if err := c.Unmarshal(raw, &ids); err != nil {
			return nil, fmt.Errorf("%w: decode ids: %v", ErrCorrupt, err)
		}
	}
	if len(ids) != n {
		return nil, fmt.Errorf("%w: %d ids for %d rows", ErrCorrupt, len(ids), n)
	}
	s.ids = ids
	s.n = n
	s.nextSeq = nextSeq

	if err := s.budget.Reserve(s.MemoryFootprint()); err != nil {
		return nil, capacityError(err)
	}

	return s, nil
}
