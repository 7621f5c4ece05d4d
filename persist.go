package roargraph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/roargraph/distance"
	"github.com/hupe1980/roargraph/internal/graph"
	"github.com/hupe1980/roargraph/internal/projection"
	"github.com/hupe1980/roargraph/internal/vectorstore"
	"github.com/hupe1980/roargraph/persistence"
)

// WriteTo serializes the index to w: a header, the vector store, the
// projection layers with their sketches and the graph, followed by a CRC32C
// trailer. The format is opaque; read it back with Load.
//
// Searches keep running while the index is written; writers wait.
func (idx *Index[K]) WriteTo(w io.Writer) (int64, error) {
	if idx.closed.Load() {
		return 0, ErrClosed
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bw := persistence.NewWriter(w)
	err := idx.encodeLocked(bw)
	n := bw.Written()
	if err == nil {
		n += 4 // trailer
	}
	idx.opts.logger.LogSnapshot(context.Background(), "write", n, err)
	return n, err
}

func (idx *Index[K]) encodeLocked(bw *persistence.Writer) error {
	var flags uint8
	if idx.store.Quantized() {
		flags |= persistence.FlagQuantized
	}
	if idx.graph.Compiled() {
		flags |= persistence.FlagCompiled
	}
	if idx.lastBuild.Degraded {
		flags |= persistence.FlagDegraded
	}

	header := &persistence.FileHeader{
		Metric:     uint8(idx.metric), //nolint:gosec // validated metric
		Flags:      flags,
		Dimension:  uint32(idx.dim), //nolint:gosec // validated dimension
		Count:      uint64(idx.store.Len()),
		Generation: idx.graph.Generation(),
	}
	if err := bw.WriteHeader(header); err != nil {
		return err
	}
	if err := idx.store.Encode(bw, idx.opts.codec); err != nil {
		return err
	}
	if err := idx.pipeline.Encode(bw); err != nil {
		return err
	}
	if err := idx.sketches.Encode(bw); err != nil {
		return err
	}
	if err := idx.graph.Encode(bw); err != nil {
		return err
	}
	return bw.Finish()
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (idx *Index[K]) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := idx.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. It replaces the
// contents of idx, including dimension and metric, with the decoded index.
// Options given to New (logger, metrics, tuning) are kept.
func (idx *Index[K]) UnmarshalBinary(data []byte) error {
	if idx.closed.Load() {
		return ErrClosed
	}

	idx.mu.RLock()
	opts := idx.opts
	idx.mu.RUnlock()
	if opts.logger == nil {
		// Zero Index.
		opts = applyOptions(nil)
	}

	loaded, err := decode[K](persistence.NewBytesReader(data), opts)
	if err != nil {
		return err
	}

	idx.buildMu.Lock()
	defer idx.buildMu.Unlock()
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.graph != nil {
		idx.graph.Reset()
		idx.sketches.Reset()
		idx.store.Release()
	}

	idx.dim = loaded.dim
	idx.metric = loaded.metric
	idx.opts = loaded.opts
	idx.controller = loaded.controller
	idx.store = loaded.store
	idx.pipeline = loaded.pipeline
	idx.sketches = loaded.sketches
	idx.graph = loaded.graph
	idx.builder = loaded.builder
	idx.sched = loaded.sched
	idx.ids = loaded.ids
	idx.lastBuild = loaded.lastBuild
	idx.unlinked = 0
	idx.pending.Store(loaded.pending.Load())
	idx.epoch++

	if idx.cancel == nil {
		idx.ctx, idx.cancel = loaded.ctx, loaded.cancel
	} else {
		loaded.cancel()
	}
	return nil
}

// Load reads an index written by WriteTo. Options configure the loaded
// index; structural settings (dimension, metric, quantization, max degree,
// projections) come from the data.
//
// The input is read completely before decoding so that every length is
// checked against the actual size.
func Load[K comparable](r io.Reader, optFns ...Option) (*Index[K], error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return decode[K](persistence.NewBytesReader(data), applyOptions(optFns))
}

// SaveToFile writes the index to filename atomically.
func (idx *Index[K]) SaveToFile(filename string) error {
	return persistence.SaveToFile(filename, func(w io.Writer) error {
		_, err := idx.WriteTo(w)
		return err
	})
}

// LoadFromFile reads an index written by SaveToFile. The file is memory
// mapped while decoding.
func LoadFromFile[K comparable](filename string, optFns ...Option) (*Index[K], error) {
	var idx *Index[K]
	err := persistence.LoadFromFile(filename, func(data []byte) error {
		var err error
		idx, err = decode[K](persistence.NewBytesReader(data), applyOptions(optFns))
		return err
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func decode[K comparable](r *persistence.Reader, opts options) (*Index[K], error) {
	idx, err := decodeIndex[K](r, opts)
	opts.logger.LogSnapshot(context.Background(), "load", r.Consumed(), err)
	return idx, err
}

func decodeIndex[K comparable](r *persistence.Reader, opts options) (*Index[K], error) {
	header, err := r.ReadHeader()
	if err != nil {
		return nil, decodeError(err)
	}

	metric := distance.Metric(header.Metric)
	if !metric.Valid() || header.Dimension == 0 {
		return nil, fmt.Errorf("%w: metric %d, dimension %d", ErrCorruptSnapshot, header.Metric, header.Dimension)
	}
	dim := int(header.Dimension)

	controller := newController(opts)

	store, err := vectorstore.Decode[K](r, opts.codec, func(o *vectorstore.Options) {
		o.Controller = controller
	})
	if err != nil {
		return nil, decodeError(err)
	}

	p, err := projection.Decode(r)
	if err != nil {
		store.Release()
		return nil, decodeError(err)
	}

	sketches, err := projection.DecodeSketchStore(r, p, controller)
	if err != nil {
		store.Release()
		return nil, decodeError(err)
	}

	g, err := graph.Decode(r, func(o *graph.Options) {
		o.Controller = controller
	})
	if err != nil {
		sketches.Reset()
		store.Release()
		return nil, decodeError(err)
	}

	release := func() {
		g.Reset()
		sketches.Reset()
		store.Release()
	}

	if err := r.Verify(); err != nil {
		release()
		return nil, decodeError(err)
	}

	n := store.Len()
	if store.Dimension() != dim || store.Metric() != metric ||
		store.Quantized() != header.HasFlag(persistence.FlagQuantized) ||
		uint64(n) != header.Count ||
		p.Dimension() != dim || sketches.Len() != n || g.Len() != n {
		release()
		return nil, fmt.Errorf("%w: sections disagree with header", ErrCorruptSnapshot)
	}

	opts.maxDegree = g.MaxDegree()
	opts.quantization = store.Quantized()
	opts.numProjectionLayers = p.NumLayers()

	idx, err := newIndex[K](dim, metric, opts, controller, p, store, sketches, g)
	if err != nil {
		release()
		return nil, err
	}
	idx.lastBuild.Degraded = header.HasFlag(persistence.FlagDegraded)
	idx.pending.Store(int64(g.Pending()))

	return idx, nil
}

// decodeError classifies every decoding failure other than a refused memory
// reservation as a corrupt snapshot.
func decodeError(err error) error {
	err = translateError(err)
	if errors.Is(err, ErrCorruptSnapshot) || errors.Is(err, ErrCapacityExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
}
