package projection

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/roargraph/persistence"
)

const (
	// MinOutputDim is the smallest projected dimension chosen automatically.
	MinOutputDim = 32

	// MaxLayers bounds the number of layers accepted from encoded input.
	MaxLayers = 64
)

var (
	// ErrInvalidDimension is returned for a non-positive input dimension.
	ErrInvalidDimension = errors.New("projection: invalid dimension")
	// ErrInvalidLayers is returned for a negative or excessive layer count.
	ErrInvalidLayers = errors.New("projection: invalid layer count")
	// ErrCorrupt is returned when encoded layers are inconsistent.
	ErrCorrupt = errors.New("projection: corrupt data")
)

// Sketch is the concatenated projection of one vector through every layer.
type Sketch []float32

// Layer returns the part of s produced by layer i.
func (s Sketch) Layer(i, width int) []float32 {
	return s[i*width : (i+1)*width]
}

// Options configures a Pipeline.
type Options struct {
	// NumLayers is the number of independent projections. Zero disables
	// projection entirely.
	NumLayers int

	// OutputDim is the projected dimension. Zero selects max(32, dim/4),
	// capped at dim.
	OutputDim int

	// Seed makes the generated matrices reproducible.
	Seed uint64
}

// DefaultOptions contains the default configuration for a Pipeline.
var DefaultOptions = Options{
	NumLayers: 4,
	Seed:      42,
}

// Pipeline is an immutable set of random projection layers.
// It is safe for concurrent use.
type Pipeline struct {
	dim    int
	out    int
	layers []*mat.Dense // dim x out
}

// OutputDim returns the automatic projected dimension for dim.
func OutputDim(dim int) int {
	return min(max(MinOutputDim, dim/4), dim)
}

// New generates a pipeline for dim-dimensional vectors.
func New(dim int, optFns ...func(o *Options)) (*Pipeline, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	if opts.NumLayers < 0 || opts.NumLayers > MaxLayers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLayers, opts.NumLayers)
	}

	out := opts.OutputDim
	if out <= 0 {
		out = OutputDim(dim)
	}
	out = min(out, dim)

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // not crypto
	norm := 1 / math.Sqrt(float64(out))

	p := &Pipeline{dim: dim, out: out, layers: make([]*mat.Dense, opts.NumLayers)}
	for l := range p.layers {
		data := make([]float64, dim*out)
		for i := range data {
			data[i] = rng.NormFloat64() * norm
		}
		p.layers[l] = mat.NewDense(dim, out, data)
	}

	return p, nil
}

// Dimension returns the input dimension.
func (p *Pipeline) Dimension() int { return p.dim }

// OutputDim returns the per-layer projected dimension.
func (p *Pipeline) OutputDim() int { return p.out }

// NumLayers returns the number of layers.
func (p *Pipeline) NumLayers() int { return len(p.layers) }

// Enabled reports whether the pipeline has any layer.
func (p *Pipeline) Enabled() bool { return p != nil && len(p.layers) > 0 }

// SketchWidth returns the length of a Sketch.
func (p *Pipeline) SketchWidth() int { return len(p.layers) * p.out }

// Project computes the sketch of v.
func (p *Pipeline) Project(v []float32) Sketch {
	return p.ProjectInto(nil, v)
}

// ProjectInto computes the sketch of v into dst, reallocating it if too small.
// v must have the pipeline's input dimension.
func (p *Pipeline) ProjectInto(dst Sketch, v []float32) Sketch {
	width := p.SketchWidth()
	if cap(dst) < width {
		dst = make(Sketch, width)
	}
	dst = dst[:width]
	if width == 0 {
		return dst
	}

	in := make([]float64, p.dim)
	for i, x := range v[:p.dim] {
		in[i] = float64(x)
	}
	x := mat.NewVecDense(p.dim, in)
	y := mat.NewVecDense(p.out, nil)

	for l, layer := range p.layers {
		y.MulVec(layer.T(), x)
		part := dst.Layer(l, p.out)
		for i := range part {
			part[i] = float32(y.AtVec(i))
		}
	}

	return dst
}

// Encode writes the layers.
func (p *Pipeline) Encode(w *persistence.Writer) error {
	if err := w.WriteSection(persistence.SectionProjection); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(p.dim)); err != nil { //nolint:gosec // validated in New
		return err
	}
	if err := w.WriteUint32(uint32(p.out)); err != nil { //nolint:gosec // <= dim
		return err
	}
	if err := w.WriteUint32(uint32(len(p.layers))); err != nil { //nolint:gosec // <= MaxLayers
		return err
	}

	buf := make([]uint64, p.dim*p.out)
	for _, layer := range p.layers {
		for i, v := range layer.RawMatrix().Data {
			buf[i] = math.Float64bits(v)
		}
		if err := w.WriteUint64Slice(buf); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads layers written by Encode.
func Decode(r *persistence.Reader) (*Pipeline, error) {
	if err := r.ExpectSection(persistence.SectionProjection); err != nil {
		return nil, err
	}
	dim, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	out, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if dim == 0 || out == 0 || out > dim || n > MaxLayers {
		return nil, fmt.Errorf("%w: dim %d, out %d, layers %d", ErrCorrupt, dim, out, n)
	}
	if uint64(dim)*uint64(out) > uint64(persistence.MaxSliceLen) {
		return nil, fmt.Errorf("%w: layer of %dx%d", ErrCorrupt, dim, out)
	}

	p := &Pipeline{dim: int(dim), out: int(out), layers: make([]*mat.Dense, n)}
	for l := range p.layers {
		bits, err := r.ReadUint64Slice(p.dim * p.out)
		if err != nil {
			return nil, err
		}
		data := make([]float64, len(bits))
		for i, b := range bits {
			data[i] = math.Float64frombits(b)
		}
		p.layers[l] = mat.NewDense(p.dim, p.out, data)
	}

	return p, nil
}
