package quantization

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/hupe1980/roargraph/internal/math32"
)

const (
	// Levels is the number of quantization steps between a vector's minimum
	// and maximum component.
	Levels = 255

	// Epsilon is the smallest range that is quantized with a derived scale.
	// Narrower ranges use a scale of 1.0.
	Epsilon = 1e-7

	// ParamsSize is the encoded size of Params in bytes.
	ParamsSize = 8
)

// ErrInvalidParams is returned when decoding malformed parameters.
var ErrInvalidParams = errors.New("quantization: invalid parameters")

// Params holds the per-vector reconstruction parameters.
// Scale is always > 0.
type Params struct {
	Scale  float32
	Offset float32
}

// Fit computes the quantization parameters for v.
func Fit(v []float32) Params {
	if len(v) == 0 {
		return Params{Scale: 1}
	}

	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}

	scale := (hi - lo) / Levels
	if hi-lo < Epsilon || scale <= 0 || math.IsInf(float64(scale), 0) || math.IsNaN(float64(scale)) {
		scale = 1
	}

	return Params{Scale: scale, Offset: lo}
}

// Encode quantizes v into dst, which must have len(v) bytes, and returns the
// parameters needed to decode it.
func Encode(dst []uint8, v []float32) Params {
	p := Fit(v)
	p.EncodeInto(dst, v)
	return p
}

// EncodeInto quantizes v into dst with fixed parameters.
// Components outside the representable range are clamped.
func (p Params) EncodeInto(dst []uint8, v []float32) {
	inv := 1 / p.Scale
	for i, x := range v {
		q := math.Round(float64((x - p.Offset) * inv))
		switch {
		case q < 0 || math.IsNaN(q):
			dst[i] = 0
		case q > Levels:
			dst[i] = Levels
		default:
			dst[i] = uint8(q)
		}
	}
}

// Value reconstructs a single component.
func (p Params) Value(q uint8) float32 {
	return float32(q)*p.Scale + p.Offset
}

// Decode reconstructs the approximate vector for code into dst and returns
// it. dst is reallocated if it is too small.
func (p Params) Decode(dst []float32, code []uint8) []float32 {
	if cap(dst) < len(code) {
		dst = make([]float32, len(code))
	}
	dst = dst[:len(code)]
	for i, q := range code {
		dst[i] = p.Value(q)
	}
	return dst
}

// MaxError is the largest difference between a component and its
// reconstruction.
func (p Params) MaxError() float32 {
	return p.Scale
}

// MarshalBinary implements encoding.BinaryMarshaler.
// Format (little-endian): [scale:float32][offset:float32]
func (p Params) MarshalBinary() ([]byte, error) {
	b := make([]byte, ParamsSize)
	p.Put(b)
	return b, nil
}

// Put writes the encoded parameters into b, which must hold ParamsSize bytes.
func (p Params) Put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(p.Scale))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(p.Offset))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *Params) UnmarshalBinary(data []byte) error {
	if len(data) < ParamsSize {
		return ErrInvalidParams
	}
	scale := math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	if !(scale > 0) {
		return ErrInvalidParams
	}
	p.Scale = scale
	p.Offset = math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))
	return nil
}

// SquaredL2 returns the squared L2 distance between query and the
// vector encoded by code and p.
func SquaredL2(query []float32, code []uint8, p Params) float32 {
	return math32.SquaredL2Uint8(query, code, p.Scale, p.Offset)
}

// Dot returns the dot product of query and the vector encoded by code and p.
func Dot(query []float32, code []uint8, p Params) float32 {
	return math32.DotUint8(query, code, p.Scale, p.Offset)
}

// CompressionRatio is the size of a float32 vector divided by the size of
// its codes, ignoring the per-vector parameters.
func CompressionRatio() float32 {
	return 4
}
