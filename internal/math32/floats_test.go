package math32

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Positive values", []float32{1, 2, 3}, []float32{4, 5, 6}, 32.0},
		{"Negative values", []float32{-1, -2, -3}, []float32{-4, -5, -6}, 32.0},
		{"More than 8", []float32{1, 2, 3, 1, 2, 3, 1, 2, 3}, []float32{4, 5, 6, 4, 5, 6, 4, 5, 6}, 96.0},
		{"Mixed values", []float32{1, -2, 3}, []float32{-4, 5, -6}, -32.0},
		{"Zero values", []float32{0, 0, 0}, []float32{0, 0, 0}, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Dot(tc.a, tc.b))
			assert.Equal(t, tc.expected, dotGeneric(tc.a, tc.b))
			assert.Equal(t, tc.expected, dotUnrolled(tc.a, tc.b))
		})
	}
}

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Positive values", []float32{1, 2, 3}, []float32{4, 5, 6}, 27.0},
		{"Negative values", []float32{-1, -2, -3}, []float32{-4, -5, -6}, 27.0},
		{"More than 8", []float32{1, 2, 3, 1, 2, 3, 1, 2, 3}, []float32{4, 5, 6, 4, 5, 6, 4, 5, 6}, 81.0},
		{"Mixed values", []float32{1, -2, 3}, []float32{-4, 5, -6}, 155.0},
		{"Zero values", []float32{0, 0, 0}, []float32{0, 0, 0}, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SquaredL2(tc.a, tc.b))
			assert.Equal(t, tc.expected, squaredL2Generic(tc.a, tc.b))
			assert.Equal(t, tc.expected, squaredL2Unrolled(tc.a, tc.b))
		})
	}
}

func TestUnrolledMatchesGeneric(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{1, 7, 8, 9, 31, 64, 129} {
		a := make([]float32, n)
		b := make([]float32, n)
		for i := range a {
			a[i] = rng.Float32()*2 - 1
			b[i] = rng.Float32()*2 - 1
		}
		assert.InDelta(t, dotGeneric(a, b), dotUnrolled(a, b), 1e-4, "n=%d", n)
		assert.InDelta(t, squaredL2Generic(a, b), squaredL2Unrolled(a, b), 1e-4, "n=%d", n)
	}
}

func TestUint8Kernels(t *testing.T) {
	query := []float32{0.5, -1, 2, 3}
	code := []uint8{0, 10, 255, 128}
	scale, offset := float32(0.02), float32(-1.5)

	decoded := make([]float32, len(code))
	for i, c := range code {
		decoded[i] = float32(c)*scale + offset
	}

	assert.InDelta(t, squaredL2Generic(query, decoded), SquaredL2Uint8(query, code, scale, offset), 1e-4)
	assert.InDelta(t, dotGeneric(query, decoded), DotUint8(query, code, scale, offset), 1e-4)
}

func TestScaleInPlace(t *testing.T) {
	v := []float32{1, 2, 3}
	ScaleInPlace(v, 2)
	assert.Equal(t, []float32{2, 4, 6}, v)
}

func BenchmarkDot(b *testing.B) {
	const size = 1536
	va := make([]float32, size)
	vb := make([]float32, size)
	for i := range va {
		va[i] = rand.Float32() // nolint gosec
		vb[i] = rand.Float32() // nolint gosec
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Dot(va, vb)
	}
}

func BenchmarkSquaredL2(b *testing.B) {
	const size = 1536
	va := make([]float32, size)
	vb := make([]float32, size)
	for i := range va {
		va[i] = rand.Float32() // nolint gosec
		vb[i] = rand.Float32() // nolint gosec
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = SquaredL2(va, vb)
	}
}
