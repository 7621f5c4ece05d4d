package mem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextCapacity(t *testing.T) {
	tests := []struct {
		name      string
		cur, need int
		expected  int
	}{
		{"Fits", 100, 50, 100},
		{"Minimum", 0, 1, MinCapacity},
		{"Double", 1000, 1001, 2000},
		{"OneAndHalf", 20_000, 20_001, 30_000},
		{"Eighth", 200_000, 200_001, 225_000},
		{"MultipleSteps", 16, 100, 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextCapacity(tt.cur, tt.need)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.GreaterOrEqual(t, got, tt.need)
		})
	}

	t.Run("Overflow", func(t *testing.T) {
		_, err := NextCapacity(0, -1)
		assert.ErrorIs(t, err, ErrOverflow)

		_, err = NextCapacity(0, MaxRows+1)
		assert.ErrorIs(t, err, ErrOverflow)
	})
}

func TestGrow(t *testing.T) {
	s := []float32{1, 2, 3, 4}

	out, err := Grow(s, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, s, out)
	assert.GreaterOrEqual(t, cap(out), 6)

	// The old buffer is left intact.
	out[0] = 42
	assert.Equal(t, float32(1), s[0])

	same, err := Grow(out, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, cap(out), cap(same))

	_, err = Grow(s, 1, 0)
	assert.ErrorIs(t, err, ErrOverflow)
}

type budget struct {
	limit, used int64
}

func (b *budget) Reserve(n int64) error {
	if b.used+n > b.limit {
		return errors.New("over budget")
	}
	b.used += n
	return nil
}

func TestGrowWith(t *testing.T) {
	b := &budget{limit: 1 << 20}

	out, err := GrowWith(b, []float32(nil), 1, 4, Aligned[float32])
	require.NoError(t, err)
	assert.Len(t, out, 0)
	assert.Equal(t, MinCapacity*4, cap(out))
	assert.Equal(t, int64(MinCapacity*4*4), b.used)

	// Enough room: nothing reserved.
	same, err := GrowWith(b, out, 2, 4, Aligned[float32])
	require.NoError(t, err)
	assert.Equal(t, cap(out), cap(same))
	assert.Equal(t, int64(MinCapacity*4*4), b.used)

	// Refused reservation leaves the input untouched.
	small := &budget{limit: 8}
	in := []uint8{1, 2}
	_, err = GrowWith(small, in, 100, 1, Aligned[uint8])
	assert.Error(t, err)
	assert.Equal(t, []uint8{1, 2}, in)
	assert.Zero(t, small.used)
}
