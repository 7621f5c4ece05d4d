package projection

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roargraph/internal/math32"
	"github.com/hupe1980/roargraph/model"
	"github.com/hupe1980/roargraph/persistence"
	"github.com/hupe1980/roargraph/testutil"
)

func TestOutputDim(t *testing.T) {
	assert.Equal(t, 8, OutputDim(8))
	assert.Equal(t, 32, OutputDim(64))
	assert.Equal(t, 32, OutputDim(128))
	assert.Equal(t, 192, OutputDim(768))
}

func TestNew(t *testing.T) {
	_, err := New(0)
	require.ErrorIs(t, err, ErrInvalidDimension)

	_, err = New(8, func(o *Options) { o.NumLayers = -1 })
	require.ErrorIs(t, err, ErrInvalidLayers)

	p, err := New(128)
	require.NoError(t, err)
	assert.Equal(t, 4, p.NumLayers())
	assert.Equal(t, 32, p.OutputDim())
	assert.Equal(t, 128, p.SketchWidth())
	assert.True(t, p.Enabled())

	off, err := New(128, func(o *Options) { o.NumLayers = 0 })
	require.NoError(t, err)
	assert.False(t, off.Enabled())
	assert.Empty(t, off.Project(make([]float32, 128)))
}

func TestProjectDeterministic(t *testing.T) {
	rng := testutil.NewRNG(1)
	v := rng.UniformVectors(1, 64)[0]

	a, err := New(64, func(o *Options) { o.Seed = 7 })
	require.NoError(t, err)
	b, err := New(64, func(o *Options) { o.Seed = 7 })
	require.NoError(t, err)
	c, err := New(64, func(o *Options) { o.Seed = 8 })
	require.NoError(t, err)

	assert.Equal(t, a.Project(v), b.Project(v))
	assert.NotEqual(t, a.Project(v), c.Project(v))
}

func TestProjectPreservesDistances(t *testing.T) {
	rng := testutil.NewRNG(2)
	vecs := rng.GaussianVectors(20, 256)

	p, err := New(256, func(o *Options) { o.NumLayers = 1 })
	require.NoError(t, err)

	// Johnson-Lindenstrauss: projected distances stay within a loose factor.
	for i := 1; i < len(vecs); i++ {
		orig := math32.SquaredL2(vecs[0], vecs[i])
		proj := math32.SquaredL2(p.Project(vecs[0]), p.Project(vecs[i]))
		ratio := proj / orig
		assert.Greater(t, ratio, float32(0.3))
		assert.Less(t, ratio, float32(3))
	}
}

func TestSketchStore(t *testing.T) {
	rng := testutil.NewRNG(3)
	p, err := New(32, func(o *Options) { o.NumLayers = 2 })
	require.NoError(t, err)

	s := NewSketchStore(p, nil)
	vecs := rng.UniformVectors(5, 32)
	for _, v := range vecs {
		require.NoError(t, s.Append(v))
	}
	assert.Equal(t, 5, s.Len())
	assert.Equal(t, p.Project(vecs[2]), s.Get(2))

	s.SwapRemove(1)
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, p.Project(vecs[4]), s.Get(1))

	s.SwapRemove(3)
	assert.Equal(t, 3, s.Len())
	assert.Positive(t, s.MemoryFootprint())

	s.Reset()
	assert.Equal(t, 0, s.Len())
}

func TestFilter(t *testing.T) {
	rng := testutil.NewRNG(4)
	const n = 400
	vecs := rng.GaussianVectors(n, 64)

	p, err := New(64)
	require.NoError(t, err)
	s := NewSketchStore(p, nil)
	for _, v := range vecs {
		require.NoError(t, s.Append(v))
	}

	all := make([]model.NodeID, n)
	for i := range all {
		all[i] = model.NodeID(i)
	}

	// A stored vector survives a filter for itself.
	for _, target := range []int{0, 17, 399} {
		got := s.Filter(s.Get(model.NodeID(target)), all, 10)
		require.Len(t, got, 10)
		assert.Equal(t, model.NodeID(target), got[0])
	}

	// Small candidate sets pass through untouched.
	few := all[:5]
	assert.Equal(t, few, s.Filter(s.Get(0), few, 10))
}

func TestFilterKeepsNeighbors(t *testing.T) {
	rng := testutil.NewRNG(5)
	vecs := rng.GaussianVectors(500, 64)

	p, err := New(64)
	require.NoError(t, err)
	s := NewSketchStore(p, nil)
	for _, v := range vecs {
		require.NoError(t, s.Append(v))
	}

	all := make([]model.NodeID, len(vecs))
	for i := range all {
		all[i] = model.NodeID(i)
	}

	query := rng.GaussianVectors(1, 64)[0]
	truth := testutil.BruteForceSearch(vecs, query, 5)
	kept := s.Filter(p.Project(query), all, 100)

	hits := 0
	for _, r := range truth {
		for _, k := range kept {
			if uint64(k) == r.ID {
				hits++
				break
			}
		}
	}
	assert.GreaterOrEqual(t, hits, 2)
}

func TestEncodeDecode(t *testing.T) {
	rng := testutil.NewRNG(6)
	p, err := New(48, func(o *Options) { o.NumLayers = 3 })
	require.NoError(t, err)
	s := NewSketchStore(p, nil)
	vecs := rng.UniformVectors(10, 48)
	for _, v := range vecs {
		require.NoError(t, s.Append(v))
	}

	var buf bytes.Buffer
	w := persistence.NewWriter(&buf)
	require.NoError(t, p.Encode(w))
	require.NoError(t, s.Encode(w))
	require.NoError(t, w.Finish())

	r := persistence.NewBytesReader(buf.Bytes())
	p2, err := Decode(r)
	require.NoError(t, err)
	s2, err := DecodeSketchStore(r, p2, nil)
	require.NoError(t, err)
	require.NoError(t, r.Verify())

	assert.Equal(t, p.OutputDim(), p2.OutputDim())
	assert.Equal(t, p.NumLayers(), p2.NumLayers())
	assert.Equal(t, p.Project(vecs[0]), p2.Project(vecs[0]))
	assert.Equal(t, s.Len(), s2.Len())
	assert.Equal(t, s.Get(9), s2.Get(9))
}
