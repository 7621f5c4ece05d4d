package roargraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roargraph/codec"
	"github.com/hupe1980/roargraph/testutil"
)

func TestBuilder_Basic(t *testing.T) {
	idx, err := NewBuilder[string](4).Build()
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, 4, idx.Dimension())
	assert.Equal(t, L2, idx.Metric())

	ctx := context.Background()
	require.NoError(t, idx.Insert(ctx, "a", []float32{1, 2, 3, 4}))
	assert.True(t, idx.Contains("a"))
}

func TestBuilder_FullOptions(t *testing.T) {
	mc := &BasicMetricsCollector{}
	idx, err := NewBuilder[int](8).
		Cosine().
		MaxDegree(12).
		ProjectionLayers(2).
		Quantized().
		EFSearch(40).
		EFConstruction(60).
		Rebuild(10, 1.5).
		StalenessTolerance(5).
		Workers(2).
		RandomSeed(7).
		Metrics(mc).
		Logger(NoopLogger()).
		Codec(codec.JSON{}).
		Build()
	require.NoError(t, err)
	defer idx.Close()

	st := idx.Stats()
	assert.Equal(t, Cosine, st.Metric)
	assert.Equal(t, 12, st.MaxDegree)
	assert.Equal(t, 2, st.ProjectionLayers)
	assert.True(t, st.Quantized)
	assert.Equal(t, "json", idx.Codec().Name())

	ctx := context.Background()
	rng := testutil.NewRNG(9)
	for i, v := range rng.UniformVectors(20, 8) {
		require.NoError(t, idx.Insert(ctx, i, v))
	}
	assert.Equal(t, int64(20), mc.GetStats().InsertCount)
}

func TestBuilder_Immutable(t *testing.T) {
	base := NewBuilder[int](4).MaxDegree(8)
	a := base.MaxDegree(16)
	b := base.MaxDegree(24)

	ia := a.MustBuild()
	defer ia.Close()
	ib := b.MustBuild()
	defer ib.Close()

	assert.Equal(t, 16, ia.Stats().MaxDegree)
	assert.Equal(t, 24, ib.Stats().MaxDegree)
}

func TestBuilder_MustBuild_Panics(t *testing.T) {
	assert.Panics(t, func() {
		NewBuilder[int](0).MustBuild()
	})
}
