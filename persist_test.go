package roargraph

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roargraph/codec"
	"github.com/hupe1980/roargraph/persistence"
	"github.com/hupe1980/roargraph/testutil"
)

func assertSameResults(t *testing.T, a, b *Index[int], queries [][]float32) {
	t.Helper()
	ctx := context.Background()
	for _, q := range queries {
		ra, err := a.Search(ctx, q, 5)
		require.NoError(t, err)
		rb, err := b.Search(ctx, q, 5)
		require.NoError(t, err)
		assert.Equal(t, ra, rb)
	}
}

func TestWriteToLoad(t *testing.T) {
	for _, quantized := range []bool{false, true} {
		t.Run(map[bool]string{false: "Raw", true: "Quantized"}[quantized], func(t *testing.T) {
			rng := testutil.NewRNG(21)
			vecs := rng.UniformVectors(300, 16)
			idx := newTestIndex(t, 16, L2, WithQuantization(quantized), WithMaxDegree(16))
			insertAll(t, idx, vecs)
			require.NoError(t, idx.Remove(context.Background(), 7))
			require.NoError(t, idx.Finalize(context.Background()))

			var buf bytes.Buffer
			n, err := idx.WriteTo(&buf)
			require.NoError(t, err)
			assert.Equal(t, int64(buf.Len()), n)

			loaded, err := Load[int](&buf)
			require.NoError(t, err)
			t.Cleanup(func() { _ = loaded.Close() })

			assert.Equal(t, idx.Len(), loaded.Len())
			assert.Equal(t, idx.IDs(), loaded.IDs())
			assert.Equal(t, StateReady, loaded.State())
			assert.False(t, loaded.Contains(7))

			st, lst := idx.Stats(), loaded.Stats()
			assert.Equal(t, st.Edges, lst.Edges)
			assert.Equal(t, st.MaxDegree, lst.MaxDegree)
			assert.Equal(t, st.Quantized, lst.Quantized)
			assert.Equal(t, st.Generation, lst.Generation)

			for _, id := range []int{0, 150, 299} {
				want, err := idx.Get(id)
				require.NoError(t, err)
				got, err := loaded.Get(id)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}

			assertSameResults(t, idx, loaded, rng.UniformVectors(20, 16))

			// The loaded index keeps accepting writes.
			require.NoError(t, loaded.Insert(context.Background(), 1000, vecs[0]))
		})
	}
}

func TestLoadUncompiled(t *testing.T) {
	rng := testutil.NewRNG(22)
	idx := newTestIndex(t, 8, Cosine, WithRebuildMinPending(1_000_000))
	insertAll(t, idx, rng.UniformVectors(50, 8))
	require.Equal(t, StateBuilding, idx.State())

	data, err := idx.MarshalBinary()
	require.NoError(t, err)

	loaded, err := Load[int](bytes.NewReader(data))
	require.NoError(t, err)
	defer loaded.Close()

	assert.Equal(t, StateBuilding, loaded.State())
	assert.Equal(t, Cosine, loaded.Metric())

	res, err := loaded.Search(context.Background(), rng.UniformVectors(1, 8)[0], 3)
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestMarshalUnmarshal(t *testing.T) {
	rng := testutil.NewRNG(23)
	idx, err := New[string](4, L2, WithCodec(codec.JSON{}))
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	for i, v := range rng.UniformVectors(20, 4) {
		require.NoError(t, idx.Insert(ctx, string(rune('a'+i)), v))
	}

	data, err := idx.MarshalBinary()
	require.NoError(t, err)

	var other Index[string]
	require.NoError(t, other.UnmarshalBinary(data))
	defer other.Close()

	assert.Equal(t, 4, other.Dimension())
	assert.Equal(t, idx.IDs(), other.IDs())

	into, err := New[string](99, Cosine, WithCodec(codec.JSON{}))
	require.NoError(t, err)
	defer into.Close()
	require.NoError(t, into.UnmarshalBinary(data))
	assert.Equal(t, 4, into.Dimension())
	assert.Equal(t, L2, into.Metric())
	assert.Equal(t, 20, into.Len())
}

func TestLoadCorrupt(t *testing.T) {
	rng := testutil.NewRNG(24)
	idx := newTestIndex(t, 8, L2)
	insertAll(t, idx, rng.UniformVectors(30, 8))

	data, err := idx.MarshalBinary()
	require.NoError(t, err)

	t.Run("Checksum", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[len(bad)-1] ^= 0xff
		_, err := Load[int](bytes.NewReader(bad))
		require.ErrorIs(t, err, ErrCorruptSnapshot)
	})

	t.Run("Truncated", func(t *testing.T) {
		for _, n := range []int{0, 10, persistence.HeaderSize + 3, len(data) / 2, len(data) - 2} {
			_, err := Load[int](bytes.NewReader(data[:n]))
			require.ErrorIs(t, err, ErrCorruptSnapshot, "length %d", n)
		}
	})

	t.Run("Magic", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[0] ^= 0xff
		_, err := Load[int](bytes.NewReader(bad))
		require.ErrorIs(t, err, ErrCorruptSnapshot)
	})

	t.Run("Payload", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[len(bad)/2] ^= 0x5a
		_, err := Load[int](bytes.NewReader(bad))
		require.ErrorIs(t, err, ErrCorruptSnapshot)
	})
}

func TestSaveLoadFile(t *testing.T) {
	rng := testutil.NewRNG(25)
	vecs := rng.UniformVectors(100, 8)
	idx := newTestIndex(t, 8, L2)
	insertAll(t, idx, vecs)

	path := filepath.Join(t.TempDir(), "index.rgx")
	require.NoError(t, idx.SaveToFile(path))

	loaded, err := LoadFromFile[int](path)
	require.NoError(t, err)
	defer loaded.Close()

	assert.Equal(t, 100, loaded.Len())
	assertSameResults(t, idx, loaded, vecs[:10])

	_, err = LoadFromFile[int](filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
