package compress

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compressible(n int) []byte {
	return bytes.Repeat([]byte("roargraph-csr-offsets-"), n/22+1)[:n]
}

func random(n int) []byte {
	r := rand.New(rand.NewPCG(1, 2))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.Uint32())
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty":        {},
		"small":        []byte("hello"),
		"compressible": compressible(3*DefaultBlockSize + 17),
		"random":       random(DefaultBlockSize + 5),
	}

	for _, typ := range []Type{None, LZ4, ZSTD} {
		for name, data := range inputs {
			t.Run(typ.String()+"/"+name, func(t *testing.T) {
				framed, err := Compress(data, typ)
				require.NoError(t, err)

				got, err := Decompress(framed, typ)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(data, got))
			})
		}
	}
}

func TestCompressionShrinks(t *testing.T) {
	data := compressible(DefaultBlockSize)
	for _, typ := range []Type{LZ4, ZSTD} {
		framed, err := Compress(data, typ)
		require.NoError(t, err)
		assert.Less(t, len(framed), len(data)/4, typ.String())
	}
}

func TestIncompressibleStoredRaw(t *testing.T) {
	data := random(4096)
	framed, err := Compress(data, ZSTD)
	require.NoError(t, err)

	require.Len(t, framed, blockHeaderSize+len(data))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(framed[4:]))
}

func TestWriterSmallBlocks(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, LZ4, 1024)

	data := compressible(10_000)
	for off := 0; off < len(data); off += 333 {
		_, err := w.Write(data[off:min(off+333, len(data))])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	assert.Equal(t, int64(buf.Len()), w.BytesWritten())

	got, err := io.ReadAll(NewReader(&buf, LZ4))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCorrupt(t *testing.T) {
	framed, err := Compress(compressible(DefaultBlockSize), LZ4)
	require.NoError(t, err)

	t.Run("Truncated", func(t *testing.T) {
		_, err := Decompress(framed[:len(framed)-3], LZ4)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("TruncatedHeader", func(t *testing.T) {
		_, err := Decompress(framed[:5], LZ4)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("OversizedBlock", func(t *testing.T) {
		bad := bytes.Clone(framed)
		binary.LittleEndian.PutUint32(bad[0:], MaxBlockSize+1)
		_, err := Decompress(bad, LZ4)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("WrongType", func(t *testing.T) {
		_, err := Decompress(framed, None)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("Garbage", func(t *testing.T) {
		bad := bytes.Clone(framed)
		for i := blockHeaderSize; i < len(bad); i++ {
			bad[i] = 0xff
		}
		_, err := Decompress(bad, ZSTD)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
		assert.True(t, typ.Valid())
	}

	_, err := ParseType("brotli")
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.False(t, Type(9).Valid())
	assert.Equal(t, "Type(9)", Type(9).String())
}
