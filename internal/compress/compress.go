// Package compress implements the block framing used for snapshot payloads.
//
// A stream is a sequence of blocks:
//
//	[UncompressedSize uint32][StoredSize uint32][Data...]
//
// StoredSize 0 means Data is the raw block. Blocks that do not shrink by at
// least 10% are stored raw.
package compress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type is a block compression algorithm.
type Type uint8

const (
	// None stores blocks raw.
	None Type = 0
	// LZ4 is fast block compression.
	LZ4 Type = 1
	// ZSTD trades speed for ratio.
	ZSTD Type = 2
)

const (
	blockHeaderSize = 8

	// DefaultBlockSize is the uncompressed size of a full block.
	DefaultBlockSize = 256 * 1024

	// MaxBlockSize bounds the uncompressed size a reader accepts.
	MaxBlockSize = 64 * 1024 * 1024
)

var (
	// ErrCorrupt is returned for malformed block streams.
	ErrCorrupt = errors.New("compress: corrupt block")
	// ErrUnknownType is returned for an unsupported compression type.
	ErrUnknownType = errors.New("compress: unknown type")
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t <= ZSTD
}

// ParseType parses the String form of a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(MaxBlockSize))
}

// encode compresses data into dst. It returns nil when the block does not
// compress.
func encode(t Type, data, dst []byte) ([]byte, error) {
	switch t {
	case LZ4:
		dst = growTo(dst, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil || n == 0 {
			return nil, err
		}
		return dst[:n], nil
	case ZSTD:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, dst[:0]), nil
	case None:
		return nil, nil
	}
	return nil, ErrUnknownType
}

func decode(t Type, src, dst []byte) ([]byte, error) {
	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if n != len(dst) {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return dst, nil
	case ZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)
		want := len(dst)
		out, err := dec.DecodeAll(src, dst[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if len(out) != want {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	case None:
		return nil, fmt.Errorf("%w: compressed block in uncompressed stream", ErrCorrupt)
	}
	return nil, ErrUnknownType
}

func growTo(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

// Writer compresses everything written to it in blocks. Close flushes the
// last block; it does not close the underlying writer.
type Writer struct {
	w         io.Writer
	typ       Type
	blockSize int
	buf       []byte
	scratch   []byte
	written   int64
	err       error
}

// NewWriter creates a block writer. blockSize <= 0 selects DefaultBlockSize.
func NewWriter(w io.Writer, t Type, blockSize int) *Writer {
	if blockSize <= 0 || blockSize > MaxBlockSize {
		blockSize = DefaultBlockSize
	}
	return &Writer{
		w:         w,
		typ:       t,
		blockSize: blockSize,
		buf:       make([]byte, 0, blockSize),
	}
}

// Write buffers p, flushing full blocks.
func (c *Writer) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	total := 0
	for len(p) > 0 {
		n := min(len(p), c.blockSize-len(c.buf))
		c.buf = append(c.buf, p[:n]...)
		total += n
		p = p[n:]
		if len(c.buf) == c.blockSize {
			if err := c.flush(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (c *Writer) flush() error {
	if len(c.buf) == 0 {
		return nil
	}

	compressed, err := encode(c.typ, c.buf, c.scratch)
	if err != nil {
		c.err = err
		return err
	}
	c.scratch = compressed[:0]

	var hdr [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(len(c.buf))) //nolint:gosec // <= MaxBlockSize
	payload := c.buf
	if len(compressed) > 0 && len(compressed)*10 < len(c.buf)*9 {
		binary.LittleEndian.PutUint32(hdr[4:], uint32(len(compressed))) //nolint:gosec // bounded by block size
		payload = compressed
	}

	if _, err := c.w.Write(hdr[:]); err != nil {
		c.err = err
		return err
	}
	if _, err := c.w.Write(payload); err != nil {
		c.err = err
		return err
	}
	c.written += int64(blockHeaderSize + len(payload))
	c.buf = c.buf[:0]
	return nil
}

// Flush writes the buffered partial block.
func (c *Writer) Flush() error {
	if c.err != nil {
		return c.err
	}
	return c.flush()
}

// Close flushes the last block.
func (c *Writer) Close() error {
	return c.Flush()
}

// BytesWritten returns the framed bytes written so far.
func (c *Writer) BytesWritten() int64 {
	return c.written
}

// Reader decompresses a block stream.
type Reader struct {
	r       io.Reader
	typ     Type
	block   []byte
	pos     int
	scratch []byte
	err     error
}

// NewReader creates a reader over a stream written by a Writer of type t.
func NewReader(r io.Reader, t Type) *Reader {
	return &Reader{r: r, typ: t}
}

// Read implements io.Reader.
func (c *Reader) Read(p []byte) (int, error) {
	for c.pos == len(c.block) {
		if c.err != nil {
			return 0, c.err
		}
		c.err = c.next()
	}
	n := copy(p, c.block[c.pos:])
	c.pos += n
	return n, nil
}

func (c *Reader) next() error {
	var hdr [blockHeaderSize]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("%w: truncated header", ErrCorrupt)
	}

	size := binary.LittleEndian.Uint32(hdr[0:])
	stored := binary.LittleEndian.Uint32(hdr[4:])
	if size == 0 || size > MaxBlockSize || stored >= size {
		return fmt.Errorf("%w: invalid block sizes %d/%d", ErrCorrupt, size, stored)
	}

	block := growTo(c.block, int(size))
	if stored == 0 {
		if _, err := io.ReadFull(c.r, block); err != nil {
			return fmt.Errorf("%w: truncated block", ErrCorrupt)
		}
	} else {
		c.scratch = growTo(c.scratch, int(stored))
		if _, err := io.ReadFull(c.r, c.scratch); err != nil {
			return fmt.Errorf("%w: truncated block", ErrCorrupt)
		}
		var err error
		if block, err = decode(c.typ, c.scratch, block); err != nil {
			return err
		}
	}

	c.block = block
	c.pos = 0
	return nil
}

// Compress frames data in one call.
func Compress(data []byte, t Type) ([]byte, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf, t, 0)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte, t Type) ([]byte, error) {
	return io.ReadAll(NewReader(bytes.NewReader(data), t))
}
