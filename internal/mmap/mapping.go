package mmap

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"
)

// Advice is an access hint passed to the kernel.
type Advice int

const (
	// AdviceNormal resets any previous hint.
	AdviceNormal Advice = iota
	// AdviceSequential favors read-ahead. Snapshot decoding reads front to back.
	AdviceSequential
	// AdviceRandom disables read-ahead.
	AdviceRandom
)

var (
	// ErrClosed is returned by accessors after Close.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrOutOfBounds is returned for ranges outside the mapping.
	ErrOutOfBounds = errors.New("mmap: out of bounds")
)

// Mapping is a read-only view of a whole file.
type Mapping struct {
	data   []byte
	closed atomic.Bool
	unmap  func() error
}

// Open maps the file at path. An empty file yields an empty mapping without
// a kernel mapping behind it.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return &Mapping{}, nil
	}
	if size > math.MaxInt {
		return nil, fmt.Errorf("mmap: %s: %d bytes exceeds address space", path, size)
	}

	data, unmap, err := osMap(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("mmap: %s: %w", path, err)
	}
	return &Mapping{data: data, unmap: unmap}, nil
}

// Close releases the mapping. Slices obtained from Bytes or Slice must not be
// used afterwards. Close is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) || m.unmap == nil {
		return nil
	}
	return m.unmap()
}

// Bytes returns the whole mapping, or nil after Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the mapped length.
func (m *Mapping) Size() int { return len(m.data) }

// Slice returns data[off:off+n], clamped to the end of the mapping.
// An offset at or past the end yields io.EOF.
func (m *Mapping) Slice(off, n int64) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("%w: off=%d n=%d", ErrOutOfBounds, off, n)
	}
	size := int64(len(m.data))
	if off >= size {
		return nil, io.EOF
	}
	return m.data[off:min(size, off+n)], nil
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	src, err := m.Slice(off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	n := copy(p, src)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Advise passes an access hint for the whole mapping. Hints are best effort.
func (m *Mapping) Advise(a Advice) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(m.data) == 0 {
		return nil
	}
	return osAdvise(m.data, a)
}

// View maps the file at path for sequential reading, calls fn and unmaps it.
// fn must not retain data.
func View(path string, fn func(data []byte) error) error {
	m, err := Open(path)
	if err != nil {
		return err
	}
	defer m.Close()

	_ = m.Advise(AdviceSequential)
	return fn(m.Bytes())
}
