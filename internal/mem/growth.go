package mem

import (
	"errors"
	"math"
	"unsafe"
)

const (
	// MinCapacity is the smallest row capacity handed out by NextCapacity.
	MinCapacity = 16

	smallRows  = 10_000
	mediumRows = 100_000

	// MaxRows bounds every row-indexed buffer; rows are addressed by uint32.
	MaxRows = math.MaxUint32
)

// ErrOverflow is returned when a requested capacity cannot be represented.
var ErrOverflow = errors.New("mem: capacity overflow")

// NextCapacity returns the row capacity a buffer holding cur rows should grow
// to so it can hold at least need rows.
//
// The factor shrinks as the buffer grows: 2x below 10K rows, 1.5x below 100K
// rows and 1.125x above.
func NextCapacity(cur, need int) (int, error) {
	if need < 0 || cur < 0 {
		return 0, ErrOverflow
	}
	if need > MaxRows {
		return 0, ErrOverflow
	}
	if cur >= need {
		return cur, nil
	}

	c := max(cur, MinCapacity)
	for c < need {
		var next int
		switch {
		case c < smallRows:
			next = c * 2
		case c < mediumRows:
			next = c + c/2
		default:
			next = c + c/8
		}
		if next <= c {
			next = c + 1
		}
		c = next
	}

	return min(c, MaxRows), nil
}

// Reserver accounts for memory before a buffer grows.
type Reserver interface {
	// Reserve claims bytes. A non-nil error aborts the growth.
	Reserve(bytes int64) error
}

// Grow makes room for at least rows rows of width elements each in s,
// preserving its contents. It returns s unchanged when it is large enough.
//
// The returned slice has the same length as s. The old backing array is not
// touched, so callers may publish the new slice and drop the old one.
func Grow[T any](s []T, rows, width int) ([]T, error) {
	return GrowWith(nil, s, rows, width, nil)
}

// GrowWith is Grow with memory accounting and a custom allocator.
//
// The bytes of the added capacity are reserved through r before anything is
// allocated; a refused reservation leaves s untouched. alloc returns a slice
// of length n and defaults to make.
func GrowWith[T any](r Reserver, s []T, rows, width int, alloc func(n int) []T) ([]T, error) {
	if width <= 0 || rows < 0 {
		return nil, ErrOverflow
	}
	if rows > math.MaxInt/width {
		return nil, ErrOverflow
	}
	if cap(s) >= rows*width {
		return s, nil
	}

	newRows, err := NextCapacity(cap(s)/width, rows)
	if err != nil {
		return nil, err
	}
	if newRows > math.MaxInt/width {
		return nil, ErrOverflow
	}
	n := newRows * width

	if r != nil {
		var zero T
		extra := int64(n-cap(s)) * int64(unsafe.Sizeof(zero))
		if err := r.Reserve(extra); err != nil {
			return nil, err
		}
	}

	var out []T
	if alloc != nil {
		out = alloc(n)[:len(s):n]
	} else {
		out = make([]T, len(s), n)
	}
	copy(out, s)

	return out, nil
}
