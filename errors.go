package roargraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/roargraph/distance"
	"github.com/hupe1980/roargraph/internal/graph"
	"github.com/hupe1980/roargraph/internal/mem"
	"github.com/hupe1980/roargraph/internal/projection"
	"github.com/hupe1980/roargraph/internal/resource"
	"github.com/hupe1980/roargraph/internal/vectorstore"
	"github.com/hupe1980/roargraph/persistence"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrIDNotFound is returned when an id is not in the index.
	ErrIDNotFound = errors.New("id not found")

	// ErrDuplicateID is returned when inserting an id that is already present.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrCapacityExceeded is returned when a buffer cannot grow: the memory
	// limit refused the reservation or the size overflows.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInternalInconsistency is returned when a compiled structure violates
	// its invariants. It is wrapped with detail.
	ErrInternalInconsistency = errors.New("internal inconsistency")

	// ErrCorruptSnapshot is returned when serialized index data cannot be
	// decoded.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("index closed")

	// ErrBatchLengthMismatch is returned when a batch has a different number
	// of ids and vectors.
	ErrBatchLengthMismatch = errors.New("batch length mismatch")

	// ErrInvalidEFValue is returned when an explicit search EF is below k.
	ErrInvalidEFValue = errors.New("ef must be at least k")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidDimension indicates an invalid configured dimension.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidDimension struct {
	Dimension int
	cause     error
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

func (e *ErrInvalidDimension) Unwrap() error { return e.cause }

// ErrInvalidMetric indicates an unsupported distance metric.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidMetric struct {
	Metric distance.Metric
	cause  error
}

func (e *ErrInvalidMetric) Error() string {
	return fmt.Sprintf("invalid metric: %v", e.Metric)
}

func (e *ErrInvalidMetric) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Context errors pass through untouched.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var dm *vectorstore.DimensionError
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	// Capacity unification.
	if errors.Is(err, vectorstore.ErrCapacityExceeded) ||
		errors.Is(err, graph.ErrCapacityExceeded) ||
		errors.Is(err, projection.ErrCapacityExceeded) ||
		errors.Is(err, resource.ErrMemoryLimitExceeded) ||
		errors.Is(err, mem.ErrOverflow) {
		return fmt.Errorf("%w: %w", ErrCapacityExceeded, err)
	}

	if errors.Is(err, graph.ErrInternalInconsistency) {
		return fmt.Errorf("%w: %w", ErrInternalInconsistency, err)
	}

	// Decoding failures.
	if errors.Is(err, vectorstore.ErrCorrupt) ||
		errors.Is(err, graph.ErrCorrupt) ||
		errors.Is(err, projection.ErrCorrupt) ||
		errors.Is(err, persistence.ErrInvalidMagic) ||
		errors.Is(err, persistence.ErrInvalidVersion) ||
		errors.Is(err, persistence.ErrTruncated) ||
		errors.Is(err, persistence.ErrTooLarge) ||
		persistence.IsChecksumMismatch(err) {
		return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	var se *persistence.SectionError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}

	return err
}
