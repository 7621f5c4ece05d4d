// Package distance provides public API for vector distance calculations.
package distance

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/hupe1980/roargraph/internal/math32"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return math32.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return math32.SquaredL2(a, b)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := math32.Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := float32(1 / math.Sqrt(float64(norm2)))
	math32.ScaleInPlace(v, inv)
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	// MetricL2 is the Euclidean distance.
	MetricL2 Metric = iota
	// MetricCosine is the cosine distance (1 - cosine similarity).
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricCosine:
		return "Cosine"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	return m == MetricL2 || m == MetricCosine
}

// ParseMetric parses a metric name ("l2", "euclidean", "cosine").
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l2", "euclidean":
		return MetricL2, nil
	case "cosine":
		return MetricCosine, nil
	default:
		return 0, fmt.Errorf("unsupported metric: %q", s)
	}
}

// Func is a function type for distance calculation.
//
// All Funcs returned by Provider are "smaller is closer" scores, suitable for
// ranking. Use Report to convert a score into the user-facing distance.
type Func func(a, b []float32) float32

// Provider returns the ranking score function for the given metric.
//
// Cosine assumes both inputs are L2-normalized.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricCosine:
		return CosineScore, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// CosineScore returns 1 - dot(a, b) for normalized a and b.
func CosineScore(a, b []float32) float32 {
	return 1 - math32.Dot(a, b)
}

// Report converts an internal ranking score into the distance reported to callers:
// the Euclidean distance for MetricL2 and 1 - cosine similarity for MetricCosine.
func Report(m Metric, score float32) float32 {
	if m == MetricL2 {
		if score <= 0 {
			return 0
		}
		return float32(math.Sqrt(float64(score)))
	}
	return score
}
