package roargraph

import (
	"log/slog"

	"github.com/hupe1980/roargraph/codec"
)

// Builder is an immutable fluent builder for creating indexes.
// Each method returns a new builder with the updated configuration.
//
// Example:
//
//	idx, err := roargraph.NewBuilder[string](128).
//	    Cosine().
//	    MaxDegree(48).
//	    Quantized().
//	    EFSearch(100).
//	    Build()
type Builder[K comparable] struct {
	dimension int
	metric    Metric
	opts      []Option
}

// NewBuilder creates a new index builder with the specified dimension.
// The metric defaults to L2.
func NewBuilder[K comparable](dimension int) Builder[K] {
	return Builder[K]{
		dimension: dimension,
		metric:    L2,
	}
}

func (b Builder[K]) with(o Option) Builder[K] {
	b.opts = append(b.opts[:len(b.opts):len(b.opts)], o)
	return b
}

// L2 sets the distance metric to Euclidean distance.
func (b Builder[K]) L2() Builder[K] {
	b.metric = L2
	return b
}

// Cosine sets the distance metric to cosine distance (normalized vectors).
func (b Builder[K]) Cosine() Builder[K] {
	b.metric = Cosine
	return b
}

// Metric sets the distance metric.
func (b Builder[K]) Metric(m Metric) Builder[K] {
	b.metric = m
	return b
}

// MaxDegree sets the maximum number of out-edges per node.
// Higher values improve recall but increase memory usage.
// Default: 32.
func (b Builder[K]) MaxDegree(m int) Builder[K] {
	return b.with(WithMaxDegree(m))
}

// ProjectionLayers sets the number of random projection layers.
// Zero disables the projection prefilter.
// Default: 4.
func (b Builder[K]) ProjectionLayers(n int) Builder[K] {
	return b.with(WithNumProjectionLayers(n))
}

// Quantized stores vectors as 8-bit codes.
func (b Builder[K]) Quantized() Builder[K] {
	return b.with(WithQuantization(true))
}

// EFSearch sets the default search beam width.
// Default: 64.
func (b Builder[K]) EFSearch(ef int) Builder[K] {
	return b.with(WithEFSearch(ef))
}

// EFConstruction sets the beam width used to link inserted vectors.
// Default: 100.
func (b Builder[K]) EFConstruction(ef int) Builder[K] {
	return b.with(WithEFConstruction(ef))
}

// Rebuild configures the rebuild scheduler: the pending change count below
// which no rebuild is considered and the latency degradation factor.
func (b Builder[K]) Rebuild(minPending int, degradationFactor float64) Builder[K] {
	return b.with(WithRebuildMinPending(minPending)).
		with(WithRebuildDegradationFactor(degradationFactor))
}

// AsyncRebuild moves scheduler-triggered rebuilds to the background.
func (b Builder[K]) AsyncRebuild() Builder[K] {
	return b.with(WithAsyncRebuild(true))
}

// StalenessTolerance sets the number of uncompiled vectors a search scans
// exactly before compiling first.
func (b Builder[K]) StalenessTolerance(n int) Builder[K] {
	return b.with(WithStalenessTolerance(n))
}

// MemoryLimit sets a hard limit on index buffer memory.
func (b Builder[K]) MemoryLimit(bytes int64) Builder[K] {
	return b.with(WithMemoryLimit(bytes))
}

// Workers bounds the parallelism of graph construction.
func (b Builder[K]) Workers(n int) Builder[K] {
	return b.with(WithWorkers(n))
}

// RandomSeed sets the seed for deterministic index construction.
func (b Builder[K]) RandomSeed(seed uint64) Builder[K] {
	return b.with(WithRandomSeed(seed))
}

// Logger sets the structured logger for operation tracing.
func (b Builder[K]) Logger(l *Logger) Builder[K] {
	return b.with(WithLogger(l))
}

// LogLevel sets a text logger with the given level.
func (b Builder[K]) LogLevel(level slog.Level) Builder[K] {
	return b.with(WithLogLevel(level))
}

// Metrics sets the metrics collector for monitoring.
func (b Builder[K]) Metrics(mc MetricsCollector) Builder[K] {
	return b.with(WithMetricsCollector(mc))
}

// Codec sets the id codec for serialization.
func (b Builder[K]) Codec(c codec.Codec) Builder[K] {
	return b.with(WithCodec(c))
}

// Options appends raw options.
func (b Builder[K]) Options(opts ...Option) Builder[K] {
	for _, o := range opts {
		b = b.with(o)
	}
	return b
}

// Build creates the index.
func (b Builder[K]) Build() (*Index[K], error) {
	return New[K](b.dimension, b.metric, b.opts...)
}

// MustBuild creates the index, panicking on error.
func (b Builder[K]) MustBuild() *Index[K] {
	idx, err := b.Build()
	if err != nil {
		panic(err)
	}
	return idx
}
