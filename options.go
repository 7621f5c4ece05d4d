package roargraph

import (
	"log/slog"

	"github.com/hupe1980/roargraph/codec"
	"github.com/hupe1980/roargraph/distance"
	"github.com/hupe1980/roargraph/internal/builder"
	"github.com/hupe1980/roargraph/internal/scheduler"
)

// Metric selects how vectors are compared.
type Metric = distance.Metric

const (
	// L2 ranks by Euclidean distance.
	L2 = distance.MetricL2
	// Cosine ranks by 1 - cosine similarity. Vectors are normalized on insert.
	Cosine = distance.MetricCosine
)

// Tier maps corpus sizes up to UpTo (inclusive) to Value. UpTo <= 0 matches
// every size.
type Tier = builder.Tier

// Defaults of the index configuration.
const (
	DefaultMaxDegree                = 32
	DefaultNumProjectionLayers      = 4
	DefaultRebuildMinPending        = 2000
	DefaultRebuildDegradationFactor = 2.0
	DefaultEFSearch                 = 64
	DefaultEFConstruction           = 100
	DefaultStalenessTolerance       = 1024
	DefaultSeedCount                = 8
	DefaultBulkBuildRatio           = 0.5
)

type options struct {
	maxDegree                int
	numProjectionLayers      int
	quantization             bool
	rebuildMinPending        int
	rebuildDegradationFactor float64
	efSearch                 int
	efConstruction           int
	stalenessTolerance       int
	seedCount                int
	trainingTiers            []Tier
	degreeTiers              []Tier
	workers                  int
	randomSeed               uint64
	memoryLimitBytes         int64
	asyncRebuild             bool
	bulkBuildRatio           float64
	codec                    codec.Codec
	metricsCollector         MetricsCollector
	logger                   *Logger
}

// Option configures index construction and loading.
type Option func(*options)

// WithMaxDegree caps the number of out-edges per node.
// Higher values improve recall but increase memory usage.
// Default: 32.
func WithMaxDegree(m int) Option {
	return func(o *options) {
		o.maxDegree = m
	}
}

// WithNumProjectionLayers sets the number of random projection layers used
// to prefilter candidates. Zero disables projection.
// Default: 4.
func WithNumProjectionLayers(n int) Option {
	return func(o *options) {
		o.numProjectionLayers = n
	}
}

// WithQuantization stores vectors as 8-bit codes with a per-vector scale and
// offset, cutting vector memory by 75%.
func WithQuantization(enabled bool) Option {
	return func(o *options) {
		o.quantization = enabled
	}
}

// WithRebuildMinPending sets the number of uncompiled changes below which
// no rebuild is considered.
// Default: 2000.
func WithRebuildMinPending(n int) Option {
	return func(o *options) {
		o.rebuildMinPending = n
	}
}

// WithRebuildDegradationFactor sets the sample/baseline search latency ratio
// that triggers a rebuild. Values <= 1 select the default.
// Default: 2.0.
func WithRebuildDegradationFactor(f float64) Option {
	return func(o *options) {
		o.rebuildDegradationFactor = f
	}
}

// WithEFSearch sets the search beam width. Searches use max(k, ef).
// Default: 64.
func WithEFSearch(ef int) Option {
	return func(o *options) {
		o.efSearch = ef
	}
}

// WithEFConstruction sets the beam width used to link inserted vectors.
// Default: 100.
func WithEFConstruction(ef int) Option {
	return func(o *options) {
		o.efConstruction = ef
	}
}

// WithStalenessTolerance sets the number of uncompiled vectors a search may
// scan exactly before it compiles the graph first.
// Default: 1024.
func WithStalenessTolerance(n int) Option {
	return func(o *options) {
		o.stalenessTolerance = n
	}
}

// WithSeedCount sets the number of entry points a traversal starts from.
// Default: 8.
func WithSeedCount(n int) Option {
	return func(o *options) {
		o.seedCount = n
	}
}

// WithTrainingTiers sets the number of training queries by corpus size.
// Tiers yielding zero switch the build to sampled (degraded) mode.
func WithTrainingTiers(tiers ...Tier) Option {
	return func(o *options) {
		o.trainingTiers = tiers
	}
}

// WithDegreeTiers sets the bipartite list length by corpus size.
func WithDegreeTiers(tiers ...Tier) Option {
	return func(o *options) {
		o.degreeTiers = tiers
	}
}

// WithWorkers bounds the parallelism of graph construction.
// Default: GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithRandomSeed makes projections and sampling reproducible.
// Default: 42.
func WithRandomSeed(seed uint64) Option {
	return func(o *options) {
		o.randomSeed = seed
	}
}

// WithMemoryLimit sets a hard limit on index buffer memory. Growth beyond it
// fails with ErrCapacityExceeded. Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimitBytes = bytes
	}
}

// WithAsyncRebuild runs scheduler-triggered rebuilds in the background
// instead of on the inserting goroutine.
func WithAsyncRebuild(enabled bool) Option {
	return func(o *options) {
		o.asyncRebuild = enabled
	}
}

// WithBulkBuildRatio sets the batch/corpus size ratio from which
// InsertBatch rebuilds the whole graph instead of linking each vector.
// Zero disables bulk builds.
// Default: 0.5.
func WithBulkBuildRatio(r float64) Option {
	return func(o *options) {
		o.bulkBuildRatio = r
	}
}

// WithCodec configures the codec used to serialize ids.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &roargraph.BasicMetricsCollector{}
//	idx, _ := roargraph.New[string](128, roargraph.L2, roargraph.WithMetricsCollector(metrics))
//	// ... use idx ...
//	stats := metrics.GetStats()
//	fmt.Printf("Inserts: %d, Avg latency: %dns\n", stats.InsertCount, stats.InsertAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := roargraph.NewJSONLogger(slog.LevelInfo)
//	idx, _ := roargraph.New[string](128, roargraph.L2, roargraph.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		maxDegree:                DefaultMaxDegree,
		numProjectionLayers:      DefaultNumProjectionLayers,
		rebuildMinPending:        DefaultRebuildMinPending,
		rebuildDegradationFactor: DefaultRebuildDegradationFactor,
		efSearch:                 DefaultEFSearch,
		efConstruction:           DefaultEFConstruction,
		stalenessTolerance:       DefaultStalenessTolerance,
		seedCount:                DefaultSeedCount,
		randomSeed:               builder.DefaultOptions.RandomSeed,
		bulkBuildRatio:           DefaultBulkBuildRatio,
		codec:                    codec.Default,
		metricsCollector:         NoopMetricsCollector{},
		logger:                   NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.maxDegree <= 0 {
		o.maxDegree = DefaultMaxDegree
	}
	if o.efSearch <= 0 {
		o.efSearch = DefaultEFSearch
	}
	if o.efConstruction <= 0 {
		o.efConstruction = DefaultEFConstruction
	}
	if o.stalenessTolerance < 0 {
		o.stalenessTolerance = 0
	}
	if o.seedCount <= 0 {
		o.seedCount = DefaultSeedCount
	}
	return o
}

func (o *options) builderOptions(b *builder.Options) {
	b.MaxDegree = o.maxDegree
	b.EFConstruction = o.efConstruction
	b.EFSearch = o.efSearch
	b.SeedCount = o.seedCount
	b.Workers = o.workers
	b.RandomSeed = o.randomSeed
	if o.trainingTiers != nil {
		b.TrainingTiers = builder.Tiers(o.trainingTiers)
	}
	if o.degreeTiers != nil {
		b.DegreeTiers = builder.Tiers(o.degreeTiers)
	}
}

func (o *options) schedulerOptions(s *scheduler.Options) {
	s.MinPending = o.rebuildMinPending
	s.DegradationFactor = o.rebuildDegradationFactor
}
