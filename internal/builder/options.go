package builder

import (
	"runtime"

	"github.com/hupe1980/roargraph/internal/resource"
)

// Tier maps corpus sizes up to UpTo (inclusive) to Value.
// UpTo <= 0 matches every size.
type Tier struct {
	UpTo  int
	Value int
}

// Tiers is an ordered list of Tier; the first match wins.
type Tiers []Tier

// Lookup returns the value for a corpus of n nodes, or 0 when no tier matches.
func (t Tiers) Lookup(n int) int {
	for _, tier := range t {
		if tier.UpTo <= 0 || n <= tier.UpTo {
			return tier.Value
		}
	}
	return 0
}

// Options configures a Builder.
type Options struct {
	// MaxDegree caps the out-degree of every node.
	MaxDegree int

	// SmallCorpus is the size up to which every node is a training query.
	SmallCorpus int

	// TrainingTiers sets the number of training queries by corpus size.
	TrainingTiers Tiers

	// DegreeTiers sets M, the length of each bipartite list, by corpus size.
	DegreeTiers Tiers

	// EFConstruction is the beam width of Link.
	EFConstruction int

	// EFSearch is the beam width searches use. Repair checks reachability
	// with it.
	EFSearch int

	// RepairRounds bounds the passes of Repair.
	RepairRounds int

	// SeedCount is the number of entry points Link starts from.
	SeedCount int

	// SeedPoolSize is the number of nodes kept as entry candidates.
	SeedPoolSize int

	// SampleSize is the number of random nodes each node scores in
	// degraded mode.
	SampleSize int

	// Workers bounds the parallel training queries.
	Workers int

	// RandomSeed makes sampling reproducible.
	RandomSeed uint64

	// Controller accounts graph buffers. Optional.
	Controller *resource.Controller
}

// DefaultOptions contains the default configuration for a Builder.
var DefaultOptions = Options{
	MaxDegree:   32,
	SmallCorpus: 32,
	TrainingTiers: Tiers{
		{UpTo: 100, Value: 5},
		{UpTo: 5000, Value: 20},
		{Value: 15},
	},
	DegreeTiers: Tiers{
		{UpTo: 10_000, Value: 25},
		{UpTo: 100_000, Value: 50},
		{Value: 75},
	},
	EFConstruction: 100,
	EFSearch:       64,
	RepairRounds:   6,
	SeedCount:      8,
	SeedPoolSize:   64,
	SampleSize:     64,
	RandomSeed:     42,
}

func (o *Options) normalize() {
	if o.MaxDegree <= 0 {
		o.MaxDegree = DefaultOptions.MaxDegree
	}
	if o.EFConstruction <= 0 {
		o.EFConstruction = DefaultOptions.EFConstruction
	}
	if o.EFSearch <= 0 {
		o.EFSearch = DefaultOptions.EFSearch
	}
	if o.RepairRounds <= 0 {
		o.RepairRounds = DefaultOptions.RepairRounds
	}
	if o.SeedCount <= 0 {
		o.SeedCount = DefaultOptions.SeedCount
	}
	if o.SeedPoolSize <= 0 {
		o.SeedPoolSize = DefaultOptions.SeedPoolSize
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultOptions.SampleSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
}
