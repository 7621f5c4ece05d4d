package testutil

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/roargraph/distance"
)

// SearchResult is a ground-truth match keyed by dataset position.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// RNG is a seeded, mutex-guarded random source for reproducible datasets.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed int64
}

// NewRNG creates an RNG with the given seed.
func NewRNG(seed int64) *RNG {
	return &RNG{rand: rand.New(rand.NewSource(seed)), seed: seed} //nolint:gosec // test data
}

// Reset rewinds the RNG to its seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed)) //nolint:gosec // test data
}

// Intn returns an int in [0, n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns a float32 in [0, 1).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with values in [0, 1).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// vectors allocates num rows of dim from one backing array and fills each
// row with fill under the lock.
func (r *RNG) vectors(num, dim int, fill func(vec []float32)) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	out := make([][]float32, num)
	for i := range out {
		out[i] = data[i*dim : (i+1)*dim : (i+1)*dim]
		fill(out[i])
	}
	return out
}

// UniformVectors returns num vectors with components in [0, 1).
func (r *RNG) UniformVectors(num, dim int) [][]float32 {
	return r.vectors(num, dim, func(vec []float32) {
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
	})
}

// UniformRangeVectors returns num vectors with components in [-1, 1).
func (r *RNG) UniformRangeVectors(num, dim int) [][]float32 {
	return r.vectors(num, dim, func(vec []float32) {
		for j := range vec {
			vec[j] = r.rand.Float32()*2 - 1
		}
	})
}

// GaussianVectors returns num vectors with standard normal components.
func (r *RNG) GaussianVectors(num, dim int) [][]float32 {
	return r.vectors(num, dim, func(vec []float32) {
		for j := range vec {
			vec[j] = float32(r.rand.NormFloat64())
		}
	})
}

// UnitVectors returns num vectors uniformly distributed on the unit sphere.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	return r.vectors(num, dim, func(vec []float32) {
		var norm float64
		for j := range vec {
			x := r.rand.NormFloat64()
			vec[j] = float32(x)
			norm += x * x
		}
		if norm == 0 {
			vec[0], norm = 1, 1
		}
		inv := float32(1 / math.Sqrt(norm))
		for j := range vec {
			vec[j] *= inv
		}
	})
}

// ClusteredVectors returns num vectors spread around clusters unit centroids
// with Gaussian noise of the given standard deviation. Row i belongs to
// cluster i % clusters.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)
	i := 0
	return r.vectors(num, dim, func(vec []float32) {
		c := centroids[i%clusters]
		for j := range vec {
			vec[j] = c[j] + float32(r.rand.NormFloat64())*spread
		}
		i++
	})
}

// ComputeRecall returns the fraction of the first k ground-truth ids found in
// approximate, with k = min(len(groundTruth), len(approximate)). Two empty
// sets have recall 1.
func ComputeRecall(groundTruth, approximate []SearchResult) float64 {
	k := min(len(approximate), len(groundTruth))
	if k == 0 {
		if len(groundTruth) == len(approximate) {
			return 1
		}
		return 0
	}

	truth := make(map[uint64]struct{}, k)
	for _, g := range groundTruth[:k] {
		truth[g.ID] = struct{}{}
	}
	hits := 0
	for _, a := range approximate {
		if _, ok := truth[a.ID]; ok {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// BruteForceSearch returns the exact k nearest vectors by squared L2.
// Ties go to the lower dataset position.
func BruteForceSearch(vectors [][]float32, query []float32, k int) []SearchResult {
	out := make([]SearchResult, len(vectors))
	for i, v := range vectors {
		out[i] = SearchResult{ID: uint64(i), Distance: distance.SquaredL2(query, v)} //nolint:gosec // non-negative
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out[:min(k, len(out))]
}
