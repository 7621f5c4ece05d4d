package builder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roargraph/distance"
	"github.com/hupe1980/roargraph/internal/graph"
	"github.com/hupe1980/roargraph/internal/projection"
	"github.com/hupe1980/roargraph/internal/searcher"
	"github.com/hupe1980/roargraph/internal/vectorstore"
	"github.com/hupe1980/roargraph/model"
	"github.com/hupe1980/roargraph/testutil"
)

func newCorpus(t *testing.T, vecs [][]float32) (*vectorstore.Store[int], *projection.SketchStore) {
	t.Helper()
	dim := len(vecs[0])
	store, err := vectorstore.New[int](dim)
	require.NoError(t, err)
	p, err := projection.New(dim)
	require.NoError(t, err)
	sk := projection.NewSketchStore(p, nil)
	for i, v := range vecs {
		_, err := store.Add(i, v)
		require.NoError(t, err)
		require.NoError(t, sk.Append(v))
	}
	return store, sk
}

func recallAt10(t *testing.T, g *graph.Graph, vecs [][]float32, queries [][]float32) float64 {
	t.Helper()
	require.NoError(t, g.Finalize(context.Background()))
	csr := g.Active()
	require.NotNil(t, csr)

	var total float64
	for _, q := range queries {
		s := searcher.Get()
		graph.Search(s, csr, csr.Seeds, func(n model.NodeID) float32 {
			return distance.SquaredL2(q, vecs[n])
		}, 100)

		heap := searcher.NewCandidateHeap(10)
		for _, item := range s.Results.Items() {
			heap.PushBounded(model.Candidate{Node: item.Node, Score: item.Distance}, 10)
		}
		sorted := heap.AppendSorted(nil)
		searcher.Put(s)

		approx := make([]testutil.SearchResult, len(sorted))
		for i, c := range sorted {
			approx[i] = testutil.SearchResult{ID: uint64(c.Node), Distance: c.Score}
		}
		total += testutil.ComputeRecall(testutil.BruteForceSearch(vecs, q, 10), approx)
	}
	return total / float64(len(queries))
}

func assertDegreeBound(t *testing.T, g *graph.Graph, maxDegree int) {
	t.Helper()
	for n := 0; n < g.Len(); n++ {
		assert.LessOrEqual(t, g.Lists().Degree(model.NodeID(n)), maxDegree)
	}
}

func TestTiers(t *testing.T) {
	tiers := DefaultOptions.TrainingTiers
	assert.Equal(t, 5, tiers.Lookup(50))
	assert.Equal(t, 5, tiers.Lookup(100))
	assert.Equal(t, 20, tiers.Lookup(101))
	assert.Equal(t, 20, tiers.Lookup(5000))
	assert.Equal(t, 15, tiers.Lookup(1_000_000))
	assert.Equal(t, 0, Tiers(nil).Lookup(10))

	b := New()
	assert.Equal(t, 25, b.ListLength(10_000))
	assert.Equal(t, 50, b.ListLength(10_001))
	assert.Equal(t, 75, b.ListLength(100_001))
	assert.Equal(t, 4, b.ListLength(5))
	assert.Equal(t, 1, b.ListLength(1))
}

func TestTrainingSet(t *testing.T) {
	b := New()

	assert.Empty(t, b.TrainingSet(0))
	assert.Len(t, b.TrainingSet(32), 32)

	set := b.TrainingSet(1000)
	require.Len(t, set, 20)
	for i, q := range set {
		lo, hi := i*1000/20, (i+1)*1000/20
		assert.GreaterOrEqual(t, int(q), lo)
		assert.Less(t, int(q), hi)
	}
	assert.Equal(t, set, b.TrainingSet(1000), "sampling is deterministic")

	assert.Len(t, b.TrainingSet(1_000_000), 15)
}

func TestTrainingListsExact(t *testing.T) {
	rng := testutil.NewRNG(8)
	vecs := rng.UniformVectors(600, 32)
	store, sk := newCorpus(t, vecs)
	require.True(t, sk.Pipeline().Enabled())

	b := New()
	training := b.TrainingSet(len(vecs))
	m := b.ListLength(len(vecs))
	require.Greater(t, len(vecs), 4*m)

	lists, err := b.trainingLists(context.Background(), store, training, m)
	require.NoError(t, err)
	require.Len(t, lists, len(training))

	for i, q := range training {
		want := make([]model.NodeID, 0, m)
		for _, r := range testutil.BruteForceSearch(vecs, vecs[q], m) {
			want = append(want, model.NodeID(r.ID))
		}
		got := make([]model.NodeID, 0, m)
		for _, item := range lists[i] {
			got = append(got, item.Node)
		}
		assert.Equal(t, want, got, "training query %d", q)
		assert.Equal(t, q, lists[i][0].Node, "the query heads its own list")
	}
}

func TestBuildRecall(t *testing.T) {
	rng := testutil.NewRNG(1)
	vecs := rng.UniformVectors(1000, 16)
	store, sk := newCorpus(t, vecs)

	b := New(func(o *Options) { o.MaxDegree = 24 })
	g, stats, err := b.Build(context.Background(), store, sk)
	require.NoError(t, err)

	assert.Equal(t, 1000, g.Len())
	assert.Equal(t, 20, stats.TrainingQueries)
	assert.Equal(t, 25, stats.ListLength)
	assert.Positive(t, stats.Covered)
	assert.Equal(t, 1000, stats.Covered+stats.Linked)
	assert.False(t, stats.Degraded)
	assert.Equal(t, g.NumEdges(), stats.Edges)
	assertDegreeBound(t, g, 24)

	recall := recallAt10(t, g, vecs, rng.UniformVectors(20, 16))
	assert.GreaterOrEqual(t, recall, 0.8)
}

func TestBuildSmallCorpus(t *testing.T) {
	rng := testutil.NewRNG(2)
	vecs := rng.UniformVectors(20, 4)
	store, _ := newCorpus(t, vecs)

	g, stats, err := New().Build(context.Background(), store, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.TrainingQueries)
	assert.Equal(t, 20, stats.Covered)
	assert.Equal(t, 0, stats.Linked)

	for n := 0; n < g.Len(); n++ {
		assert.Positive(t, g.Lists().Degree(model.NodeID(n)))
	}
}

func TestBuildDegraded(t *testing.T) {
	rng := testutil.NewRNG(3)
	vecs := rng.UniformVectors(300, 8)
	store, sk := newCorpus(t, vecs)

	b := New(func(o *Options) {
		o.TrainingTiers = Tiers{{Value: 0}}
		o.MaxDegree = 8
	})
	g, stats, err := b.Build(context.Background(), store, sk)
	require.NoError(t, err)

	assert.True(t, stats.Degraded)
	assert.Equal(t, 0, stats.TrainingQueries)
	assert.Positive(t, g.NumEdges())
	assertDegreeBound(t, g, 8)
}

func TestBuildEdgeCases(t *testing.T) {
	store, err := vectorstore.New[int](4)
	require.NoError(t, err)

	g, stats, err := New().Build(context.Background(), store, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, Stats{}, stats)

	_, err = store.Add(1, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	g, _, err = New().Build(context.Background(), store, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, 0, g.NumEdges())
}

func TestBuildCanceled(t *testing.T) {
	rng := testutil.NewRNG(4)
	store, sk := newCorpus(t, rng.UniformVectors(500, 8))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g, _, err := New().Build(ctx, store, sk)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, g)
}

func TestLink(t *testing.T) {
	rng := testutil.NewRNG(5)
	vecs := rng.UniformVectors(200, 8)
	store, sk := newCorpus(t, vecs)

	b := New(func(o *Options) { o.MaxDegree = 12 })
	g, _, err := b.Build(context.Background(), store, sk)
	require.NoError(t, err)

	v := rng.UniformVectors(1, 8)[0]
	node, err := store.Add(200, v)
	require.NoError(t, err)
	require.NoError(t, sk.Append(v))
	gnode, err := g.AddNode()
	require.NoError(t, err)
	require.Equal(t, node, gnode)

	require.NoError(t, b.Link(context.Background(), g, store, sk, node))

	edges := g.Lists().Edges(node)
	require.NotEmpty(t, edges)
	assert.LessOrEqual(t, len(edges), 12)

	// The true nearest neighbor is linked.
	all := append(append([][]float32{}, vecs...), v)
	nearest := testutil.BruteForceSearch(all, v, 2)[1]
	found := false
	for _, e := range edges {
		if uint64(e.To) == nearest.ID {
			found = true
		}
	}
	assert.True(t, found)

	// At least one neighbor links back.
	back := 0
	for _, e := range edges {
		for _, r := range g.Lists().Edges(e.To) {
			if r.To == node {
				back++
			}
		}
	}
	assert.Positive(t, back)

	_, err = g.AddNode()
	require.NoError(t, err)
	require.ErrorIs(t, b.Link(context.Background(), g, store, sk, 500), graph.ErrNodeOutOfRange)
}

func TestRepair(t *testing.T) {
	vecs := make([][]float32, 10)
	for i := range vecs {
		vecs[i] = []float32{float32(i), 0}
	}
	store, _ := newCorpus(t, vecs)

	b := New(func(o *Options) {
		o.MaxDegree = 2
		o.SeedPoolSize = 1
	})
	g := b.NewGraph()
	for range vecs {
		_, err := g.AddNode()
		require.NoError(t, err)
	}

	// A path 0 <-> 1 <-> ... <-> 9 in which nothing points to 5.
	admit := func(from, to int) {
		_, err := g.Admit(model.NodeID(from), model.NodeID(to), distance.SquaredL2(vecs[from], vecs[to]))
		require.NoError(t, err)
	}
	for i := 0; i < 9; i++ {
		if i != 4 {
			admit(i, i+1)
		}
		if i+1 != 6 {
			admit(i+1, i)
		}
	}
	admit(4, 6)
	admit(6, 7)
	require.Equal(t, 0, g.Lists().InDegree(5))

	forced, err := b.Repair(context.Background(), g, store, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, forced)
	assert.Equal(t, 0, g.Suspects())

	// 4 is the nearest reached node; it gives up its farther edge to 6,
	// which 5 and 7 still point to.
	assert.ElementsMatch(t, []model.NodeID{3, 5}, g.Lists().Neighbors(4, nil))
	assert.Equal(t, 1, g.Lists().InDegree(5))
	assert.Equal(t, 2, g.Lists().InDegree(6))
	assertDegreeBound(t, g, 2)

	forced, err = b.Repair(context.Background(), g, store, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, forced)
}

func TestRepairCanceled(t *testing.T) {
	rng := testutil.NewRNG(6)
	store, sk := newCorpus(t, rng.UniformVectors(50, 4))

	b := New()
	g := b.NewGraph()
	for i := 0; i < 50; i++ {
		_, err := g.AddNode()
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Repair(ctx, g, store, sk)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 50, g.Suspects())
}

// TestBuildReachable checks that a search for every node's own vector,
// started the way index searches start, finds it.
func TestBuildReachable(t *testing.T) {
	rng := testutil.NewRNG(7)
	vecs := rng.GaussianVectors(1000, 64)
	store, sk := newCorpus(t, vecs)

	b := New(func(o *Options) { o.MaxDegree = 16 })
	g, stats, err := b.Build(context.Background(), store, sk)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Suspects())
	assert.GreaterOrEqual(t, stats.Repaired, 0)
	assertDegreeBound(t, g, 16)

	require.NoError(t, g.Finalize(context.Background()))
	csr := g.Active()

	missed := 0
	for n := range vecs {
		node := model.NodeID(n)
		s := searcher.Get()
		graph.Search(s, csr, b.entryPoints(sk, csr.Seeds, node, nil), func(m model.NodeID) float32 {
			return distance.SquaredL2(vecs[n], vecs[m])
		}, b.Options().EFSearch)

		found := false
		for _, it := range s.Results.Items() {
			if it.Node == node {
				found = true
			}
		}
		searcher.Put(s)
		if !found {
			missed++
		}
	}
	assert.Zero(t, missed)
}
