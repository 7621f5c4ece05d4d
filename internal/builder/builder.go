package builder

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/roargraph/internal/graph"
	"github.com/hupe1980/roargraph/internal/projection"
	"github.com/hupe1980/roargraph/internal/searcher"
	"github.com/hupe1980/roargraph/model"
)

// Corpus is the read side of the vector store the graph is built over.
// Implementations must be safe for concurrent reads.
type Corpus interface {
	// Len returns the number of nodes.
	Len() int
	// VectorInto writes the vector of n into dst and returns it.
	VectorInto(dst []float32, n model.NodeID) []float32
	// Score returns the ranking score between n and a prepared query.
	Score(n model.NodeID, query []float32) float32
}

// Stats describes one Build.
type Stats struct {
	// TrainingQueries is the number of sampled training queries.
	TrainingQueries int
	// ListLength is M, the length of each bipartite list.
	ListLength int
	// Covered is the number of nodes some training list contains.
	Covered int
	// Linked is the number of uncovered nodes linked incrementally.
	Linked int
	// Degraded is set when no training query was available and the graph
	// was built from random samples.
	Degraded bool
	// Repaired is the number of edges forced to make nodes reachable.
	Repaired int
	// Edges is the number of edges of the result.
	Edges int
}

// Builder constructs and extends graphs. It is safe for concurrent use as
// long as calls touch different graphs.
type Builder struct {
	opts Options
}

// New creates a builder.
func New(optFns ...func(o *Options)) *Builder {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.normalize()
	return &Builder{opts: opts}
}

// Options returns the effective configuration.
func (b *Builder) Options() Options { return b.opts }

// NewGraph creates an empty graph with the builder's graph settings.
func (b *Builder) NewGraph() *graph.Graph {
	return graph.New(func(o *graph.Options) {
		o.MaxDegree = b.opts.MaxDegree
		o.SeedPoolSize = b.opts.SeedPoolSize
		o.Controller = b.opts.Controller
	})
}

// TrainingSet returns the training queries for a corpus of n nodes: every node
// up to SmallCorpus, otherwise one node drawn from each of TrainingTiers(n)
// equal strata of index order.
func (b *Builder) TrainingSet(n int) []model.NodeID {
	if n <= 0 {
		return nil
	}
	if n <= b.opts.SmallCorpus {
		all := make([]model.NodeID, n)
		for i := range all {
			all[i] = model.NodeID(i) //nolint:gosec // n < MaxRows
		}
		return all
	}

	t := min(b.opts.TrainingTiers.Lookup(n), n)
	if t <= 0 {
		return nil
	}

	rng := rand.New(rand.NewPCG(b.opts.RandomSeed, uint64(n))) //nolint:gosec // not crypto
	set := make([]model.NodeID, t)
	for i := range set {
		lo := i * n / t
		hi := (i + 1) * n / t
		set[i] = model.NodeID(lo + rng.IntN(hi-lo)) //nolint:gosec // < n
	}
	return set
}

// ListLength returns M for a corpus of n nodes.
func (b *Builder) ListLength(n int) int {
	return max(min(b.opts.DegreeTiers.Lookup(n), n-1), 1)
}

// Build constructs a new graph over every node of c and repairs it (see
// Repair). The returned graph is not compiled. sk may be nil; when set it
// picks the entry points of the repair searches. On error or
// cancellation the partial graph is discarded.
func (b *Builder) Build(ctx context.Context, c Corpus, sk *projection.SketchStore) (*graph.Graph, Stats, error) {
	g := b.NewGraph()
	n := c.Len()

	var stats Stats
	if n == 0 {
		return g, stats, nil
	}

	for i := 0; i < n; i++ {
		if _, err := g.AddNode(); err != nil {
			g.Reset()
			return nil, stats, err
		}
	}
	if n == 1 {
		g.DrainSuspects()
		return g, stats, nil
	}

	if err := b.build(ctx, g, c, &stats); err != nil {
		g.Reset()
		return nil, stats, err
	}
	repaired, err := b.Repair(ctx, g, c, sk)
	if err != nil {
		g.Reset()
		return nil, stats, err
	}
	stats.Repaired = repaired
	stats.Edges = g.NumEdges()

	return g, stats, nil
}

func (b *Builder) build(ctx context.Context, g *graph.Graph, c Corpus, stats *Stats) error {
	n := c.Len()
	training := b.TrainingSet(n)
	stats.TrainingQueries = len(training)

	if len(training) == 0 {
		stats.Degraded = true
		return b.buildSampled(ctx, g, c)
	}

	m := b.ListLength(n)
	stats.ListLength = m

	lists, err := b.trainingLists(ctx, c, training, m)
	if err != nil {
		return err
	}

	covered := roaring.New()
	for _, list := range lists {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.projectList(g, c, list); err != nil {
			return err
		}
		for _, item := range list {
			covered.Add(uint32(item.Node))
		}
	}
	stats.Covered = int(covered.GetCardinality())

	// Link the rest, starting from covered nodes so the walk has edges.
	seeds := spread(covered.ToArray(), b.opts.SeedPoolSize)
	for node := 0; node < n; node++ {
		if covered.Contains(uint32(node)) { //nolint:gosec // node < MaxRows
			continue
		}
		if err := b.link(ctx, g, c, model.NodeID(node), seeds); err != nil { //nolint:gosec // node < MaxRows
			return err
		}
		covered.Add(uint32(node)) //nolint:gosec // node < MaxRows
		stats.Linked++
		if len(seeds) < b.opts.SeedPoolSize {
			seeds = append(seeds, model.NodeID(node)) //nolint:gosec // node < MaxRows
		}
	}

	return nil
}

// trainingLists computes the exact top-m over every node for each training
// query in parallel.
func (b *Builder) trainingLists(ctx context.Context, c Corpus, training []model.NodeID, m int) ([][]searcher.PriorityQueueItem, error) {
	n := c.Len()
	lists := make([][]searcher.PriorityQueueItem, len(training))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.opts.Workers)

	for i, q := range training {
		eg.Go(func() error {
			query := c.VectorInto(nil, q)
			heap := searcher.NewCandidateHeap(m)
			// q is a corpus node too, so it heads its own list as the primary.
			for node := 0; node < n; node++ {
				if node%cancelCheckInterval == 0 {
					if err := egCtx.Err(); err != nil {
						return err
					}
				}
				id := model.NodeID(node) //nolint:gosec // n < MaxRows
				heap.PushBounded(model.Candidate{Node: id, Score: c.Score(id, query), Seq: uint64(node)}, m)
			}

			sorted := heap.AppendSorted(nil)
			list := make([]searcher.PriorityQueueItem, len(sorted))
			for j, cand := range sorted {
				list[j] = searcher.PriorityQueueItem{Node: cand.Node, Distance: cand.Score}
			}
			lists[i] = list
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

// projectList turns one bipartite list into base-to-base edges: the primary
// member links to every other member, and every other member links to the
// diverse subset of its list mates.
func (b *Builder) projectList(g *graph.Graph, c Corpus, list []searcher.PriorityQueueItem) error {
	if len(list) < 2 {
		return nil
	}

	primary := list[0].Node
	pvec := c.VectorInto(nil, primary)
	var bvec []float32
	mates := make([]searcher.PriorityQueueItem, 0, len(list))

	for _, member := range list[1:] {
		if _, err := g.Admit(primary, member.Node, c.Score(member.Node, pvec)); err != nil {
			return err
		}
	}

	for _, member := range list[1:] {
		bvec = c.VectorInto(bvec, member.Node)

		mates = mates[:0]
		for _, other := range list {
			if other.Node == member.Node {
				continue
			}
			mates = append(mates, searcher.PriorityQueueItem{Node: other.Node, Distance: c.Score(other.Node, bvec)})
		}
		sortItems(mates)

		for _, nb := range selectDiverse(c, mates, b.opts.MaxDegree, false) {
			if _, err := g.Admit(member.Node, nb.Node, nb.Distance); err != nil {
				return err
			}
		}
	}

	return nil
}

// buildSampled links every node to the best of SampleSize random nodes.
func (b *Builder) buildSampled(ctx context.Context, g *graph.Graph, c Corpus) error {
	n := c.Len()
	rng := rand.New(rand.NewPCG(b.opts.RandomSeed, uint64(n)^0xa5a5a5a5)) //nolint:gosec // not crypto
	sample := min(b.opts.SampleSize, n-1)

	heap := searcher.NewCandidateHeap(b.opts.MaxDegree)
	var vec []float32
	var sorted []model.Candidate

	for node := 0; node < n; node++ {
		if node%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		src := model.NodeID(node) //nolint:gosec // node < MaxRows
		vec = c.VectorInto(vec, src)
		heap.Reset()
		for i := 0; i < sample; i++ {
			other := model.NodeID(rng.IntN(n)) //nolint:gosec // < n
			if other == src {
				continue
			}
			heap.PushBounded(model.Candidate{Node: other, Score: c.Score(other, vec), Seq: uint64(other)}, b.opts.MaxDegree)
		}

		sorted = heap.AppendSorted(sorted[:0])
		for _, cand := range sorted {
			if _, err := g.Admit(src, cand.Node, cand.Score); err != nil {
				return err
			}
			if _, err := g.Admit(cand.Node, src, cand.Score); err != nil {
				return err
			}
		}
	}

	return nil
}

// Link connects node, already added to g, to its approximate nearest
// neighbors and offers the reverse edges. sk may be nil; when set it picks
// the entry points among the seed pool.
func (b *Builder) Link(ctx context.Context, g *graph.Graph, c Corpus, sk *projection.SketchStore, node model.NodeID) error {
	return b.link(ctx, g, c, node, b.entryPoints(sk, g.SeedPool(), node, nil))
}

// entryPoints narrows pool to the SeedCount entries whose sketches are
// closest to node's, the way index searches pick theirs. buf is reused for
// the copy the cascade reorders.
func (b *Builder) entryPoints(sk *projection.SketchStore, pool []model.NodeID, node model.NodeID, buf []model.NodeID) []model.NodeID {
	if sk == nil || !sk.Pipeline().Enabled() || int(node) >= sk.Len() || len(pool) <= b.opts.SeedCount {
		return pool
	}
	buf = append(buf[:0], pool...)
	return sk.Filter(sk.Get(node), buf, b.opts.SeedCount)
}

func (b *Builder) link(ctx context.Context, g *graph.Graph, c Corpus, node model.NodeID, seeds []model.NodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if int(node) >= g.Len() || int(node) >= c.Len() {
		return fmt.Errorf("%w: %d", graph.ErrNodeOutOfRange, node)
	}
	if g.Len() == 1 {
		return nil
	}

	s := searcher.Get()
	defer searcher.Put(s)

	query := c.VectorInto(s.ScratchVec[:0], node)
	s.ScratchVec = query

	// The node is not a candidate for itself.
	s.Visited.Visit(node)
	graph.Search(s, g.Lists(), seeds, func(n model.NodeID) float32 {
		return c.Score(n, query)
	}, b.opts.EFConstruction)

	items := append([]searcher.PriorityQueueItem(nil), s.Results.Items()...)
	if len(items) == 0 {
		// No usable seed: attach to the first other node.
		other := model.NodeID(0)
		if other == node {
			other = 1
		}
		items = append(items, searcher.PriorityQueueItem{Node: other, Distance: c.Score(other, query)})
	}
	sortItems(items)

	for _, nb := range selectDiverse(c, items, b.opts.MaxDegree, true) {
		if _, err := g.Admit(node, nb.Node, nb.Distance); err != nil {
			return err
		}
		if _, err := g.Admit(nb.Node, node, nb.Distance); err != nil {
			return err
		}
	}

	return nil
}

func sortItems(items []searcher.PriorityQueueItem) {
	slices.SortFunc(items, func(a, b searcher.PriorityQueueItem) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Node, b.Node)
	})
}

// selectDiverse applies the relative neighborhood rule to candidates sorted
// nearest first: a candidate is kept only if it is closer to the source than
// to every neighbor kept before it. With fill set, pruned candidates top the
// result up to m nearest first.
func selectDiverse(c Corpus, candidates []searcher.PriorityQueueItem, m int, fill bool) []searcher.PriorityQueueItem {
	if len(candidates) <= 1 {
		return candidates
	}

	result := make([]searcher.PriorityQueueItem, 0, min(m, len(candidates)))
	var cvec []float32

	for _, cand := range candidates {
		if len(result) >= m {
			break
		}
		cvec = c.VectorInto(cvec, cand.Node)
		good := true
		for _, kept := range result {
			if c.Score(kept.Node, cvec) < cand.Distance {
				good = false
				break
			}
		}
		if good {
			result = append(result, cand)
		}
	}

	if fill {
		for _, cand := range candidates {
			if len(result) >= m {
				break
			}
			if !slices.ContainsFunc(result, func(r searcher.PriorityQueueItem) bool { return r.Node == cand.Node }) {
				result = append(result, cand)
			}
		}
	}

	return result
}

// spread picks up to k entries of nodes evenly over their order.
func spread(nodes []uint32, k int) []model.NodeID {
	k = min(k, len(nodes))
	out := make([]model.NodeID, k)
	for i := range out {
		out[i] = model.NodeID(nodes[i*len(nodes)/k])
	}
	return out
}
