package builder

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/roargraph/internal/graph"
	"github.com/hupe1980/roargraph/internal/projection"
	"github.com/hupe1980/roargraph/internal/searcher"
	"github.com/hupe1980/roargraph/model"
)

// cancelCheckInterval is the number of nodes processed between context checks.
const cancelCheckInterval = 256

// Repair makes the suspect nodes of g findable. Each one is searched for with
// its own vector, starting from the seeds the next compilation publishes and
// narrowed by sk the way index searches narrow them, with beam width
// EFSearch. A node the search misses gets an edge from the nearest node the
// search reached (see graph.Lists.Force), which puts it on that search path.
//
// A forced edge changes the paths of other searches, so a round that forced
// any edge is followed by another one over the same nodes plus the targets
// that lost an edge, for at most RepairRounds rounds. Nodes left unchecked
// stay suspect.
//
// It returns the number of forced edges. sk may be nil.
func (b *Builder) Repair(ctx context.Context, g *graph.Graph, c Corpus, sk *projection.SketchStore) (int, error) {
	n := g.Len()
	if n < 2 {
		g.DrainSuspects()
		return 0, nil
	}
	if c.Len() != n {
		return 0, fmt.Errorf("%w: corpus has %d nodes, graph %d", graph.ErrNodeOutOfRange, c.Len(), n)
	}

	s := searcher.Get()
	defer searcher.Put(s)

	src := graph.Sorted(g.Lists())
	pool := g.CompileSeeds()
	forced := 0

	suspects := g.DrainSuspects()
	for round := 0; round < b.opts.RepairRounds && len(suspects) > 0; round++ {
		roundForced := 0
		for i, node := range suspects {
			if i%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					g.MarkSuspect(suspects...)
					return forced, err
				}
			}

			ok, err := b.repairNode(s, g, c, sk, src, pool, node)
			if err != nil {
				g.MarkSuspect(suspects...)
				return forced, err
			}
			if ok {
				roundForced++
			}
		}
		forced += roundForced

		if roundForced == 0 {
			suspects = nil
			break
		}
		next := roaring.New()
		for _, node := range suspects {
			next.Add(uint32(node))
		}
		for _, node := range g.DrainSuspects() {
			next.Add(uint32(node))
		}
		suspects = suspects[:0]
		it := next.Iterator()
		for it.HasNext() {
			suspects = append(suspects, model.NodeID(it.Next()))
		}
	}
	g.MarkSuspect(suspects...)

	return forced, nil
}

// repairNode checks one node and forces an edge to it when the search misses
// it. It reports whether an edge was forced.
func (b *Builder) repairNode(s *searcher.Searcher, g *graph.Graph, c Corpus, sk *projection.SketchStore, src graph.NeighborSource, pool []model.NodeID, node model.NodeID) (bool, error) {
	s.Reset()
	query := c.VectorInto(s.ScratchVec[:0], node)
	s.ScratchVec = query

	seeds := b.entryPoints(sk, pool, node, s.ScratchIDs)
	graph.Search(s, src, seeds, func(n model.NodeID) float32 {
		return c.Score(n, query)
	}, b.opts.EFSearch)

	reached := append([]searcher.PriorityQueueItem(nil), s.Results.Items()...)
	for _, it := range reached {
		if it.Node == node {
			return false, nil
		}
	}
	sortItems(reached)

	for _, it := range reached {
		ok, err := g.Force(it.Node, node, it.Distance)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
