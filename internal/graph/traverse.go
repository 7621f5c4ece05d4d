package graph

import (
	"slices"

	"github.com/hupe1980/roargraph/internal/searcher"
	"github.com/hupe1980/roargraph/model"
)

// NeighborSource is a graph form a traversal can walk: Lists or CSR.
type NeighborSource interface {
	// Len returns the number of nodes reachable through the source.
	Len() int
	// Neighbors appends the out-neighbors of n to buf[:0] and returns it.
	Neighbors(n model.NodeID, buf []model.NodeID) []model.NodeID
}

// Sorted walks the lists in compiled row order, so a traversal over it takes
// the same path as one over the CSR compiled from them.
func Sorted(l *Lists) NeighborSource { return sortedLists{l} }

type sortedLists struct{ l *Lists }

func (s sortedLists) Len() int { return s.l.Len() }

func (s sortedLists) Neighbors(n model.NodeID, buf []model.NodeID) []model.NodeID {
	buf = s.l.Neighbors(n, buf)
	slices.Sort(buf)
	return buf
}

// ScoreFunc returns the ranking score of a node against the current query.
type ScoreFunc func(n model.NodeID) float32

// Search runs a best-first beam search from seeds and leaves the ef best
// nodes found in s.Results (a max heap). Seeds at or past src.Len() are
// skipped. Every scored node is marked in s.Visited.
func Search(s *searcher.Searcher, src NeighborSource, seeds []model.NodeID, score ScoreFunc, ef int) {
	n := src.Len()
	if n == 0 || ef <= 0 {
		return
	}
	s.Visited.EnsureCapacity(n)

	for _, seed := range seeds {
		if int(seed) >= n || !s.Visited.Visit(seed) {
			continue
		}
		d := score(seed)
		s.OpsPerformed++
		item := searcher.PriorityQueueItem{Node: seed, Distance: d}
		s.Frontier.PushItem(item)
		s.Results.PushItemBounded(item, ef)
	}

	for s.Frontier.Len() > 0 {
		curr, _ := s.Frontier.PopItem()

		if s.Results.Len() >= ef {
			worst, _ := s.Results.TopItem()
			if curr.Distance > worst.Distance {
				break
			}
		}

		s.Neighbors = src.Neighbors(curr.Node, s.Neighbors)
		for _, next := range s.Neighbors {
			if int(next) >= n || !s.Visited.Visit(next) {
				continue
			}

			d := score(next)
			s.OpsPerformed++

			// Skip candidates that cannot enter a full result set.
			if s.Results.Len() >= ef {
				worst, _ := s.Results.TopItem()
				if d > worst.Distance {
					continue
				}
			}

			item := searcher.PriorityQueueItem{Node: next, Distance: d}
			s.Frontier.PushItem(item)
			s.Results.PushItemBounded(item, ef)
		}
	}
}
