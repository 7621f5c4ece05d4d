package searcher

import (
	"sync"

	"github.com/hupe1980/roargraph/model"
)

// Searcher is a reusable execution context for graph traversal.
// It owns the scratch memory of one search so steady-state queries do not
// allocate.
//
// Searcher is NOT thread-safe. It is owned by a single goroutine during a
// search.
type Searcher struct {
	// Visited tracks visited nodes during graph traversal.
	Visited *VisitedSet

	// Results is a max-heap holding the best ef nodes found so far.
	Results *PriorityQueue

	// Frontier is a min-heap of nodes still to expand.
	Frontier *PriorityQueue

	// Heap collects the final top-k with deterministic tie-breaking.
	Heap *CandidateHeap

	// ScratchVec is a reusable buffer for dequantized vectors.
	ScratchVec []float32

	// ScratchIDs is a reusable buffer for node lists (seeds, filter input).
	ScratchIDs []model.NodeID

	// Neighbors is a reusable buffer for the adjacency row being expanded.
	Neighbors []model.NodeID

	// Candidates is a reusable buffer for the sorted result.
	Candidates []model.Candidate

	// OpsPerformed counts distance computations.
	OpsPerformed int
}

var searcherPool = sync.Pool{
	New: func() any {
		return NewSearcher(1024, 128)
	},
}

// NewSearcher creates a new searcher with the given initial capacities.
func NewSearcher(visitedCap, queueCap int) *Searcher {
	return &Searcher{
		Visited:    NewVisitedSet(visitedCap),
		Results:    NewPriorityQueue(true),
		Frontier:   NewPriorityQueue(false),
		Heap:       NewCandidateHeap(queueCap),
		ScratchIDs: make([]model.NodeID, 0, queueCap),
		Neighbors:  make([]model.NodeID, 0, 64),
		Candidates: make([]model.Candidate, 0, queueCap),
	}
}

// Get returns a clean Searcher from the pool.
func Get() *Searcher {
	s := searcherPool.Get().(*Searcher)
	s.Reset()
	return s
}

// Put returns a Searcher to the pool.
func Put(s *Searcher) {
	searcherPool.Put(s)
}

// Reset clears the searcher state for reuse, keeping capacities.
func (s *Searcher) Reset() {
	s.Visited.Reset()
	s.Results.Reset()
	s.Frontier.Reset()
	s.Heap.Reset()
	s.ScratchIDs = s.ScratchIDs[:0]
	s.Neighbors = s.Neighbors[:0]
	s.Candidates = s.Candidates[:0]
	s.OpsPerformed = 0
}

// ScratchVector returns ScratchVec resized to dim.
func (s *Searcher) ScratchVector(dim int) []float32 {
	if cap(s.ScratchVec) < dim {
		s.ScratchVec = make([]float32, dim)
	}
	s.ScratchVec = s.ScratchVec[:dim]
	return s.ScratchVec
}
