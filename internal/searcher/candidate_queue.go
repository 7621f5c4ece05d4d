package searcher

import (
	"slices"

	"github.com/hupe1980/roargraph/model"
)

const heapArity = 4

// CandidateHeap is a bounded top-k collector of model.Candidate.
//
// It is a 4-ary heap ordered worst first, so the top is the eviction
// candidate. Ties on score are broken by insertion sequence, which makes the
// kept set deterministic.
type CandidateHeap struct {
	Candidates []model.Candidate
}

// NewCandidateHeap creates a new CandidateHeap.
func NewCandidateHeap(capacity int) *CandidateHeap {
	return &CandidateHeap{
		Candidates: make([]model.Candidate, 0, capacity),
	}
}

// Reset clears the heap for reuse.
func (h *CandidateHeap) Reset() {
	h.Candidates = h.Candidates[:0]
}

// Len returns the number of candidates in the heap.
func (h *CandidateHeap) Len() int { return len(h.Candidates) }

// Push inserts a candidate.
func (h *CandidateHeap) Push(x model.Candidate) {
	h.Candidates = append(h.Candidates, x)
	h.up(len(h.Candidates) - 1)
}

// PushBounded inserts x into a heap of at most k candidates, evicting the
// worst one if x ranks before it.
func (h *CandidateHeap) PushBounded(x model.Candidate, k int) {
	if len(h.Candidates) < k {
		h.Push(x)
		return
	}
	if k <= 0 || !model.Better(x, h.Candidates[0]) {
		return
	}
	h.Candidates[0] = x
	h.down(0, len(h.Candidates))
}

// Pop removes and returns the worst candidate.
func (h *CandidateHeap) Pop() model.Candidate {
	n := len(h.Candidates) - 1
	h.Candidates[0], h.Candidates[n] = h.Candidates[n], h.Candidates[0]
	h.down(0, n)
	x := h.Candidates[n]
	h.Candidates = h.Candidates[:n]
	return x
}

// TryPeek returns the worst candidate and true, or false if empty.
func (h *CandidateHeap) TryPeek() (model.Candidate, bool) {
	if len(h.Candidates) == 0 {
		return model.Candidate{}, false
	}
	return h.Candidates[0], true
}

// AppendSorted appends the candidates best first to dst and empties the heap.
func (h *CandidateHeap) AppendSorted(dst []model.Candidate) []model.Candidate {
	start := len(dst)
	dst = append(dst, h.Candidates...)
	out := dst[start:]
	slices.SortFunc(out, func(a, b model.Candidate) int {
		switch {
		case model.Better(a, b):
			return -1
		case model.Better(b, a):
			return 1
		default:
			return 0
		}
	})
	h.Reset()
	return dst
}

func (h *CandidateHeap) worse(a, b model.Candidate) bool {
	return model.Better(b, a)
}

func (h *CandidateHeap) up(j int) {
	item := h.Candidates[j]
	for j > 0 {
		i := (j - 1) / heapArity
		if !h.worse(item, h.Candidates[i]) {
			break
		}
		h.Candidates[j] = h.Candidates[i]
		j = i
	}
	h.Candidates[j] = item
}

func (h *CandidateHeap) down(i, n int) {
	item := h.Candidates[i]
	for {
		first := heapArity*i + 1
		if first >= n {
			break
		}

		worst := first
		last := min(first+heapArity, n)
		for c := first + 1; c < last; c++ {
			if h.worse(h.Candidates[c], h.Candidates[worst]) {
				worst = c
			}
		}

		if !h.worse(h.Candidates[worst], item) {
			break
		}
		h.Candidates[i] = h.Candidates[worst]
		i = worst
	}
	h.Candidates[i] = item
}
