package searcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roargraph/model"
	"github.com/hupe1980/roargraph/testutil"
)

func pushAll(pq *PriorityQueue, dists ...float32) {
	for i, d := range dists {
		pq.PushItem(PriorityQueueItem{Node: model.NodeID(i), Distance: d}) //nolint:gosec // small
	}
}

func drain(pq *PriorityQueue) []float32 {
	var out []float32
	for {
		it, ok := pq.PopItem()
		if !ok {
			return out
		}
		out = append(out, it.Distance)
	}
}

func TestPriorityQueue_Order(t *testing.T) {
	frontier := NewPriorityQueue(false)
	pushAll(frontier, 10, 5, 20, 7)
	top, ok := frontier.TopItem()
	require.True(t, ok)
	assert.Equal(t, float32(5), top.Distance)
	assert.Equal(t, []float32{5, 7, 10, 20}, drain(frontier))

	results := NewPriorityQueue(true)
	pushAll(results, 10, 5, 20, 7)
	assert.Equal(t, []float32{20, 10, 7, 5}, drain(results))
}

func TestPriorityQueue_Bounded(t *testing.T) {
	t.Run("MaxHeapKeepsClosest", func(t *testing.T) {
		pq := NewPriorityQueue(true)
		for i, d := range []float32{10, 20, 30} {
			assert.True(t, pq.PushItemBounded(PriorityQueueItem{Node: model.NodeID(i), Distance: d}, 3)) //nolint:gosec // small
		}

		assert.True(t, pq.PushItemBounded(PriorityQueueItem{Node: 3, Distance: 5}, 3))
		assert.False(t, pq.PushItemBounded(PriorityQueueItem{Node: 4, Distance: 40}, 3))
		assert.Equal(t, 3, pq.Len())
		assert.Equal(t, []float32{20, 10, 5}, drain(pq))
	})

	t.Run("MinHeapKeepsLargest", func(t *testing.T) {
		pq := NewPriorityQueue(false)
		pq.PushItemBounded(PriorityQueueItem{Distance: 10}, 2)
		pq.PushItemBounded(PriorityQueueItem{Distance: 20}, 2)
		assert.True(t, pq.PushItemBounded(PriorityQueueItem{Distance: 30}, 2))
		assert.Equal(t, []float32{20, 30}, drain(pq))
	})

	t.Run("ZeroCapacity", func(t *testing.T) {
		pq := NewPriorityQueue(true)
		assert.False(t, pq.PushItemBounded(PriorityQueueItem{Distance: 1}, 0))
		assert.Zero(t, pq.Len())
	})
}

func TestPriorityQueue_ResetKeepsCapacity(t *testing.T) {
	pq := NewPriorityQueue(false)
	pushAll(pq, make([]float32, 1000)...)
	capBefore := cap(pq.items)

	pq.Reset()
	assert.Zero(t, pq.Len())
	assert.Empty(t, pq.Items())
	assert.Equal(t, capBefore, cap(pq.items))
}

func TestPriorityQueue_Random(t *testing.T) {
	rng := testutil.NewRNG(3)
	pq := NewPriorityQueue(false)
	for i := range 1000 {
		pq.PushItem(PriorityQueueItem{Node: model.NodeID(i), Distance: rng.Float32()}) //nolint:gosec // small
	}

	got := drain(pq)
	require.Len(t, got, 1000)
	assert.IsNonDecreasing(t, got)
}

func TestPriorityQueue_Empty(t *testing.T) {
	pq := NewPriorityQueue(false)
	_, ok := pq.TopItem()
	assert.False(t, ok)
	_, ok = pq.PopItem()
	assert.False(t, ok)
}
