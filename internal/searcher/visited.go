package searcher

import "github.com/hupe1980/roargraph/model"

// VisitedSet tracks visited nodes in a bitset. A dirty list records the set
// bits so Reset touches only what a search visited.
type VisitedSet struct {
	bits  []uint64
	dirty []model.NodeID
}

// NewVisitedSet creates a visited set sized for capacity nodes.
func NewVisitedSet(capacity int) *VisitedSet {
	return &VisitedSet{
		bits:  make([]uint64, (capacity+63)/64),
		dirty: make([]model.NodeID, 0, 128),
	}
}

// Visit marks a node as visited. It reports whether the node was new.
func (v *VisitedSet) Visit(id model.NodeID) bool {
	word := int(id >> 6)
	mask := uint64(1) << (id & 63)

	if word >= len(v.bits) {
		v.grow(word + 1)
	}

	if v.bits[word]&mask != 0 {
		return false
	}
	v.bits[word] |= mask
	v.dirty = append(v.dirty, id)
	return true
}

// Visited reports whether the node has been visited.
func (v *VisitedSet) Visited(id model.NodeID) bool {
	word := int(id >> 6)
	if word >= len(v.bits) {
		return false
	}
	return v.bits[word]&(uint64(1)<<(id&63)) != 0
}

// Count returns the number of visited nodes.
func (v *VisitedSet) Count() int {
	return len(v.dirty)
}

// Reset clears every node visited since the last reset.
func (v *VisitedSet) Reset() {
	for _, id := range v.dirty {
		v.bits[id>>6] &^= uint64(1) << (id & 63)
	}
	v.dirty = v.dirty[:0]
}

// EnsureCapacity grows the set to hold at least capacity nodes.
func (v *VisitedSet) EnsureCapacity(capacity int) {
	if words := (capacity + 63) / 64; words > len(v.bits) {
		v.grow(words)
	}
}

func (v *VisitedSet) grow(words int) {
	bits := make([]uint64, max(len(v.bits)*2, words))
	copy(bits, v.bits)
	v.bits = bits
}
