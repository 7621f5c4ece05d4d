package model

import (
	"fmt"
	"math"
)

// NodeID is the dense position of a vector in the store.
type NodeID uint32

// InvalidNode marks the absence of a node.
const InvalidNode NodeID = math.MaxUint32

// String returns a string representation of the NodeID.
func (n NodeID) String() string {
	if n == InvalidNode {
		return "Node(invalid)"
	}
	return fmt.Sprintf("Node(%d)", uint32(n))
}

// Candidate is a node found during search.
type Candidate struct {
	// Node is the position of the match.
	Node NodeID
	// Score is the ranking score (smaller is closer).
	Score float32
	// Seq is the insertion sequence of the node, used to break ties.
	Seq uint64
}

// Better reports whether a ranks before b: smaller score first, then
// earlier insertion.
func Better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.Node < b.Node
}
