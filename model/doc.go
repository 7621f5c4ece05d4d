// Package model defines the core types shared by the index internals.
//
// # Identity Types
//
//   - NodeID: dense position of a vector in the store (uint32)
//
// A NodeID is a stable index, never a pointer: buffer growth never
// invalidates it. Removing a vector swap-removes it, so the last node takes
// the removed position and every component renumbers it.
//
// # Search Types
//
//   - Candidate: a node with its ranking score and insertion sequence
package model
