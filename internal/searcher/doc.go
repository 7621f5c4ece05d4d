// Package searcher provides pooled search context for zero-allocation queries.
//
// The Searcher struct owns all reusable resources needed for graph traversal:
//   - Priority queues (frontier, bounded results)
//   - Visited sets (bitsets with a dirty list)
//   - A 4-ary top-k heap with deterministic tie-breaking
//   - Scratch vectors (dequantization)
//
// Searchers are pooled for reuse across queries.
package searcher
