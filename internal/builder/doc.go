// Package builder constructs the proximity graph.
//
// Build is the training-based construction: a small stratified sample of the
// corpus acts as training queries, each query's exact top-M neighbors form a
// bipartite list, and every list is projected back onto the corpus as
// base-to-base edges. Nodes no training list covers are linked through the
// same incremental path inserts use.
//
// Link is that incremental path: a beam search over the adjacency lists,
// followed by diversity-pruned neighbor selection and reverse edges.
package builder
