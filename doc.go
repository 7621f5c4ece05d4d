// Package roargraph provides an embeddable approximate nearest neighbor
// index for Go.
//
// The index builds a RoarGraph: training queries sampled from the corpus
// select bipartite neighbor lists, which are projected onto the base vectors
// to form a navigable graph. Inserted vectors are linked incrementally into
// per-node adjacency lists; the lists are compiled into a compressed sparse
// row (CSR) graph that searches traverse.
//
// # Quick Start
//
//	idx, _ := roargraph.New[string](128, roargraph.Cosine)
//	defer idx.Close()
//
//	_ = idx.Insert(ctx, "doc-1", vector)
//	results, _ := idx.Search(ctx, query, 10)
//	for _, r := range results {
//	    fmt.Println(r.ID, r.Distance)
//	}
//
// # Lifecycle
//
// An index is Empty, Building (changes pending compilation) or Ready.
// Compilation is lazy: searches serve from the last compiled graph and scan
// the vectors inserted since exactly, up to a staleness tolerance. A
// scheduler compiles the graph once enough changes are pending and a sample
// search shows latency degraded against the observed baseline. Finalize
// compiles explicitly; Optimize rebuilds the whole graph from training
// queries.
//
// # Memory
//
// WithQuantization stores 8-bit codes with a per-vector scale and offset.
// WithMemoryLimit caps buffer growth; inserts beyond it fail with
// ErrCapacityExceeded.
//
// # Persistence
//
// WriteTo / Load (and MarshalBinary, SaveToFile, LoadFromFile) serialize the
// whole index with a CRC32C trailer. The snapshot package stores compressed
// snapshots in any blobstore.
//
// # Concurrency
//
// Writers are exclusive; searches run concurrently with each other and with
// compilation.
package roargraph
