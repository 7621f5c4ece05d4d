// Package vectorstore provides the append-only, contiguous vector storage
// behind the index.
//
// # Layout
//
// Rows are stored as a Structure-of-Arrays: one flat []float32 (or []uint8
// codes plus per-row quantization.Params when quantized), one []uint64 of
// insertion sequence numbers and one []K of external ids. A row is addressed
// by its model.NodeID, which is its position.
//
//   - Cache efficiency: sequential scans touch contiguous memory
//   - SIMD friendliness: kernels run over whole rows without gathers
//   - Stable addressing: NodeIDs are indices, never pointers
//
// # Growth
//
// Every buffer grows independently under mem.NextCapacity and is charged
// against an optional resource.Controller before it is allocated. A refused
// reservation is ErrCapacityExceeded; the store stays usable.
//
// # Removal
//
// SwapRemove moves the last row into the hole and reports which node moved so
// callers can renumber their own per-node structures.
//
// # Concurrency
//
// The store is safe for concurrent read access. Add, SwapRemove and Reset
// require external synchronization.
package vectorstore
