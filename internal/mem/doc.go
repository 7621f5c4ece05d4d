// Package mem provides the allocation and growth helpers of row buffers.
//
// # Aligned Allocation
//
// Aligned starts vector rows on a cache line.
//
// # Growth Policy
//
// NextCapacity implements the size-aware geometric growth shared by every
// growable buffer in the index: 2x below 10K rows, 1.5x below 100K rows and
// 1.125x beyond. Grow applies the policy to a row-major slice.
package mem
