// Package mmap provides read-only memory-mapped file access.
//
// Index snapshots are decoded straight from the mapped pages instead of
// being read through an intermediate buffer:
//
//	err := mmap.View("index.rgx", func(data []byte) error {
//	    return idx.UnmarshalBinary(data)
//	})
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile (Advise is a no-op)
//
// # Thread Safety
//
// A Mapping is safe for concurrent reads. Close is idempotent, but callers
// must not touch Bytes() after Close returns.
package mmap
