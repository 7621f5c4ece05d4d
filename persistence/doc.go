//go:build amd64 || arm64

// Package persistence provides the binary container format of an index.
//
// A blob is a FileHeader followed by tagged sections and a trailing
// CRC32-Castagnoli checksum over every preceding byte:
//
//	[header 48B][STOR ...][IDS  ...][PROJ ...][SKET ...][GRAP ...][CSR  ...][crc32c 4B]
//
// Sections are written with Writer and read back with Reader; each component
// of the index encodes its own section. Numeric slices are written as raw
// little-endian memory.
//
// PLATFORM REQUIREMENTS:
//   - Architecture: amd64 or arm64 only
//   - Endianness: Little-endian (native on x86_64 and ARM64)
//   - Alignment: 4-byte for float32/uint32, 8-byte for uint64
//
// The unsafe operations in this package are verified at runtime with alignment checks
// and platform validation. See safety.go for implementation details.
package persistence
