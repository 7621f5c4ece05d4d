package persistence

import (
	"errors"
	"fmt"
)

const (
	// MagicNumber identifies roargraph index blobs (ASCII: "RGX1")
	MagicNumber = 0x52475831
	// Version is the current format version (v1.0.0)
	Version = 0x00010000

	// HeaderSize is the encoded size of FileHeader in bytes.
	HeaderSize = 48
)

// Section tags. Every section starts with its tag so a reader can detect
// misaligned or reordered input.
const (
	SectionStore      uint32 = 0x53544f52 // "STOR"
	SectionIDs        uint32 = 0x49445320 // "IDS "
	SectionProjection uint32 = 0x50524f4a // "PROJ"
	SectionSketches   uint32 = 0x534b4554 // "SKET"
	SectionGraph      uint32 = 0x47524150 // "GRAP"
	SectionCSR        uint32 = 0x43535220 // "CSR "
)

// Header flags.
const (
	FlagQuantized uint8 = 1 << iota
	FlagCompiled
	FlagDegraded
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrTruncated      = errors.New("truncated input")
	ErrTooLarge       = errors.New("length exceeds limit")
)

// FileHeader is the 48-byte header at the start of every index blob.
type FileHeader struct {
	Magic      uint32 // 0x52475831 ("RGX1")
	Version    uint32 // Format version
	Metric     uint8  // distance.Metric
	Flags      uint8  // Flag* bits
	Padding1   [2]byte
	Dimension  uint32 // Vector dimensionality
	Count      uint64 // Number of stored vectors
	Generation uint64 // Build generation of the compiled graph
	Reserved   [16]byte
}

// HasFlag reports whether flag is set.
func (h *FileHeader) HasFlag(flag uint8) bool {
	return h.Flags&flag != 0
}

// SectionError reports an unexpected section tag.
type SectionError struct {
	Expected uint32
	Actual   uint32
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("unexpected section: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}
