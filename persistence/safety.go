package persistence

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

var (
	// ErrUnsupportedPlatform is returned on big-endian or non-64-bit targets.
	// The raw slice encoding writes native memory and assumes little-endian.
	ErrUnsupportedPlatform = errors.New("persistence: unsupported platform")

	// ErrUnalignedAccess is returned when a slice is not aligned for its
	// element type.
	ErrUnalignedAccess = errors.New("persistence: unaligned slice")
)

func init() {
	if err := checkPlatform(); err != nil {
		panic(err)
	}
}

func checkPlatform() error {
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "arm64" {
		return fmt.Errorf("%w: GOARCH=%s", ErrUnsupportedPlatform, runtime.GOARCH)
	}
	marker := uint16(1)
	if *(*byte)(unsafe.Pointer(&marker)) != 1 { //nolint:gosec // endianness check
		return fmt.Errorf("%w: big-endian", ErrUnsupportedPlatform)
	}
	return nil
}

// checkAligned reports whether the backing array of s is aligned for T.
func checkAligned[T any](s []T) error {
	if len(s) == 0 {
		return nil
	}
	var zero T
	addr := uintptr(unsafe.Pointer(&s[0])) //nolint:gosec // address inspection only
	if align := unsafe.Alignof(zero); addr%align != 0 {
		return fmt.Errorf("%w: %T at 0x%x", ErrUnalignedAccess, zero, addr)
	}
	return nil
}
