package mem

import "unsafe"

// Alignment is the start alignment of row buffers: one cache line, which
// also satisfies the widest vector loads of the distance kernels.
const Alignment = 64

// Aligned returns a zeroed slice of n elements whose first element starts on
// an Alignment boundary. It over-allocates by less than Alignment bytes.
func Aligned[T any](n int) []T {
	if n <= 0 {
		return nil
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 || Alignment%size != 0 {
		return make([]T, n)
	}

	pad := Alignment / size
	buf := make([]T, n+pad)
	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // address inspection only
	skip := int((Alignment-addr%Alignment)%Alignment) / size
	return buf[skip : skip+n : skip+n]
}
