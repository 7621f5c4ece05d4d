// Package math32 implements the float32 and uint8-dequantizing kernels behind
// distance computations.
//
// Kernels are pure Go. On CPUs with wide vector units (AVX2/AVX-512 on x86-64,
// ASIMD on ARM64, detected via golang.org/x/sys/cpu) 8-way unrolled variants
// with independent accumulators are selected at init.
package math32
