// Package quantization provides per-vector 8-bit scalar quantization.
//
// Every vector is quantized independently: its own minimum becomes the
// offset and its own range, split into 255 steps, becomes the scale.
//
//	codes := make([]uint8, len(vec))
//	p := quantization.Encode(codes, vec)
//	approx := p.Decode(nil, codes)
//
// A constant vector has no range; its scale falls back to 1.0 so decoding
// never divides by zero and recovers the constant exactly.
//
// Distances against stored codes are computed with the fused kernels
// SquaredL2 and Dot, which dequantize inline per component instead of
// materializing a float buffer. Codes take one byte per dimension, a 75%
// reduction against float32 storage.
//
// The reconstruction error of a component is bounded by Params.Scale.
package quantization
