package math32

var (
	// useWide selects the 8-way unrolled kernels. It is set by the
	// architecture-specific init when the CPU has wide vector units, where the
	// compiler schedules independent accumulators better.
	useWide bool

	dot       = dotGeneric
	squaredL2 = squaredL2Generic
)

// Dot calculates the dot product of two vectors.
// Assumes len(a) == len(b) (caller's responsibility).
func Dot(a, b []float32) float32 {
	return dot(a, b)
}

// SquaredL2 calculates the squared L2 distance.
// Assumes len(a) == len(b) (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return squaredL2(a, b)
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

// Wide reports whether the unrolled kernels are active.
func Wide() bool {
	return useWide
}

func selectKernels() {
	if useWide {
		dot = dotUnrolled
		squaredL2 = squaredL2Unrolled
		return
	}
	dot = dotGeneric
	squaredL2 = squaredL2Generic
}

func dotGeneric(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}
	return ret
}

func squaredL2Generic(a, b []float32) float32 {
	var distance float32
	for i := range a {
		d := a[i] - b[i]
		distance += d * d
	}
	return distance
}

func dotUnrolled(a, b []float32) float32 {
	n := len(a)
	b = b[:n]
	var s0, s1, s2, s3, s4, s5, s6, s7 float32
	i := 0
	for ; i+8 <= n; i += 8 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
		s4 += a[i+4] * b[i+4]
		s5 += a[i+5] * b[i+5]
		s6 += a[i+6] * b[i+6]
		s7 += a[i+7] * b[i+7]
	}
	for ; i < n; i++ {
		s0 += a[i] * b[i]
	}
	return (s0 + s1) + (s2 + s3) + (s4 + s5) + (s6 + s7)
}

func squaredL2Unrolled(a, b []float32) float32 {
	n := len(a)
	b = b[:n]
	var s0, s1, s2, s3, s4, s5, s6, s7 float32
	i := 0
	for ; i+8 <= n; i += 8 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		d4 := a[i+4] - b[i+4]
		d5 := a[i+5] - b[i+5]
		d6 := a[i+6] - b[i+6]
		d7 := a[i+7] - b[i+7]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
		s4 += d4 * d4
		s5 += d5 * d5
		s6 += d6 * d6
		s7 += d7 * d7
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		s0 += d * d
	}
	return (s0 + s1) + (s2 + s3) + (s4 + s5) + (s6 + s7)
}

// SquaredL2Uint8 computes the squared L2 distance between query and the
// dequantized vector code*scale + offset without materializing it.
//
// Assumes len(query) == len(code). Caller's responsibility.
func SquaredL2Uint8(query []float32, code []uint8, scale, offset float32) float32 {
	code = code[:len(query)]
	var sum float32
	for i, q := range query {
		d := q - (float32(code[i])*scale + offset)
		sum += d * d
	}
	return sum
}

// DotUint8 computes the dot product between query and the dequantized vector
// code*scale + offset.
//
// sum(q*(c*s+o)) = s*sum(q*c) + o*sum(q), so one pass suffices.
func DotUint8(query []float32, code []uint8, scale, offset float32) float32 {
	code = code[:len(query)]
	var qc, qs float32
	for i, q := range query {
		qc += q * float32(code[i])
		qs += q
	}
	return scale*qc + offset*qs
}
