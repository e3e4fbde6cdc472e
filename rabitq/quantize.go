package rabitq

import "math"

// quantize performs the affine min/max scalar quantization the Rust
// `simd::quantize::quantize(vector, max_val)` helper does (its own source
// wasn't in the retrieval pack, so this reimplements the standard
// min/max-affine scheme the BITS-wide LUT preprocessors assume): every
// element maps onto an integer in [0, maxVal] via
// `round((x - min) / k)` where `k = (max - min) / maxVal`, `b = min`.
// Returns (k, b, quantized) such that `x ≈ k*q + b`.
func quantize(vector []float32, maxVal float32) (k, b float32, q []uint8) {
	if len(vector) == 0 {
		return 0, 0, nil
	}
	lo, hi := vector[0], vector[0]
	for _, x := range vector[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	span := hi - lo
	if span == 0 {
		k = 1
	} else {
		k = span / maxVal
	}
	b = lo
	q = make([]uint8, len(vector))
	for i, x := range vector {
		v := (x - b) / k
		if v < 0 {
			v = 0
		}
		if v > maxVal {
			v = maxVal
		}
		q[i] = uint8(math.Round(float64(v)))
	}
	return k, b, q
}
