package rabitq

import (
	"math"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSignBitsMatchInput(t *testing.T) {
	v := []float32{1.5, -2.0, 0.3, -0.1, 4.0}
	code := Encode(v)
	require.Len(t, code.Bits, 1)

	for i, x := range v {
		want := !math.Signbit(float64(x))
		got := code.Bits[0]&(1<<uint(i)) != 0
		assert.Equal(t, want, got, "sign bit mismatch at dimension %d", i)
	}
}

func TestEncodeBitsLengthScalesWithDimension(t *testing.T) {
	v := make([]float32, 130)
	for i := range v {
		v[i] = float32(i%7) - 3
	}
	code := Encode(v)
	assert.Len(t, code.Bits, (130+63)/64)
}

func TestPreprocessBinaryPlaneCount(t *testing.T) {
	v := []float32{1, 2, 3, 4, 5}
	lut := PreprocessBinary(v)
	for i := 0; i < BinaryBits; i++ {
		assert.Len(t, lut.Planes[i], (len(v)+63)/64)
	}
}

func TestAccumulateSelfOverlapIsMaximalPopcount(t *testing.T) {
	v := []float32{3, -1, 2, -4, 5, -6, 7, -8}
	code := Encode(v)
	lut := PreprocessBinary(v)

	selfSum := Accumulate(code.Bits, lut)

	// Flipping one sign bit strictly off can only reduce or hold each
	// plane's overlap for that word (AND with fewer set bits), so the
	// accumulated popcount-weighted sum cannot increase.
	flipped := append([]uint64(nil), code.Bits...)
	flipped[0] &^= 1 // clear dimension 0's code bit unconditionally
	flippedSum := Accumulate(flipped, lut)

	assert.LessOrEqual(t, flippedSum, selfSum)
}

func TestHalfProcessL2SelfDistanceIsSmall(t *testing.T) {
	v := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	code := Encode(v)
	lut := PreprocessBinary(v)
	sum := Accumulate(code.Bits, lut)

	rough, errTerm := HalfProcessL2(sum, code.Meta, lut.Meta)
	// Self-distance should lower-bound to near zero, well under the true
	// norm of v, since it is RaBitQ's own reference vector.
	trueNormSq := sumOfSquares(v)
	assert.Less(t, rough, trueNormSq)
	assert.GreaterOrEqual(t, errTerm, float32(0))
}

func TestHalfProcessDotSelfIsNegative(t *testing.T) {
	v := []float32{1, 1, 1, 1}
	code := Encode(v)
	lut := PreprocessBinary(v)
	sum := Accumulate(code.Bits, lut)

	rough, errTerm := HalfProcessDot(sum, code.Meta, lut.Meta)
	// Dot-kind distances are stored as negative inner product; a vector
	// dotted with itself (all-positive here) should score as "closer than
	// zero".
	assert.Less(t, rough, float32(0))
	assert.GreaterOrEqual(t, errTerm, float32(0))
}

func TestPackBitsRoundTripsViaOnesCount(t *testing.T) {
	signs := make([]bool, 70)
	for i := range signs {
		signs[i] = i%3 == 0
	}
	packed := packBits(signs)
	want := 0
	for _, s := range signs {
		if s {
			want++
		}
	}
	got := 0
	for _, w := range packed {
		got += bits.OnesCount64(w)
	}
	assert.Equal(t, want, got)
}
