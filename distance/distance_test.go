package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExactL2(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 6, 3}
	got := Exact(L2, a, b)
	assert.InDelta(t, float32(9+16+0), got, 1e-6)
}

func TestExactDot(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{1, 1, 1}
	got := Exact(Dot, a, b)
	assert.InDelta(t, float32(-6), got, 1e-6)
}

func TestExactUnknownKindPanics(t *testing.T) {
	assert.Panics(t, func() { Exact(Kind(99), []float32{1}, []float32{1}) })
}

func TestAccumulatorMatchesExact(t *testing.T) {
	query := []float32{1, 2, 3, 4}
	vec := []float32{2, 2, 1, 5}

	for _, kind := range []Kind{L2, Dot} {
		acc := NewAccumulator(kind)
		acc.Feed(query[:2], vec[:2])
		acc.Feed(query[2:], vec[2:])
		assert.InDelta(t, Exact(kind, query, vec), acc.Finish(), 1e-5)
	}
}

func TestCentroidDistance(t *testing.T) {
	query := []float32{1, 2}
	centroid := []float32{3, 4}
	assert.Equal(t, float32(0), CentroidDistance(L2, false, query, centroid))
	assert.InDelta(t, Exact(L2, query, centroid), CentroidDistance(L2, true, query, centroid), 1e-6)
}

func TestLowerBound(t *testing.T) {
	got := LowerBound(10, 2, 1.9)
	assert.InDelta(t, float32(10-1.9*2), got, 1e-6)
}
