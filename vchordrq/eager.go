package vchordrq

import (
	"container/heap"
	"math"

	"github.com/ryogrid/vchordlite/distance"
	"github.com/ryogrid/vchordlite/rabitq"
)

// EagerSearch is an adaptive-probe-count search: rather than fixing the
// probe count up front, it visits centroids in nearest-first order and
// stops once the probability that a later centroid could still
// contribute a top-k result falls below 1-confidence, modeled as a
// Gaussian tail bound over the query's distances to all centroids
// (computed only for a residual index; otherwise every distance is zero
// and the fit is Normal(0, 1)) (the
// standard normal CDF used directly as a large-probe-count asymptotic
// approximation of the true termination oracle).
func (ix *Index) EagerSearch(query []float32, k int, confidence float64) []SearchResult {
	centroids, jumpHeads := ix.readCentroidsAndLeaves()
	if len(centroids) == 0 {
		return nil
	}
	order := topCentroids(query, centroids, ix.cfg.Kind, len(centroids))

	binLut := rabitq.PreprocessBinary(query)
	var h searchHeap
	heap.Init(&h)

	dists := make([]float32, len(order))
	for i, idx := range order {
		if ix.cfg.Residual {
			dists[i] = distance.Exact(ix.cfg.Kind, query, centroids[idx])
		}
	}
	mean, stddev := meanStddev(dists)

	for i, idx := range order {
		lut := binLut
		if ix.cfg.Residual {
			lut = rabitq.PreprocessBinary(sub(query, centroids[idx]))
		}
		ix.scanLeaf(jumpHeads[idx], lut, &h)

		if h.Len() < k || i+1 >= len(order) {
			continue
		}
		kth := kthSmallest(h, k)
		p := tailProbability(kth, mean, stddev)
		if p < 1-confidence {
			break
		}
	}

	out := make([]SearchResult, 0, h.Len())
	for h.Len() > 0 {
		out = append(out, heap.Pop(&h).(SearchResult))
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func meanStddev(xs []float32) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 1
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	mean = sum / float64(len(xs))
	var variance float64
	for _, x := range xs {
		d := float64(x) - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	stddev = math.Sqrt(variance)
	if stddev == 0 {
		stddev = 1
	}
	return
}

// tailProbability approximates P(X <= kth) under a Normal(mean, stddev)
// fit to the query's distances to all centroids, via the standard normal
// CDF.
func tailProbability(kth, mean, stddev float64) float64 {
	z := (kth - mean) / stddev
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// kthSmallest returns the k-th smallest lower bound among every candidate
// collected so far (the largest one if there are fewer than k), by a
// quadratic selection sort over a copy of the heap.
func kthSmallest(h searchHeap, k int) float64 {
	cp := append(searchHeap(nil), h...)
	for i := 0; i < len(cp); i++ {
		for j := i + 1; j < len(cp); j++ {
			if cp[j].LowerBound < cp[i].LowerBound {
				cp[i], cp[j] = cp[j], cp[i]
			}
		}
	}
	if k-1 < len(cp) {
		return float64(cp[k-1].LowerBound)
	}
	return float64(cp[len(cp)-1].LowerBound)
}
