// Package rerank turns a stream of lower-bound candidates into ordered
// exact-distance results: pull candidates, fetch full vectors, and
// maintain a bounded top-k heap.
package rerank

import (
	"container/heap"
	"math"

	"github.com/ryogrid/vchordlite/bufmgr"
	"github.com/ryogrid/vchordlite/distance"
	"github.com/ryogrid/vchordlite/page"
	"github.com/ryogrid/vchordlite/tuple"
)

// Candidate is one lower-bound hit emitted by a search path: a pointer to
// the head segment of the candidate's vector chain, its payload TID, and
// a prefetch list of the vector-tuple page ids the segment chain spans.
type Candidate struct {
	LowerBound float32
	Payload    uint64
	HeadSeg    page.Pointer
	Prefetch   []page.ID
}

// Result is one finished, exactly-scored hit.
type Result struct {
	Distance float32
	Payload  uint64
}

// RowFetcher resolves the rerank-in-heap path: when the index was built
// with that flag, the reranker skips its own vector fetch and asks the
// host to re-read the original row instead. The contract is exactly
// this: given a payload TID, return its vector.
type RowFetcher interface {
	FetchRow(payload uint64) []float32
}

type heapItem struct {
	dist    float32
	payload uint64
}

type topKHeap struct {
	items []heapItem
	k     int
}

func (h *topKHeap) Len() int            { return len(h.items) }
func (h *topKHeap) Less(i, j int) bool  { return h.items[i].dist > h.items[j].dist } // max-heap: worst on top
func (h *topKHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topKHeap) Push(x interface{})  { h.items = append(h.items, x.(heapItem)) }
func (h *topKHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// Reranker scores each candidate as soon as it is fed (no buffering and
// no prefetch of head segments), folding the segment chain into an exact
// distance via a distance.Accumulator or asking the RowFetcher, and
// maintains a bounded top-k max-heap so it can terminate as soon as the
// stream's lower bounds can no longer beat the current k-th best.
type Reranker struct {
	mgr      *bufmgr.Mgr
	kind     distance.Kind
	query    []float32
	k        int
	fetcher  RowFetcher // non-nil iff rerank-in-heap
	heap     topKHeap
}

func New(mgr *bufmgr.Mgr, kind distance.Kind, query []float32, k int, fetcher RowFetcher) *Reranker {
	r := &Reranker{mgr: mgr, kind: kind, query: query, k: k, fetcher: fetcher}
	r.heap.k = k
	heap.Init(&r.heap)
	return r
}

// termination is the k-th best exact distance seen so far, or +Inf
// until k candidates have been accepted.
func (r *Reranker) termination() float32 {
	if len(r.heap.items) < r.k {
		return float32(math.Inf(1))
	}
	return r.heap.items[0].dist
}

// Feed consumes one candidate from the search path's stream. Candidates
// must arrive in non-decreasing LowerBound order (the search paths
// already produce them that way); Feed returns false once the stream
// can be stopped (LowerBound >= termination).
func (r *Reranker) Feed(c Candidate) bool {
	if c.LowerBound >= r.termination() {
		return false
	}

	var exact float32
	if r.fetcher != nil {
		row := r.fetcher.FetchRow(c.Payload)
		exact = distance.Exact(r.kind, r.query, row)
	} else {
		exact = r.exactFromChain(c)
	}

	if len(r.heap.items) < r.k {
		heap.Push(&r.heap, heapItem{dist: exact, payload: c.Payload})
	} else if exact < r.heap.items[0].dist {
		heap.Pop(&r.heap)
		heap.Push(&r.heap, heapItem{dist: exact, payload: c.Payload})
	}
	return true
}

// exactFromChain walks the vector's segment chain starting at the head
// pointer, reading non-terminal segments in order then the terminal
// one, folding each into the running distance via a distance.Accumulator.
// A broken link mid-chain is fatal here: the reranker only ever reaches
// a candidate the search path has already validated as live.
func (r *Reranker) exactFromChain(c Candidate) float32 {
	acc := distance.NewAccumulator(r.kind)
	qoff := 0
	ptr := c.HeadSeg
	for {
		g := r.mgr.Read(ptr.Page)
		raw, ok := g.P.Get(ptr.Slot)
		if !ok {
			g.Release()
			panic("rerank: broken link in vector segment chain")
		}
		vt := tuple.DeserializeVector(raw)
		g.Release()

		end := qoff + len(vt.Elems)
		if end > len(r.query) {
			end = len(r.query)
		}
		acc.Feed(r.query[qoff:end], vt.Elems[:end-qoff])
		qoff = end

		if vt.Variant == tuple.VectorTerminal {
			break
		}
		next := nextFromPrefetch(c.Prefetch, ptr.Page)
		if next == 0 {
			break
		}
		ptr = page.Pointer{Page: next, Slot: 1}
	}
	return acc.Finish()
}

func nextFromPrefetch(prefetch []page.ID, current page.ID) page.ID {
	for i, id := range prefetch {
		if id == current && i+1 < len(prefetch) {
			return prefetch[i+1]
		}
	}
	return 0
}

// Results drains the heap into ascending-distance order.
func (r *Reranker) Results() []Result {
	out := make([]Result, len(r.heap.items))
	items := append([]heapItem(nil), r.heap.items...)
	tmp := topKHeap{items: items, k: r.k}
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = Result{Distance: tmp.items[0].dist, Payload: tmp.items[0].payload}
		heap.Pop(&tmp)
	}
	return out
}
