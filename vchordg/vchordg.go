// Package vchordg implements a Vamana-style proximity graph index:
// insert via greedy beam search + robust prune + link-back done in one
// pass under an exclusive page latch (no version counter, no retry), and
// a plain greedy search without the prune/link-back
// phase. Dispatch over distance kinds goes through the distance.Kind
// table in package distance.
package vchordg

import (
	"container/heap"

	"github.com/rs/zerolog"
	"github.com/ryogrid/vchordlite/bufmgr"
	"github.com/ryogrid/vchordlite/distance"
	"github.com/ryogrid/vchordlite/page"
	"github.com/ryogrid/vchordlite/rabitq"
	"github.com/ryogrid/vchordlite/tuple"
)

// Config is the graph's construction/search parameters, read once from
// the MetaTuple.
type Config struct {
	Dims           int
	Kind           distance.Kind
	M              int     // max degree
	Alpha          float32 // pruning relaxation, >= 1.0
	EfConstruction int
	EfSearch       int
}

// Index is a handle on one vchordg relation: the page store plus the
// cached meta/config.
type Index struct {
	mgr    *bufmgr.Mgr
	cfg    Config
	log    zerolog.Logger
	metaID page.ID
}

// Open reads the MetaTuple at page 0 slot 1 and returns a ready Index.
func Open(mgr *bufmgr.Mgr, log zerolog.Logger) *Index {
	g := mgr.Read(0)
	raw, ok := g.P.Get(1)
	if !ok {
		g.Release()
		panic("vchordg: data corruption, missing meta tuple")
	}
	mt := tuple.DeserializeMeta(raw)
	g.Release()
	return &Index{
		mgr: mgr,
		log: log,
		cfg: Config{
			Dims:           int(mt.Dims),
			Kind:           distance.Kind(mt.Distance),
			M:              int(mt.M),
			Alpha:          mt.Alpha,
			EfConstruction: int(mt.EfConstruction),
			EfSearch:       int(mt.EfSearch),
		},
	}
}

// Build initializes a brand-new empty graph index: page 0 holds the
// MetaTuple with no start vertex yet.
func Build(mgr *bufmgr.Mgr, cfg Config, log zerolog.Logger) *Index {
	g := mgr.Extend(page.Opaque{}, false)
	if g.ID() != 0 {
		panic("vchordg: build must run against a fresh relation, page 0 already taken")
	}
	mt := tuple.MetaTuple{
		Dims:           uint32(cfg.Dims),
		Distance:       tuple.DistanceKind(cfg.Kind),
		Kind:           tuple.IndexGraph,
		M:              uint32(cfg.M),
		Alpha:          cfg.Alpha,
		EfConstruction: uint32(cfg.EfConstruction),
		EfSearch:       uint32(cfg.EfSearch),
	}
	if slot, ok := g.P.Alloc(mt.Serialize()); !ok || slot != 1 {
		panic("vchordg: unexpected meta tuple layout, expected page 0 slot 1")
	}
	g.Finish()
	return &Index{mgr: mgr, cfg: cfg, log: log}
}

type beamItem struct {
	lb   float32
	ptr  page.Pointer
}

type beamHeap []beamItem

func (h beamHeap) Len() int            { return len(h) }
func (h beamHeap) Less(i, j int) bool  { return h[i].lb < h[j].lb }
func (h beamHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *beamHeap) Push(x interface{}) { *h = append(*h, x.(beamItem)) }
func (h *beamHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// traceEntry is one fully-reranked candidate collected during the greedy
// walk, kept around for the robust-prune step.
type traceEntry struct {
	ptr  page.Pointer
	dist float32
	code []uint64
	meta rabitq.CodeMetadata
}

// greedySearch performs the shared beam-search loop: a min-heap of
// (lower_bound, vertex_pointer), popping and exactly reranking, pushing
// unvisited neighbours by their code-based lower bound, stopping once
// the ef-th best result is closer than the current heap head.
func (ix *Index) greedySearch(query []float32, start page.Pointer, ef int) []traceEntry {
	visited := map[page.Pointer]bool{}
	var h beamHeap
	heap.Init(&h)
	heap.Push(&h, beamItem{lb: 0, ptr: start})
	visited[start] = true

	blut := rabitq.PreprocessBlock(query)
	_ = blut // block LUT kept available for a future fused scan; this scalar
	// walk only needs the binary LUT for per-vertex lower bounds.
	binLut := rabitq.PreprocessBinary(query)

	var results []traceEntry
	for h.Len() > 0 {
		top := heap.Pop(&h).(beamItem)
		if len(results) >= ef {
			worst := results[len(results)-1].dist
			if top.lb >= worst {
				break
			}
		}

		vt, vec, ok := ix.fetchVertexAndVector(top.ptr)
		if !ok {
			continue // broken link: tolerated, just skip
		}
		d := distance.Exact(ix.cfg.Kind, query, vec)
		results = insertSorted(results, traceEntry{ptr: top.ptr, dist: d, code: vt.Code,
			meta: rabitq.CodeMetadata{DisU2: vt.DisU2, FactorCnt: vt.FactorCnt, FactorIP: vt.FactorIP, FactorErr: vt.FactorErr}})
		if len(results) > ef {
			results = results[:ef]
		}

		for _, nb := range vt.Neighbours {
			if !nb.Valid {
				continue
			}
			np := page.Pointer{Page: nb.PageID, Slot: nb.Slot}
			if visited[np] {
				continue
			}
			visited[np] = true
			code, meta, ok := ix.fetchCodeOnly(np)
			if !ok {
				continue
			}
			sum := rabitq.Accumulate(code, binLut)
			lb, errv := rabitq.HalfProcessL2(sum, meta, binLut.Meta)
			if ix.cfg.Kind == distance.Dot {
				lb, errv = rabitq.HalfProcessDot(sum, meta, binLut.Meta)
			}
			heap.Push(&h, beamItem{lb: distance.LowerBound(lb, errv, 1.0), ptr: np})
		}
	}
	return results
}

func insertSorted(results []traceEntry, e traceEntry) []traceEntry {
	i := 0
	for i < len(results) && results[i].dist <= e.dist {
		i++
	}
	results = append(results, traceEntry{})
	copy(results[i+1:], results[i:])
	results[i] = e
	return results
}

// fetchVertexAndVector reads a vertex tuple and reconstructs its full
// vector by walking the segment chain; returns ok=false on any broken
// link (missing slot, wrong tag).
func (ix *Index) fetchVertexAndVector(ptr page.Pointer) (tuple.VertexTuple, []float32, bool) {
	g := ix.mgr.Read(ptr.Page)
	raw, ok := g.P.Get(ptr.Slot)
	if !ok {
		g.Release()
		return tuple.VertexTuple{}, nil, false
	}
	vt := tuple.DeserializeVertex(raw)
	g.Release()
	if len(vt.Segments) == 0 {
		return vt, nil, false
	}
	vec := make([]float32, 0, ix.cfg.Dims)
	for _, seg := range vt.Segments {
		sg := ix.mgr.Read(seg.PageID)
		sraw, ok := sg.P.Get(seg.Slot)
		if !ok {
			sg.Release()
			return vt, nil, false
		}
		segTuple := tuple.DeserializeVector(sraw)
		sg.Release()
		vec = append(vec, segTuple.Elems...)
	}
	return vt, vec, true
}

func (ix *Index) fetchCodeOnly(ptr page.Pointer) ([]uint64, rabitq.CodeMetadata, bool) {
	g := ix.mgr.Read(ptr.Page)
	raw, ok := g.P.Get(ptr.Slot)
	if !ok {
		g.Release()
		return nil, rabitq.CodeMetadata{}, false
	}
	vt := tuple.DeserializeVertex(raw)
	g.Release()
	return vt.Code, rabitq.CodeMetadata{DisU2: vt.DisU2, FactorCnt: vt.FactorCnt, FactorIP: vt.FactorIP, FactorErr: vt.FactorErr}, true
}

// robustPrune implements the standard DiskANN α-prune rule: greedily
// accept candidates by ascending distance, rejecting any candidate c
// for which some already-accepted a satisfies
// `alpha * d(c, a) <= d(c, q)`.
func robustPrune(candidates []traceEntry, m int, alpha float32, distBetween func(a, b traceEntry) float32) []traceEntry {
	accepted := make([]traceEntry, 0, m)
	for _, c := range candidates {
		if len(accepted) >= m {
			break
		}
		ok := true
		for _, a := range accepted {
			if alpha*distBetween(c, a) <= c.dist {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, c)
		}
	}
	return accepted
}

// Search runs the graph's query path: the shared greedy beam loop with
// no prune/link-back, returning ordered (distance, payload) pairs.
func (ix *Index) Search(query []float32, k int) []rerankResult {
	start, ok := ix.readStart()
	if !ok {
		return nil
	}
	ef := ix.cfg.EfSearch
	if ef < k {
		ef = k
	}
	trace := ix.greedySearch(query, start, ef)
	out := make([]rerankResult, 0, k)
	for _, t := range trace {
		if len(out) >= k {
			break
		}
		vt := ix.vertexPayload(t.ptr)
		if !vt.valid {
			continue
		}
		out = append(out, rerankResult{Distance: t.dist, Payload: vt.payload})
	}
	return out
}

type rerankResult struct {
	Distance float32
	Payload  uint64
}

type payloadLookup struct {
	valid   bool
	payload uint64
}

func (ix *Index) vertexPayload(ptr page.Pointer) payloadLookup {
	g := ix.mgr.Read(ptr.Page)
	raw, ok := g.P.Get(ptr.Slot)
	defer g.Release()
	if !ok {
		return payloadLookup{}
	}
	vt := tuple.DeserializeVertex(raw)
	if !vt.PayloadValid {
		return payloadLookup{}
	}
	return payloadLookup{valid: true, payload: vt.Payload}
}

func (ix *Index) readStart() (page.Pointer, bool) {
	g := ix.mgr.Read(0)
	defer g.Release()
	raw, ok := g.P.Get(1)
	if !ok {
		return page.Pointer{}, false
	}
	mt := tuple.DeserializeMeta(raw)
	if !mt.GraphStartSet {
		return page.Pointer{}, false
	}
	return page.Pointer{Page: mt.GraphStart, Slot: 1}, true
}
