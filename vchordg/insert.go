package vchordg

import (
	"github.com/ryogrid/vchordlite/distance"
	"github.com/ryogrid/vchordlite/page"
	"github.com/ryogrid/vchordlite/rabitq"
	"github.com/ryogrid/vchordlite/tuple"
)

const maxSegmentElems = (page.ContentSize - 64) / 4

// Insert adds one vector under the given payload TID: allocate segments
// + vertex tuple, seed the start vertex if the graph is empty, otherwise
// greedy search, robust prune, write the new vertex's neighbour list,
// then attempt add_link on every accepted neighbour.
func (ix *Index) Insert(vector []float32, payload uint64) {
	if len(vector) != ix.cfg.Dims {
		panic("vchordg: unmatched dimensions")
	}

	segments := ix.writeVectorSegments(vector)
	code := rabitq.Encode(vector)
	vertexPtr := ix.writeVertex(code, payload, segments, nil)

	start, ok := ix.readStart()
	if !ok {
		ix.tryClaimStart(vertexPtr)
		return
	}

	ef := ix.cfg.EfConstruction
	trace := ix.greedySearch(vector, start, ef)
	accepted := robustPrune(trace, ix.cfg.M, ix.cfg.Alpha, func(a, b traceEntry) float32 {
		return ix.exactBetween(a.ptr, b.ptr)
	})

	neighbours := make([]tuple.OptionNeighbourWire, 0, len(accepted))
	for _, a := range accepted {
		neighbours = append(neighbours, tuple.OptionNeighbourWire{
			Valid: true, PageID: a.ptr.Page, Slot: a.ptr.Slot, Distance: a.dist,
		})
	}
	ix.rewriteVertexNeighbours(vertexPtr, neighbours)

	for _, a := range accepted {
		ix.addLink(a.ptr, vertexPtr, a.dist)
	}
}

func (ix *Index) exactBetween(a, b page.Pointer) float32 {
	_, va, ok1 := ix.fetchVertexAndVector(a)
	_, vb, ok2 := ix.fetchVertexAndVector(b)
	if !ok1 || !ok2 {
		return 0
	}
	return distance.Exact(ix.cfg.Kind, va, vb)
}

// writeVectorSegments splits an oversize vector into page-fitting
// segments, writes them in reverse order so each non-terminal segment can
// point `Index` at its position, and returns the chain head-first.
func (ix *Index) writeVectorSegments(vector []float32) []tuple.PointerWire {
	var chunks [][]float32
	for off := 0; off < len(vector); off += maxSegmentElems {
		end := off + maxSegmentElems
		if end > len(vector) {
			end = len(vector)
		}
		chunks = append(chunks, vector[off:end])
	}
	if len(chunks) == 0 {
		chunks = [][]float32{{}}
	}

	ptrs := make([]tuple.PointerWire, len(chunks))
	for i := len(chunks) - 1; i >= 0; i-- {
		var vt tuple.VectorTuple
		if i == len(chunks)-1 {
			vt = tuple.VectorTuple{Variant: tuple.VectorTerminal, Elems: chunks[i]}
		} else {
			vt = tuple.VectorTuple{Variant: tuple.VectorNonTerminal, Elems: chunks[i], Index: uint16(i)}
		}
		g := ix.mgr.Extend(page.Opaque{}, true)
		slot, ok := g.P.Alloc(vt.Serialize())
		if !ok {
			panic("vchordg: vector segment does not fit an empty page")
		}
		g.Finish()
		ptrs[i] = tuple.PointerWire{PageID: g.ID(), Slot: slot}
	}
	return ptrs
}

func (ix *Index) writeVertex(code rabitq.Code, payload uint64, segments []tuple.PointerWire, neighbours []tuple.OptionNeighbourWire) page.Pointer {
	vt := tuple.VertexTuple{
		DisU2: code.Meta.DisU2, FactorCnt: code.Meta.FactorCnt,
		FactorIP: code.Meta.FactorIP, FactorErr: code.Meta.FactorErr,
		Code: code.Bits, PayloadValid: true, Payload: payload,
		Segments: segments,
	}
	vt.Neighbours = neighbours
	g := ix.mgr.Extend(page.Opaque{}, true)
	slot, ok := g.P.Alloc(vt.Serialize())
	if !ok {
		panic("vchordg: vertex tuple does not fit an empty page")
	}
	id := g.ID()
	g.Finish()
	return page.Pointer{Page: id, Slot: slot}
}

func (ix *Index) rewriteVertexNeighbours(ptr page.Pointer, neighbours []tuple.OptionNeighbourWire) {
	g := ix.mgr.Write(ptr.Page, false)
	raw, ok := g.P.Get(ptr.Slot)
	if !ok {
		g.Abort()
		panic("vchordg: broken link rewriting own vertex, corruption")
	}
	vt := tuple.DeserializeVertex(raw)
	vt.Neighbours = neighbours
	g.P.Free(ptr.Slot)
	if _, ok := g.P.Alloc(vt.Serialize()); !ok {
		g.Abort()
		panic("vchordg: vertex tuple grew too large to fit its page")
	}
	g.Finish()
}

// tryClaimStart sets the meta's start pointer to v if the graph is still
// empty. Races between concurrent first-inserters are resolved by
// re-checking under the exclusive latch.
func (ix *Index) tryClaimStart(v page.Pointer) {
	g := ix.mgr.Write(0, false)
	raw, ok := g.P.Get(1)
	if !ok {
		g.Abort()
		panic("vchordg: data corruption, missing meta tuple")
	}
	mt := tuple.DeserializeMeta(raw)
	if mt.GraphStartSet {
		g.Abort()
		return
	}
	mt.GraphStart = v.Page
	mt.GraphStartSet = true
	g.P.Free(1)
	if _, ok := g.P.Alloc(mt.Serialize()); !ok {
		g.Abort()
		panic("vchordg: meta tuple grew too large to fit page 0")
	}
	g.Finish()
}

// addLink adds newV to u's neighbour list, re-running robust prune over
// u's existing neighbours plus the candidate to keep the degree bound.
// The whole read-modify-write happens under one exclusive latch on u's
// page (mgr.Write holds it from Get through Finish/Abort), so there is
// no concurrent-writer window to retry against: a single pass suffices.
func (ix *Index) addLink(u, newV page.Pointer, d float32) {
	g := ix.mgr.Write(u.Page, false)
	raw, ok := g.P.Get(u.Slot)
	if !ok {
		g.Abort()
		ix.log.Debug().Msg("vchordg: add_link target vertex broken, aborting")
		return
	}
	vt := tuple.DeserializeVertex(raw)
	for _, n := range vt.Neighbours {
		if n.Valid && n.PageID == newV.Page && n.Slot == newV.Slot {
			g.Abort()
			return // fast path: link already present
		}
	}
	candidates := make([]traceEntry, 0, len(vt.Neighbours)+1)
	for _, n := range vt.Neighbours {
		if n.Valid {
			candidates = append(candidates, traceEntry{ptr: page.Pointer{Page: n.PageID, Slot: n.Slot}, dist: float32(n.Distance)})
		}
	}
	candidates = insertSorted(candidates, traceEntry{ptr: newV, dist: d}) // robustPrune expects ascending distance
	pruned := robustPrune(candidates, ix.cfg.M, ix.cfg.Alpha, func(a, b traceEntry) float32 {
		return ix.exactBetween(a.ptr, b.ptr)
	})
	neighbours := make([]tuple.OptionNeighbourWire, 0, len(pruned))
	for _, p := range pruned {
		neighbours = append(neighbours, tuple.OptionNeighbourWire{Valid: true, PageID: p.ptr.Page, Slot: p.ptr.Slot, Distance: p.dist})
	}
	vt.Neighbours = neighbours
	g.P.Free(u.Slot)
	if _, ok := g.P.Alloc(vt.Serialize()); !ok {
		g.Abort()
		ix.log.Warn().Msg("vchordg: add_link target tuple grew too large, dropping link")
		return
	}
	g.Finish()
}
