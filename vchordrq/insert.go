package vchordrq

import (
	"container/heap"

	"github.com/ryogrid/vchordlite/distance"
	"github.com/ryogrid/vchordlite/page"
	"github.com/ryogrid/vchordlite/rabitq"
	"github.com/ryogrid/vchordlite/tuple"
)

// Insert codes one vector into its nearest leaf's appendable tape: find
// the nearest centroid, RaBitQ-code the (possibly residual) vector, and
// append it. New rows live as AppendableTuples until Pack groups
// LaneCount of them into a FrozenTuple.
func (ix *Index) Insert(vector []float32, payload uint64) {
	if len(vector) != ix.cfg.Dims {
		panic("vchordrq: unmatched dimensions")
	}
	centroids, jumpHeads := ix.readCentroidsAndLeaves()
	if len(centroids) == 0 {
		panic("vchordrq: insert against an empty index, build first")
	}
	part := nearest(vector, centroids, ix.cfg.Kind)
	residual := vector
	if ix.cfg.Residual {
		residual = sub(vector, centroids[part])
	}
	code := rabitq.Encode(residual)
	at := tuple.AppendableTuple{Meta: tuple.CodeMetadata(code.Meta), Row: packRow(code.Bits)}
	appendLeaf(ix.mgr, jumpHeads[part], at, payload)
}

// Pack groups every full lane of AppendableTuples accumulated in one
// leaf's appendable tape into a FrozenTuple, prepending it onto the
// leaf's frozen chain and leaving any partial remainder appendable.
// Returns how many groups were packed. Normally driven by a maintenance
// worker rather than inline with Insert.
func (ix *Index) Pack(leafIndex int) int {
	_, jumpHeads := ix.readCentroidsAndLeaves()
	if leafIndex < 0 || leafIndex >= len(jumpHeads) {
		return 0
	}
	return ix.packFrom(jumpHeads[leafIndex])
}

func (ix *Index) packFrom(jumpHead uint32) int {
	jg := ix.mgr.Write(jumpHead, false)
	raw, ok := jg.P.Get(1)
	if !ok {
		jg.Abort()
		return 0
	}
	jt := tuple.DeserializeJump(raw)
	if jt.AppendableHead == 0 {
		jg.Abort()
		return 0
	}

	rows, metas, pointers := ix.drainAppendable(jt.AppendableHead)
	packedGroups := 0
	for len(rows) >= tuple.LaneCount {
		group := buildGroup(rows[:tuple.LaneCount], metas[:tuple.LaneCount], pointers[:tuple.LaneCount])
		ft := tuple.FrozenTuple{Group: group}
		fg := ix.mgr.Extend(page.Opaque{}, false)
		if _, ok := fg.P.Alloc(ft.Serialize()); !ok {
			fg.Abort()
			break
		}
		op := fg.P.Opaque()
		op.Next = jt.FrozenHead
		fg.P.SetOpaque(op)
		jt.FrozenHead = fg.ID()
		fg.Finish()

		rows = rows[tuple.LaneCount:]
		metas = metas[tuple.LaneCount:]
		pointers = pointers[tuple.LaneCount:]
		packedGroups++
	}

	jt.AppendableHead = 0
	jt.TupleCount = 0 // rewriteRemainder counts the remainder back in
	jg.P.Free(1)
	if _, ok := jg.P.Alloc(jt.Serialize()); !ok {
		jg.Abort()
		return packedGroups
	}
	jg.Finish()

	ix.rewriteRemainder(jumpHead, rows, metas, pointers)
	return packedGroups
}

// drainAppendable walks an appendable tape start to end, collecting every
// row/metadata/pointer triple. The walked pages are abandoned: packFrom
// unlinks them from the JumpTuple, and Vacuum, which walks only linked
// pages, does not reclaim them.
func (ix *Index) drainAppendable(head uint32) (rows [][]byte, metas []tuple.CodeMetadata, pointers []tuple.PointerWire) {
	id := head
	for id != 0 {
		g := ix.mgr.Read(id)
		for s := uint16(1); s <= g.P.Len(); s++ {
			b, ok := g.P.Get(s)
			if !ok {
				continue
			}
			at := tuple.DeserializeAppendable(b)
			rows = append(rows, at.Row)
			metas = append(metas, at.Meta)
			pointers = append(pointers, at.Pointer)
		}
		next := g.P.Opaque().Next
		g.Release()
		id = next
	}
	return
}

// rewriteRemainder re-appends whatever didn't fill a full lane to the
// leaf's emptied appendable tape via appendLeaf, which starts a new
// appendable page and links it from the JumpTuple.
func (ix *Index) rewriteRemainder(jumpHead uint32, rows [][]byte, metas []tuple.CodeMetadata, pointers []tuple.PointerWire) {
	for i := range rows {
		at := tuple.AppendableTuple{Meta: metas[i], Row: rows[i]}
		payload := uint64(pointers[i].PageID)<<32 | uint64(pointers[i].Slot)
		appendLeaf(ix.mgr, jumpHead, at, payload)
	}
}

func buildGroup(rows [][]byte, metas []tuple.CodeMetadata, pointers []tuple.PointerWire) tuple.CodeGroup {
	rowBytes := len(rows[0])
	g := tuple.CodeGroup{RowBytes: uint16(rowBytes), Lanes: uint8(len(rows))}
	g.Rows = make([]byte, 0, rowBytes*len(rows))
	for i := range rows {
		g.Meta[i] = metas[i]
		g.Pointers[i] = pointers[i]
		g.Rows = append(g.Rows, rows[i]...)
	}
	return g
}

// scanFrozen folds a FrozenTuple chain's rows into the search heap, the
// same lower-bound kernel scanLeaf uses for appendable rows.
func (ix *Index) scanFrozen(frozenHead uint32, lut rabitq.BinaryLut, h *searchHeap) {
	id := frozenHead
	for id != 0 {
		g := ix.mgr.Read(id)
		raw, ok := g.P.Get(1)
		next := g.P.Opaque().Next
		g.Release()
		if !ok {
			id = next
			continue
		}
		ft := tuple.DeserializeFrozen(raw)
		for lane := 0; lane < int(ft.Group.Lanes); lane++ {
			row := ft.Group.Rows[lane*int(ft.Group.RowBytes) : (lane+1)*int(ft.Group.RowBytes)]
			sum := rabitq.Accumulate(bitsFromRow(row), lut)
			var lb, errv float32
			if ix.cfg.Kind == distance.Dot {
				lb, errv = rabitq.HalfProcessDot(sum, rabitq.CodeMetadata(ft.Group.Meta[lane]), lut.Meta)
			} else {
				lb, errv = rabitq.HalfProcessL2(sum, rabitq.CodeMetadata(ft.Group.Meta[lane]), lut.Meta)
			}
			p := ft.Group.Pointers[lane]
			payload := uint64(p.PageID)<<32 | uint64(p.Slot)
			heap.Push(h, SearchResult{LowerBound: distance.LowerBound(lb, errv, ix.cfg.Epsilon), Payload: payload})
		}
		id = next
	}
}
