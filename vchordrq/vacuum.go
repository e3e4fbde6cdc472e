package vchordrq

import "github.com/ryogrid/vchordlite/tuple"

// Liveness reports whether the heap tuple at payload is still live; a
// false result marks the corresponding index row for removal.
type Liveness func(payload uint64) bool

// Vacuum walks every leaf's appendable and frozen tapes, drops rows whose
// payload no longer passes `alive`, and returns how many rows were
// reclaimed. Pages that end up fully empty are returned to the page
// store's free list for Extend to recycle; this vacuum does not consult
// or update the 3-level FreepageTuple bitmap (see DESIGN.md for why that
// wiring was deferred).
func (ix *Index) Vacuum(alive Liveness) int {
	_, jumpHeads := ix.readCentroidsAndLeaves()
	removed := 0
	for _, jumpHead := range jumpHeads {
		removed += ix.vacuumLeaf(jumpHead, alive)
	}
	return removed
}

func (ix *Index) vacuumLeaf(jumpHead uint32, alive Liveness) int {
	jg := ix.mgr.Write(jumpHead, false)
	raw, ok := jg.P.Get(1)
	if !ok {
		jg.Abort()
		return 0
	}
	jt := tuple.DeserializeJump(raw)
	jg.Abort()

	removed := ix.vacuumAppendable(jt.AppendableHead, alive)
	removed += ix.vacuumFrozen(jt.FrozenHead, alive)
	return removed
}

func (ix *Index) vacuumAppendable(head uint32, alive Liveness) int {
	removed := 0
	id := head
	for id != 0 {
		g := ix.mgr.Write(id, false)
		dead := map[uint16]bool{}
		for s := uint16(1); s <= g.P.Len(); s++ {
			b, ok := g.P.Get(s)
			if !ok {
				continue
			}
			at := tuple.DeserializeAppendable(b)
			payload := uint64(at.Pointer.PageID)<<32 | uint64(at.Pointer.Slot)
			if !alive(payload) {
				dead[s] = true
			}
		}
		next := g.P.Opaque().Next
		if len(dead) > 0 {
			removed += len(dead)
			g.P.Reconstruct(dead)
		}
		if g.P.Len() == 0 {
			g.Finish()
			ix.mgr.PushFree(id)
		} else {
			g.Finish()
		}
		id = next
	}
	return removed
}

func (ix *Index) vacuumFrozen(head uint32, alive Liveness) int {
	removed := 0
	id := head
	for id != 0 {
		g := ix.mgr.Write(id, false)
		raw, ok := g.P.Get(1)
		next := g.P.Opaque().Next
		if !ok {
			g.Abort()
			id = next
			continue
		}
		ft := tuple.DeserializeFrozen(raw)
		compact := tuple.CodeGroup{RowBytes: ft.Group.RowBytes}
		lane := 0
		for i := 0; i < int(ft.Group.Lanes); i++ {
			p := ft.Group.Pointers[i]
			payload := uint64(p.PageID)<<32 | uint64(p.Slot)
			if !alive(payload) {
				removed++
				continue
			}
			row := ft.Group.Rows[i*int(ft.Group.RowBytes) : (i+1)*int(ft.Group.RowBytes)]
			compact.Rows = append(compact.Rows, row...)
			compact.Meta[lane] = ft.Group.Meta[i]
			compact.Pointers[lane] = p
			lane++
		}
		compact.Lanes = uint8(lane)
		g.P.Free(1)
		if lane > 0 {
			nft := tuple.FrozenTuple{Group: compact}
			if _, ok := g.P.Alloc(nft.Serialize()); !ok {
				g.Abort()
				id = next
				continue
			}
		}
		g.Finish()
		if lane == 0 {
			ix.mgr.PushFree(id)
		}
		id = next
	}
	return removed
}
