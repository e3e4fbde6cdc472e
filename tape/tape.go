// Package tape implements an append-only linked list of pages: a tape
// threads pages together through the opaque trailer's Next field (the
// Skip field is neither read nor written here) and gives every index structure (centroid tree, leaf partitions,
// vertex/vector storage, freepage chain) the same append/read
// substrate.
package tape

import (
	"github.com/rs/zerolog"
	"github.com/ryogrid/vchordlite/bufmgr"
	"github.com/ryogrid/vchordlite/page"
)

// Tape is a handle on one linked list of pages living under a bufmgr.Mgr.
// First never changes after Create. No last-known-non-full page is
// cached: every Append that misses the freespace map walks from First.
type Tape struct {
	mgr   *bufmgr.Mgr
	first page.ID
	log   zerolog.Logger
}

// Create extends a brand-new single-page tape and returns a handle plus
// the id of its first page.
func Create(mgr *bufmgr.Mgr, opaque page.Opaque, trackFSM bool, log zerolog.Logger) (*Tape, page.ID) {
	g := mgr.Extend(opaque, trackFSM)
	id := g.ID()
	g.Finish()
	return &Tape{mgr: mgr, first: id, log: log}, id
}

// Open wraps an existing tape whose head page id is already known (read
// from a MetaTuple/JumpTuple field).
func Open(mgr *bufmgr.Mgr, first page.ID, log zerolog.Logger) *Tape {
	return &Tape{mgr: mgr, first: first, log: log}
}

// Append places data at the tail of the tape: a freespace-map fast
// path, then a walk from the first page latching forward until a page
// has room or is the true tail, extending a new page when none does.
func (t *Tape) Append(data []byte, opaque page.Opaque) page.Pointer {
	need := uint16(len(data)) // Alloc will account for alignment/line-pointer overhead itself

	if g, ok := t.mgr.Search(need); ok {
		if slot, fits := g.P.Alloc(data); fits {
			id := g.ID()
			g.Finish()
			return page.Pointer{Page: id, Slot: slot}
		}
		g.Abort()
	}

	cur := t.mgr.Write(t.first, true)
	for {
		if slot, fits := cur.P.Alloc(data); fits {
			id := cur.ID()
			cur.Finish()
			return page.Pointer{Page: id, Slot: slot}
		}
		next := cur.P.Opaque().Next
		if next == 0 {
			tail := t.mgr.Extend(opaque, true)
			tailID := tail.ID()
			op := cur.P.Opaque()
			op.Next = uint32(tailID)
			cur.P.SetOpaque(op)
			cur.Finish()

			slot, fits := tail.P.Alloc(data)
			if !fits {
				panic("tape: tuple does not fit an empty page")
			}
			tail.Finish()
			return page.Pointer{Page: tailID, Slot: slot}
		}
		cur.Finish()
		cur = t.mgr.Write(page.ID(next), true)
	}
}

// First returns the tape's head page id.
func (t *Tape) First() page.ID { return t.first }

// ByNext walks the tape sequentially via Opaque().Next, calling fn on
// each page's guard; fn returning false stops the walk early.
func (t *Tape) ByNext(fn func(*bufmgr.ReadGuard) bool) {
	// The first page is always visited (it may be page 0); after it, a
	// Next of 0 marks the tail.
	id := t.first
	for {
		g := t.mgr.Read(id)
		next := g.P.Opaque().Next
		if !fn(g) {
			g.Release()
			return
		}
		g.Release()
		if next == 0 {
			return
		}
		id = page.ID(next)
	}
}

// ByDirectory walks the explicit list of page ids a DirectoryTuple
// enumerates: every page is known up front so a real implementation can
// issue them all as one prefetch batch before touching any of them.
// This implementation fetches straight through bufmgr.Mgr.Read, which
// is where that prefetch would be layered in.
func (t *Tape) ByDirectory(ids []page.ID, fn func(*bufmgr.ReadGuard) bool) {
	for _, id := range ids {
		g := t.mgr.Read(id)
		cont := fn(g)
		g.Release()
		if !cont {
			return
		}
	}
}

// Prefetcher is a lazy, finite sequence of (page, pinned-ahead) reads:
// a ring of pending reads rather than a true async generator, since Go
// has no coroutine primitive for this.
type Prefetcher struct {
	mgr     *bufmgr.Mgr
	pending []page.ID
	ring    []*bufmgr.ReadGuard
	depth   int
}

// NewPrefetcher creates a prefetcher over the given ids with a pipeline
// depth controlling how many pages ahead of the consumer are pinned.
func NewPrefetcher(mgr *bufmgr.Mgr, ids []page.ID, depth int) *Prefetcher {
	if depth < 1 {
		depth = 1
	}
	p := &Prefetcher{mgr: mgr, pending: ids, depth: depth}
	for len(p.ring) < p.depth && len(p.pending) > 0 {
		p.fill()
	}
	return p
}

func (p *Prefetcher) fill() {
	id := p.pending[0]
	p.pending = p.pending[1:]
	p.ring = append(p.ring, p.mgr.Read(id))
}

// Next returns the next ready guard, the caller owning its Release, and
// immediately tops up the ring with the next pending id (if any).
func (p *Prefetcher) Next() (*bufmgr.ReadGuard, bool) {
	if len(p.ring) == 0 {
		return nil, false
	}
	g := p.ring[0]
	p.ring = p.ring[1:]
	if len(p.pending) > 0 {
		p.fill()
	}
	return g, true
}
