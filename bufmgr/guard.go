package bufmgr

import (
	"github.com/ryogrid/vchordlite/latch"
	"github.com/ryogrid/vchordlite/page"
)

// ReadGuard is a pinned, shared-latched page. Release must be called
// exactly once; a panic while holding one is benign (the latch is simply
// never released and the process aborts upward).
type ReadGuard struct {
	mgr  *Mgr
	slot uint32
	id   page.ID
	P    *page.Page
}

func (g *ReadGuard) Release() {
	g.mgr.entries[g.slot].rw.Unlock(latch.ModeRead)
	g.mgr.unpin(g.slot)
}

// ID returns the page id this guard is latched on.
func (g *ReadGuard) ID() page.ID { return g.id }

// Read pins id and takes a shared latch on it.
func (m *Mgr) Read(id page.ID) *ReadGuard {
	slot := m.pin(id)
	m.entries[slot].rw.Lock(latch.ModeRead)
	return &ReadGuard{mgr: m, slot: slot, id: id, P: m.entries[slot].page()}
}

// WriteGuard is a pinned, exclusive-latched page with a "generic WAL"
// registration the host is assumed to wrap around it. Finish commits the
// write (marks the entry dirty, optionally refreshes the freespace map);
// Abort discards it by reloading the host's last-known-good bytes.
// Callers should always release one under a defer.
type WriteGuard struct {
	mgr      *Mgr
	slot     uint32
	id       page.ID
	trackFSM bool
	P        *page.Page
	walBegun bool
}

// ID returns the page id this guard is latched on.
func (g *WriteGuard) ID() page.ID { return g.id }

// Write pins id and takes an exclusive latch, beginning the generic WAL
// registration the host contract promises.
func (m *Mgr) Write(id page.ID, trackFSM bool) *WriteGuard {
	slot := m.pin(id)
	m.entries[slot].rw.Lock(latch.ModeWrite)
	// Flush a committed but not yet flushed image first, so the host holds
	// exactly the pre-write bytes that Abort reloads.
	if m.entries[slot].dirty {
		m.flushEntry(slot)
		m.metrics.flushes.Inc()
	}
	m.log.Debug().Uint32("page", uint32(id)).Msg("write guard: begin generic wal")
	return &WriteGuard{mgr: m, slot: slot, id: id, trackFSM: trackFSM, P: m.entries[slot].page(), walBegun: true}
}

// Finish commits the write: marks the pool entry dirty so a later evict
// or Close flushes it to the host, updates the freespace map if
// requested, then releases the latch and the pin.
func (g *WriteGuard) Finish() {
	e := &g.mgr.entries[g.slot]
	e.dirty = true
	if g.trackFSM {
		g.mgr.freespaceMap.Store(g.id, e.page().Freespace())
	}
	g.mgr.log.Debug().Uint32("page", uint32(g.id)).Msg("write guard: commit generic wal")
	e.rw.Unlock(latch.ModeWrite)
	g.mgr.unpin(g.slot)
}

// Abort discards any in-memory mutation by reloading the page from the
// host (the host's generic WAL guarantees the pre-write image is still
// recoverable) and releases the latch/pin without marking the entry
// dirty. Callers reach this path from a recover() after a panic inside
// the write's critical section.
func (g *WriteGuard) Abort() {
	g.mgr.loadFromHost(g.slot, g.id)
	e := &g.mgr.entries[g.slot]
	e.rw.Unlock(latch.ModeWrite)
	g.mgr.unpin(g.slot)
}

// Extend allocates a new page under the allocation spinlock, initializes
// it, and returns it exclusively latched and pinned for the caller to
// populate: allocation happens under the lock, then the page is loaded
// without a stale cache read.
func (m *Mgr) Extend(opaque page.Opaque, trackFSM bool) *WriteGuard {
	m.allocLock.Lock()
	var id page.ID
	if freed, ok := m.popFreeList(); ok {
		id = freed
	} else {
		id = m.nextPageID
		m.nextPageID++
		hp := m.host.New()
		m.idMap.Store(id, hp.ID())
		_ = m.host.Unpin(hp.ID(), false)
	}
	m.allocLock.Unlock()

	g := m.Write(id, trackFSM)
	g.P.Init(opaque)
	return g
}

// popFreeList pops a single reclaimed page id, or reports none
// available. Vacuum feeds this via PushFree; Extend falls back to a
// brand-new host page otherwise. This is a one-deep slot rather than a
// full free list — see DESIGN.md for why the hierarchical freepage
// bitmap in package tuple is not wired in here.
func (m *Mgr) popFreeList() (page.ID, bool) {
	m.freeListMu.Lock()
	defer m.freeListMu.Unlock()
	if m.freeListHead == 0 {
		return 0, false
	}
	id := page.ID(m.freeListHead - 1)
	m.freeListHead = 0
	return id, true
}

// PushFree puts a page id into the one-deep free-list slot for Extend to
// recycle; an id pushed earlier and not yet popped is replaced. It
// does not reset the page's own content — the caller (vacuum) is
// responsible for having already reconstructed it to empty.
func (m *Mgr) PushFree(id page.ID) {
	m.freeListMu.Lock()
	defer m.freeListMu.Unlock()
	m.freeListHead = uint32(id) + 1 // stored as id+1 so 0 can mean empty
}

// Search looks for a page with at least `need` bytes free via the
// freespace map, latches it exclusively, and re-verifies the real
// freespace before returning it (the map can be stale). Returns
// ok=false if no candidate is known.
func (m *Mgr) Search(need uint16) (*WriteGuard, bool) {
	var found *WriteGuard
	m.freespaceMap.Range(func(k, v any) bool {
		id := k.(page.ID)
		free := v.(uint16)
		if free < need {
			return true
		}
		g := m.Write(id, true)
		if g.P.Freespace() >= need {
			found = g
			return false
		}
		// stale entry: refresh and keep looking
		m.freespaceMap.Store(id, g.P.Freespace())
		g.Abort()
		return true
	})
	if found == nil {
		return nil, false
	}
	return found, true
}
