// Package bufmgr is vchordlite's page store: it turns the host's opaque
// page collaborator (package hostsim) into a pinned/latched,
// freespace-aware relation API. A hash-chained latch table with
// clock-sweep eviction backs pin/unpin/latch, shaped to hold any tuple
// living inside a page.Page rather than one fixed page layout.
package bufmgr

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/ryogrid/vchordlite/hostsim"
	"github.com/ryogrid/vchordlite/latch"
	"github.com/ryogrid/vchordlite/page"
)

const hashChainLen = 16

// latchEntry is one buffer-pool slot: the pinned page plus its latch
// state.
type latchEntry struct {
	pageNo   uint32
	pin      uint32
	clockBit uint32
	next     uint32
	prev     uint32
	rw       latch.RW
	dirty    bool
	buf      page.Page
}

func (e *latchEntry) page() *page.Page { return &e.buf }

type hashSlot struct {
	mu   sync.Mutex
	head uint32
}

// Mgr is the relation-level page store: Read/Write/Extend/Search plus
// the freespace map, all driven by latchEntry/hostsim.HostBufferManager
// underneath.
type Mgr struct {
	host    hostsim.HostBufferManager
	log     zerolog.Logger
	metrics *metrics

	allocLock latch.Spin // guards page-id -> host-page-id mapping growth

	hashTable []hashSlot
	entries   []latchEntry
	deployed  uint32
	victim    uint32

	idMap sync.Map // vchordlite page.ID -> host page id (int32)
	// freeListHead holds at most one reusable page id released by
	// PushFree, stored as id+1; 0 means empty.
	freeListHead uint32
	freeListMu   latch.Spin

	nextPageID uint32

	// freespaceMap is a coarse per-page byte count, refreshed on Write and
	// consulted by Search; staleness is expected and re-verified under
	// latch.
	freespaceMap sync.Map // page.ID -> uint16
}

func New(host hostsim.HostBufferManager, poolEntries uint, log zerolog.Logger) *Mgr {
	if poolEntries < hashChainLen {
		panic(fmt.Sprintf("bufmgr: pool too small: %d", poolEntries))
	}
	hashSlots := poolEntries / hashChainLen
	m := &Mgr{
		host:      host,
		log:       log,
		metrics:   newMetrics(),
		hashTable: make([]hashSlot, hashSlots),
		entries:   make([]latchEntry, poolEntries+1), // slot 0 unused
	}
	return m
}

func (m *Mgr) hashOf(id page.ID) uint {
	if len(m.hashTable) == 0 {
		return 0
	}
	return uint(id) % uint(len(m.hashTable))
}

// pin finds or loads id into the pool and returns its pool slot, pinned.
func (m *Mgr) pin(id page.ID) uint32 {
	h := m.hashOf(id)
	hs := &m.hashTable[h]
	hs.mu.Lock()
	defer hs.mu.Unlock()

	for slot := hs.head; slot != 0; slot = m.entries[slot].next {
		if m.entries[slot].pageNo == uint32(id) {
			atomic.AddUint32(&m.entries[slot].pin, 1)
			m.metrics.hits.Inc()
			return slot
		}
	}

	m.metrics.misses.Inc()
	slot := atomic.AddUint32(&m.deployed, 1)
	if slot >= uint32(len(m.entries)) {
		atomic.AddUint32(&m.deployed, ^uint32(0)) // undo; fall back to clock sweep
		return m.evictAndLoad(h, id)
	}
	m.linkNew(h, slot, id)
	m.loadFromHost(slot, id)
	return slot
}

func (m *Mgr) linkNew(h uint, slot uint32, id page.ID) {
	hs := &m.hashTable[h]
	e := &m.entries[slot]
	e.next = hs.head
	if hs.head != 0 {
		m.entries[hs.head].prev = slot
	}
	hs.head = slot
	e.pageNo = uint32(id)
	e.prev = 0
	e.pin = 1
	e.clockBit = 0
}

func (m *Mgr) loadFromHost(slot uint32, id page.ID) {
	hostID := m.hostIDFor(id)
	hp := m.host.Fetch(int32(hostID))
	copy(m.entries[slot].page().Buf[:], hp.DataAsSlice())
	_ = m.host.Unpin(int32(hostID), false)
}

// evictAndLoad runs the clock-sweep loop to find a victim pool slot,
// writes it back if dirty, then relinks it under id.
func (m *Mgr) evictAndLoad(h uint, id page.ID) uint32 {
	for {
		slot := atomic.AddUint32(&m.victim, 1) % uint32(len(m.entries)-1)
		slot++ // keep slot 0 reserved
		e := &m.entries[slot]
		if atomic.LoadUint32(&e.pin) > 0 {
			if e.clockBit != 0 {
				atomic.StoreUint32(&e.clockBit, 0)
			}
			continue
		}
		victimHash := m.hashOf(page.ID(e.pageNo))
		vhs := &m.hashTable[victimHash]
		vhs.mu.Lock()
		if atomic.LoadUint32(&e.pin) > 0 {
			vhs.mu.Unlock()
			continue
		}
		if e.dirty {
			m.flushEntry(slot)
			m.metrics.flushes.Inc()
		}
		m.unlink(vhs, slot)
		vhs.mu.Unlock()
		m.metrics.evicts.Inc()

		hs := &m.hashTable[h]
		m.linkNew(h, slot, id)
		_ = hs
		m.loadFromHost(slot, id)
		return slot
	}
}

func (m *Mgr) unlink(hs *hashSlot, slot uint32) {
	e := &m.entries[slot]
	if e.prev != 0 {
		m.entries[e.prev].next = e.next
	} else {
		hs.head = e.next
	}
	if e.next != 0 {
		m.entries[e.next].prev = e.prev
	}
}

func (m *Mgr) flushEntry(slot uint32) {
	e := &m.entries[slot]
	hostID := m.hostIDFor(page.ID(e.pageNo))
	hp := m.host.Fetch(int32(hostID))
	copy(hp.DataAsSlice(), e.page().Buf[:])
	_ = m.host.Unpin(int32(hostID), true)
	e.dirty = false
}

// unpin releases one pin on slot, marking the clock bit for future sweeps.
func (m *Mgr) unpin(slot uint32) {
	e := &m.entries[slot]
	atomic.StoreUint32(&e.clockBit, 1)
	atomic.AddUint32(&e.pin, ^uint32(0))
}

func (m *Mgr) hostIDFor(id page.ID) int32 {
	v, ok := m.idMap.Load(id)
	if !ok {
		panic("bufmgr: page id has no host mapping, corruption")
	}
	return v.(int32)
}
