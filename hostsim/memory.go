package hostsim

import (
	"sync"
	"sync/atomic"

	"github.com/dsnet/golib/memfile"
	"github.com/ryogrid/vchordlite/page"
)

// memPage is an in-memory HostPage holding its own page-sized array; a
// dirty Unpin copies that array into the shared memfile.File, so the
// whole pool can also be read back as one byte image (useful for dumping
// a snapshot).
type memPage struct {
	id       int32
	pinCount int32
	data     [page.Size]byte
}

func (p *memPage) DataAsSlice() []byte { return p.data[:] }
func (p *memPage) ID() int32           { return p.id }
func (p *memPage) PinCount() int32     { return atomic.LoadInt32(&p.pinCount) }
func (p *memPage) DecPinCount()        { atomic.AddInt32(&p.pinCount, -1) }

// Memory is a pure in-process HostBufferManager: no eviction, no real
// I/O, every page lives in a Go map for the process lifetime. This is
// the default collaborator for unit tests.
type Memory struct {
	mu      sync.Mutex
	pages   map[int32]*memPage
	nextID  int32
	backing *memfile.File // kept open only to exercise the dependency's
	// io.ReaderAt/WriterAt contract when a caller wants a byte-accurate
	// snapshot via Snapshot().
}

func NewMemory() *Memory {
	return &Memory{
		pages:   make(map[int32]*memPage),
		backing: memfile.New(nil),
	}
}

func (m *Memory) Fetch(id int32) HostPage {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[id]
	if !ok {
		panic("hostsim: fetch of unknown page id")
	}
	atomic.AddInt32(&p.pinCount, 1)
	return p
}

func (m *Memory) Unpin(id int32, isDirty bool) error {
	m.mu.Lock()
	p, ok := m.pages[id]
	m.mu.Unlock()
	if !ok {
		panic("hostsim: unpin of unknown page id")
	}
	p.DecPinCount()
	if isDirty {
		_, err := m.backing.WriteAt(p.data[:], int64(id)*page.Size)
		return err
	}
	return nil
}

func (m *Memory) New() HostPage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p := &memPage{id: m.nextID, pinCount: 1}
	m.pages[p.id] = p
	return p
}

func (m *Memory) Deallocate(id int32, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, id)
	return nil
}

// Snapshot returns every live page's bytes as written through Unpin(dirty
// = true), exercising memfile's in-memory file contract end to end.
func (m *Memory) Snapshot() []byte {
	raw := m.backing.Bytes()
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}
