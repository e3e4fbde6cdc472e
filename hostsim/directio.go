package hostsim

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ncw/directio"
	"github.com/ryogrid/vchordlite/page"
)

// directPage is a HostPage backed by an O_DIRECT-aligned buffer; reads
// and writes to the underlying file must be BlockSize-aligned in both
// offset and length, which is why its buffer is allocated via
// directio.AlignedBlock rather than a plain byte slice.
type directPage struct {
	id       int32
	pinCount int32
	block    []byte // len == alignedPageSize, page.Size of it in use
}

func (p *directPage) DataAsSlice() []byte { return p.block[:page.Size] }
func (p *directPage) ID() int32           { return p.id }
func (p *directPage) PinCount() int32     { return atomic.LoadInt32(&p.pinCount) }
func (p *directPage) DecPinCount()        { atomic.AddInt32(&p.pinCount, -1) }

// DirectIO is a HostBufferManager that reads and writes pages straight
// through to the block device via O_DIRECT, bypassing the kernel page
// cache, using github.com/ncw/directio. alignedPageSize rounds page.Size
// up to the device's required alignment so one directPage buffer always
// holds exactly one index page.
type DirectIO struct {
	mu              sync.Mutex
	f               *os.File
	pins            map[int32]*directPage
	nextID          int32
	alignedPageSize int
}

// OpenDirectIO opens (creating if necessary) a flat file of fixed-size,
// O_DIRECT-aligned page slots: one relation, one file, pages at fixed
// offsets.
func OpenDirectIO(path string) (*DirectIO, error) {
	f, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("hostsim: opening %q for direct I/O: %w", path, err)
	}
	aligned := directio.BlockSize
	for aligned < page.Size {
		aligned += directio.BlockSize
	}
	return &DirectIO{f: f, pins: make(map[int32]*directPage), alignedPageSize: aligned}, nil
}

func (d *DirectIO) Close() error { return d.f.Close() }

func (d *DirectIO) Fetch(id int32) HostPage {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pins[id]; ok {
		atomic.AddInt32(&p.pinCount, 1)
		return p
	}
	block := directio.AlignedBlock(d.alignedPageSize)
	off := int64(id) * int64(d.alignedPageSize)
	if _, err := d.f.ReadAt(block, off); err != nil {
		panic(fmt.Sprintf("hostsim: direct read of page %d: %v", id, err))
	}
	p := &directPage{id: id, pinCount: 1, block: block}
	d.pins[id] = p
	return p
}

func (d *DirectIO) Unpin(id int32, isDirty bool) error {
	d.mu.Lock()
	p, ok := d.pins[id]
	d.mu.Unlock()
	if !ok {
		panic("hostsim: unpin of unknown page id")
	}
	p.DecPinCount()
	if !isDirty {
		return nil
	}
	off := int64(id) * int64(d.alignedPageSize)
	_, err := d.f.WriteAt(p.block, off)
	return err
}

func (d *DirectIO) New() HostPage {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	block := directio.AlignedBlock(d.alignedPageSize)
	p := &directPage{id: d.nextID, pinCount: 1, block: block}
	d.pins[p.id] = p
	off := int64(p.id) * int64(d.alignedPageSize)
	if _, err := d.f.WriteAt(block, off); err != nil {
		panic(fmt.Sprintf("hostsim: direct write of new page %d: %v", p.id, err))
	}
	return p
}

func (d *DirectIO) Deallocate(id int32, _ bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pins, id)
	return nil
}
