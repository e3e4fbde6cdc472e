// Package page implements the fixed-size slotted page that every on-disk
// tuple in vchordlite lives inside, generalized to host arbitrary
// self-describing tuples instead of one fixed key/value slot shape.
package page

import (
	"encoding/binary"
	"fmt"
)

const (
	// Size is the fixed on-disk page size. Postgres-compatible default.
	Size = 8192

	headerSize        = 8
	linePointerSize   = 4
	OpaqueSize        = 12
	ContentSize       = Size - headerSize - OpaqueSize
	minAlign          = 8
	maxSlotsPerPage   = (Size - headerSize - OpaqueSize) / linePointerSize
)

// lpFlag is the state of one line pointer.
type lpFlag uint8

const (
	lpUnused lpFlag = iota
	lpUsed
)

// Page is a value type wrapping one fixed-size buffer:
//
//	[0:8)            header  {lower uint16, upper uint16, pad uint32}
//	[8:lower)        line pointer array, one 4-byte entry per slot
//	[lower:upper)    free space
//	[upper:Size-OpaqueSize) live tuple bytes, allocated from the top down
//	[Size-OpaqueSize:Size) opaque trailer {Next, Skip, Link uint32}
//
// This mirrors the Postgres-style slotted page the spec names in §4.1 and
// the jespino-pgpageshell reference layout (PageHeaderSize/ItemIdSize) in
// the retrieval pack, adapted to vchordlite's own opaque trailer shape.
type Page struct {
	Buf [Size]byte
}

// Opaque is the fixed trailer threading pages into a tape/list.
type Opaque struct {
	Next uint32 // successor page, or 0 (NIL)
	Skip uint32 // first-known-non-full page along the tape
	Link uint32 // auxiliary link (graph start vertex prefetch, etc.)
}

func (p *Page) lower() uint16      { return binary.LittleEndian.Uint16(p.Buf[0:2]) }
func (p *Page) setLower(v uint16)  { binary.LittleEndian.PutUint16(p.Buf[0:2], v) }
func (p *Page) upper() uint16      { return binary.LittleEndian.Uint16(p.Buf[2:4]) }
func (p *Page) setUpper(v uint16)  { binary.LittleEndian.PutUint16(p.Buf[2:4], v) }

// Init zeroes the page and writes initial watermarks and opaque trailer.
func (p *Page) Init(opaque Opaque) {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	p.setLower(headerSize)
	p.setUpper(Size - OpaqueSize)
	p.SetOpaque(opaque)
}

// Opaque returns the page's trailer.
func (p *Page) Opaque() Opaque {
	b := p.Buf[Size-OpaqueSize:]
	return Opaque{
		Next: binary.LittleEndian.Uint32(b[0:4]),
		Skip: binary.LittleEndian.Uint32(b[4:8]),
		Link: binary.LittleEndian.Uint32(b[8:12]),
	}
}

// SetOpaque overwrites the page's trailer.
func (p *Page) SetOpaque(o Opaque) {
	b := p.Buf[Size-OpaqueSize:]
	binary.LittleEndian.PutUint32(b[0:4], o.Next)
	binary.LittleEndian.PutUint32(b[4:8], o.Skip)
	binary.LittleEndian.PutUint32(b[8:12], o.Link)
}

func (p *Page) lpOffset(slot uint16) int { return headerSize + int(slot-1)*linePointerSize }

type linePointer struct {
	off   uint16
	size  uint16
	flags lpFlag
}

func (p *Page) readLP(slot uint16) linePointer {
	o := p.lpOffset(slot)
	b := p.Buf[o : o+linePointerSize]
	return linePointer{
		off:   binary.LittleEndian.Uint16(b[0:2]),
		size:  binary.LittleEndian.Uint16(b[2:4]),
		flags: lpFlag(b[3] >> 7), // high bit of size's top byte doubles as flag; see writeLP
	}
}

// writeLP packs (off, size, flags) into 4 bytes. size is capped at 15 bits
// since the top bit of the high byte is stolen for the used/unused flag.
func (p *Page) writeLP(slot uint16, off, size uint16, flags lpFlag) {
	if size >= 1<<15 {
		panic(fmt.Sprintf("page: tuple size %d exceeds maximum per-slot size %d", size, 1<<15-1))
	}
	o := p.lpOffset(slot)
	b := p.Buf[o : o+linePointerSize]
	binary.LittleEndian.PutUint16(b[0:2], off)
	packed := size
	if flags == lpUsed {
		packed |= 1 << 15
	}
	binary.LittleEndian.PutUint16(b[2:4], packed)
}

func (p *Page) readLPDecoded(slot uint16) (off, size uint16, used bool) {
	o := p.lpOffset(slot)
	b := p.Buf[o : o+linePointerSize]
	off = binary.LittleEndian.Uint16(b[0:2])
	packed := binary.LittleEndian.Uint16(b[2:4])
	used = packed&(1<<15) != 0
	size = packed &^ (1 << 15)
	return
}

// Len returns the number of slots currently allocated on the page,
// including slots freed but not yet compacted away.
func (p *Page) Len() uint16 {
	return (p.lower() - headerSize) / linePointerSize
}

// Get returns the bytes stored at slot, or ok=false for slot 0,
// out-of-range slots, or slots marked unused.
func (p *Page) Get(slot uint16) (b []byte, ok bool) {
	if slot == 0 || slot > p.Len() {
		return nil, false
	}
	off, size, used := p.readLPDecoded(slot)
	if !used {
		return nil, false
	}
	return p.Buf[off : off+size], true
}

// GetMut is the mutable counterpart of Get: the returned slice aliases the
// page buffer directly.
func (p *Page) GetMut(slot uint16) (b []byte, ok bool) {
	return p.Get(slot)
}

func align8(n int) int { return (n + minAlign - 1) &^ (minAlign - 1) }

// Alloc places bytes contiguously below the upper watermark (8-byte
// aligned), adds a line pointer, and returns the new slot number. It
// returns ok=false if the tuple would not fit.
func (p *Page) Alloc(data []byte) (slot uint16, ok bool) {
	need := align8(len(data))
	if need >= 1<<15 {
		panic(fmt.Sprintf("page: tuple of %d bytes exceeds the maximum per-tuple size (%d)", len(data), 1<<15-1))
	}
	lower, upper := p.lower(), p.upper()
	if int(upper)-int(lower) < linePointerSize+need {
		return 0, false
	}
	newUpper := upper - uint16(need)
	copy(p.Buf[newUpper:], data)
	for i := len(data); i < need; i++ {
		p.Buf[int(newUpper)+i] = 0
	}
	slot = p.Len() + 1
	p.writeLP(slot, newUpper, uint16(len(data)), lpUsed)
	p.setLower(lower + linePointerSize)
	p.setUpper(newUpper)
	return slot, true
}

// Free marks slot unused without compacting the page.
func (p *Page) Free(slot uint16) {
	if slot == 0 || slot > p.Len() {
		return
	}
	off, size, _ := p.readLPDecoded(slot)
	p.writeLP(slot, off, size, lpUnused)
}

// Reconstruct bulk-deletes the given slots and compacts the page, closing
// gaps so all remaining live tuples are packed against the upper
// watermark. Slot numbers of surviving tuples are reassigned densely from
// 1; callers must not rely on slot stability across Reconstruct (exactly
// the "broken link" condition the tuple codec is built to tolerate).
func (p *Page) Reconstruct(deadSlots map[uint16]bool) {
	type live struct {
		data []byte
	}
	var survivors []live
	for s := uint16(1); s <= p.Len(); s++ {
		if deadSlots[s] {
			continue
		}
		if b, ok := p.Get(s); ok {
			cp := make([]byte, len(b))
			copy(cp, b)
			survivors = append(survivors, live{cp})
		}
	}
	opaque := p.Opaque()
	p.Init(opaque)
	for _, l := range survivors {
		if _, ok := p.Alloc(l.data); !ok {
			panic("page: reconstruct could not fit a surviving tuple, corruption")
		}
	}
}

// Freespace returns the bytes available between the watermarks.
func (p *Page) Freespace() uint16 {
	lower, upper := p.lower(), p.upper()
	if upper < lower {
		return 0
	}
	return upper - lower
}

// Validate checks the core page invariant: lower <= upper, and every used
// line pointer refers inside [upper, Size-OpaqueSize).
func (p *Page) Validate() bool {
	lower, upper := p.lower(), p.upper()
	if lower > upper {
		return false
	}
	for s := uint16(1); s <= p.Len(); s++ {
		off, size, used := p.readLPDecoded(s)
		if !used {
			continue
		}
		if off < upper || int(off)+int(size) > Size-OpaqueSize {
			return false
		}
	}
	return true
}
