package tuple

import "encoding/binary"

// VectorVariant distinguishes a terminal vector segment (0, carrying
// metadata/neighbours/version/payload for the graph case) from a
// non-terminal segment (1, a plain middle chunk of an oversize vector).
type VectorVariant uint8

const (
	VectorTerminal    VectorVariant = 0
	VectorNonTerminal VectorVariant = 1
)

// VectorTuple holds one segment of a full-precision vector. Oversize
// vectors are split so every segment fits a single page; the tuple holds
// no link to the next segment (vchordg lists a vector's segments in
// VertexTuple.Segments, terminal last).
type VectorTuple struct {
	Variant VectorVariant
	Elems   []float32

	// Variant 1 only: this segment's 0-based position in the chain.
	Index uint16

	// Variant 0 only (terminal segment):
	PayloadValid bool
	Payload      uint64 // host TID packed as one u64
	Version      uint32 // wrapping optimistic-concurrency counter (vchordg)
	Neighbours   []OptionNeighbourWire
}

// OptionNeighbourWire is the on-disk shape of page.OptionNeighbour:
// kept separate from the in-memory type so this package has no import
// cycle back to package page's higher-level helpers.
type OptionNeighbourWire struct {
	Valid    bool
	PageID   uint32
	Slot     uint16
	Distance float32
}

const vectorFixedLen = 1 /*variant*/ + 2 /*index*/ + 1 /*payloadValid*/ + 8 /*payload*/ + 4 /*version*/ + 2 /*neighbourCount*/ + 4 /*elemsRegion*/

func (t VectorTuple) Serialize() []byte {
	neighbourBytes := len(t.Neighbours) * neighbourWireSize
	elemBytes := len(t.Elems) * 4
	total := headerLen + vectorFixedLen + align8(elemBytes) + align8(neighbourBytes)
	buf := make([]byte, total)
	putHeader(buf, magicVector)
	b := buf[headerLen:]
	b[0] = byte(t.Variant)
	binary.LittleEndian.PutUint16(b[1:3], t.Index)
	b[3] = boolByte(t.PayloadValid)
	binary.LittleEndian.PutUint64(b[4:12], t.Payload)
	binary.LittleEndian.PutUint32(b[12:16], t.Version)
	binary.LittleEndian.PutUint16(b[16:18], uint16(len(t.Neighbours)))

	w := newRegionWriter(buf, uint16(headerLen+vectorFixedLen))
	elemsRaw := make([]byte, elemBytes)
	putF32Slice(elemsRaw, t.Elems)
	elemsRegion := w.put(elemsRaw)
	putRegion(b, 18, elemsRegion)

	nbRaw := make([]byte, neighbourBytes)
	for i, n := range t.Neighbours {
		off := i * neighbourWireSize
		nbRaw[off] = boolByte(n.Valid)
		binary.LittleEndian.PutUint32(nbRaw[off+1:off+5], n.PageID)
		binary.LittleEndian.PutUint16(nbRaw[off+5:off+7], n.Slot)
		binary.LittleEndian.PutUint32(nbRaw[off+7:off+11], floatBits(n.Distance))
	}
	w.put(nbRaw)
	return buf
}

const neighbourWireSize = 1 + 4 + 2 + 4

func DeserializeVector(buf []byte) VectorTuple {
	checkHeader(buf, magicVector)
	b := buf[headerLen:]
	t := VectorTuple{
		Variant:      VectorVariant(b[0]),
		Index:        binary.LittleEndian.Uint16(b[1:3]),
		PayloadValid: b[3] != 0,
		Payload:      binary.LittleEndian.Uint64(b[4:12]),
		Version:      binary.LittleEndian.Uint32(b[12:16]),
	}
	count := binary.LittleEndian.Uint16(b[16:18])
	elemsRegion := getRegion(b, 18)
	checkRegion(elemsRegion, uint16(len(buf)), 4)
	t.Elems = f32Slice(elemsRegion.bytes(buf))

	nbStart := uint16(align8(int(elemsRegion.end)))
	nbEnd := nbStart + count*neighbourWireSize
	if int(nbEnd) > len(buf) {
		panic("tuple: neighbour region out of bounds, corruption")
	}
	nbRaw := buf[nbStart:nbEnd]
	t.Neighbours = make([]OptionNeighbourWire, count)
	for i := range t.Neighbours {
		off := int(i) * neighbourWireSize
		t.Neighbours[i] = OptionNeighbourWire{
			Valid:    nbRaw[off] != 0,
			PageID:   binary.LittleEndian.Uint32(nbRaw[off+1 : off+5]),
			Slot:     binary.LittleEndian.Uint16(nbRaw[off+5 : off+7]),
			Distance: floatFromBits(binary.LittleEndian.Uint32(nbRaw[off+7 : off+11])),
		}
	}
	return t
}
