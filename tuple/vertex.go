package tuple

import "encoding/binary"

// VertexTuple is vchordg's compact per-vertex record: RaBitQ factor
// metadata, the packed binary code, an optional payload TID, and the
// chain of Pointers to this vertex's vector segments (one per segment,
// ending in the terminal).
type VertexTuple struct {
	DisU2     float32
	FactorCnt float32
	FactorIP  float32
	FactorErr float32

	Code []uint64 // packed sign bits, 64 per word

	PayloadValid bool
	Payload      uint64

	Segments []PointerWire // one per VectorTuple segment, terminal last
}

// PointerWire is the on-disk (page-id, slot) pair.
type PointerWire struct {
	PageID uint32
	Slot   uint16
}

const segWireSize = 4 + 2

const vertexFixedLen = 4 + 4 + 4 + 4 /*factors*/ + 1 /*payloadValid*/ + 8 /*payload*/ +
	4 /*codeRegion*/ + 4 /*segRegion*/ + 2 /*segCount*/

func (t VertexTuple) Serialize() []byte {
	codeBytes := len(t.Code) * 8
	segBytes := len(t.Segments) * segWireSize
	buf := make([]byte, headerLen+vertexFixedLen+align8(codeBytes)+align8(segBytes))
	putHeader(buf, magicVertex)
	b := buf[headerLen:]
	binary.LittleEndian.PutUint32(b[0:4], floatBits(t.DisU2))
	binary.LittleEndian.PutUint32(b[4:8], floatBits(t.FactorCnt))
	binary.LittleEndian.PutUint32(b[8:12], floatBits(t.FactorIP))
	binary.LittleEndian.PutUint32(b[12:16], floatBits(t.FactorErr))
	b[16] = boolByte(t.PayloadValid)
	binary.LittleEndian.PutUint64(b[17:25], t.Payload)
	binary.LittleEndian.PutUint16(b[33:35], uint16(len(t.Segments)))

	w := newRegionWriter(buf, uint16(headerLen+vertexFixedLen))
	codeRaw := make([]byte, codeBytes)
	putU64Slice(codeRaw, t.Code)
	codeRegion := w.put(codeRaw)
	putRegion(b, 25, codeRegion)

	segRaw := make([]byte, segBytes)
	for i, s := range t.Segments {
		off := i * segWireSize
		binary.LittleEndian.PutUint32(segRaw[off:off+4], s.PageID)
		binary.LittleEndian.PutUint16(segRaw[off+4:off+6], s.Slot)
	}
	segRegion := w.put(segRaw)
	putRegion(b, 29, segRegion)
	return buf
}

func DeserializeVertex(buf []byte) VertexTuple {
	checkHeader(buf, magicVertex)
	b := buf[headerLen:]
	t := VertexTuple{
		DisU2:        floatFromBits(binary.LittleEndian.Uint32(b[0:4])),
		FactorCnt:    floatFromBits(binary.LittleEndian.Uint32(b[4:8])),
		FactorIP:     floatFromBits(binary.LittleEndian.Uint32(b[8:12])),
		FactorErr:    floatFromBits(binary.LittleEndian.Uint32(b[12:16])),
		PayloadValid: b[16] != 0,
		Payload:      binary.LittleEndian.Uint64(b[17:25]),
	}
	count := binary.LittleEndian.Uint16(b[33:35])

	codeRegion := getRegion(b, 25)
	checkRegion(codeRegion, uint16(len(buf)), 8)
	t.Code = u64Slice(codeRegion.bytes(buf))

	segRegion := getRegion(b, 29)
	checkRegion(segRegion, uint16(len(buf)), segWireSize)
	raw := segRegion.bytes(buf)
	t.Segments = make([]PointerWire, count)
	for i := range t.Segments {
		off := i * segWireSize
		t.Segments[i] = PointerWire{
			PageID: binary.LittleEndian.Uint32(raw[off : off+4]),
			Slot:   binary.LittleEndian.Uint16(raw[off+4 : off+6]),
		}
	}
	return t
}
