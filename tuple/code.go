package tuple

import "encoding/binary"

// LaneCount is how many RaBitQ codes one SoA group packs together so a
// single LUT row scores all of them at once.
const LaneCount = 32

// CodeMetadata is RaBitQ's per-vector correction quadruple.
type CodeMetadata struct {
	DisU2     float32
	FactorCnt float32
	FactorIP  float32
	FactorErr float32
}

func putMetadata(b []byte, m CodeMetadata) {
	binary.LittleEndian.PutUint32(b[0:4], floatBits(m.DisU2))
	binary.LittleEndian.PutUint32(b[4:8], floatBits(m.FactorCnt))
	binary.LittleEndian.PutUint32(b[8:12], floatBits(m.FactorIP))
	binary.LittleEndian.PutUint32(b[12:16], floatBits(m.FactorErr))
}

func getMetadata(b []byte) CodeMetadata {
	return CodeMetadata{
		DisU2:     floatFromBits(binary.LittleEndian.Uint32(b[0:4])),
		FactorCnt: floatFromBits(binary.LittleEndian.Uint32(b[4:8])),
		FactorIP:  floatFromBits(binary.LittleEndian.Uint32(b[8:12])),
		FactorErr: floatFromBits(binary.LittleEndian.Uint32(b[12:16])),
	}
}

const metadataWireSize = 16

// CodeGroup is the shared SoA shape of H1Tuple, H0Tuple, and FrozenTuple:
// LaneCount per-lane CodeMetadata records plus LaneCount packed code rows
// of equal width (RowBytes depends on the index's configured bit width:
// 1 bit/dim => dims/8 bytes/row, etc.), and one pointer per lane back to
// the thing the lane's code represents (a child CentroidTuple for
// H1Tuple, a payload/vertex for H0Tuple/FrozenTuple).
type CodeGroup struct {
	RowBytes uint16
	Lanes    uint8 // <= LaneCount; a partially-filled final group
	Meta     [LaneCount]CodeMetadata
	Rows     []byte // Lanes*RowBytes bytes, row-major
	Pointers [LaneCount]PointerWire
}

const codeGroupFixedLen = 2 /*rowBytes*/ + 1 /*lanes*/ + LaneCount*metadataWireSize +
	LaneCount*segWireSize + 4 /*rowsRegion*/

func (g CodeGroup) serialize(m magic) []byte {
	rowsLen := int(g.Lanes) * int(g.RowBytes)
	buf := make([]byte, headerLen+codeGroupFixedLen+align8(rowsLen))
	putHeader(buf, m)
	b := buf[headerLen:]
	binary.LittleEndian.PutUint16(b[0:2], g.RowBytes)
	b[2] = g.Lanes
	off := 3
	for i := 0; i < LaneCount; i++ {
		putMetadata(b[off:off+metadataWireSize], g.Meta[i])
		off += metadataWireSize
	}
	for i := 0; i < LaneCount; i++ {
		binary.LittleEndian.PutUint32(b[off:off+4], g.Pointers[i].PageID)
		binary.LittleEndian.PutUint16(b[off+4:off+6], g.Pointers[i].Slot)
		off += segWireSize
	}
	w := newRegionWriter(buf, uint16(headerLen+codeGroupFixedLen))
	r := w.put(g.Rows[:rowsLen])
	putRegion(b, off, r)
	return buf
}

func deserializeCodeGroup(buf []byte, m magic) CodeGroup {
	checkHeader(buf, m)
	b := buf[headerLen:]
	g := CodeGroup{
		RowBytes: binary.LittleEndian.Uint16(b[0:2]),
		Lanes:    b[2],
	}
	off := 3
	for i := 0; i < LaneCount; i++ {
		g.Meta[i] = getMetadata(b[off : off+metadataWireSize])
		off += metadataWireSize
	}
	for i := 0; i < LaneCount; i++ {
		g.Pointers[i] = PointerWire{
			PageID: binary.LittleEndian.Uint32(b[off : off+4]),
			Slot:   binary.LittleEndian.Uint16(b[off+4 : off+6]),
		}
		off += segWireSize
	}
	r := getRegion(b, off)
	checkRegion(r, uint16(len(buf)), 1)
	raw := r.bytes(buf)
	g.Rows = make([]byte, len(raw))
	copy(g.Rows, raw)
	return g
}

// H1Tuple groups 32 internal-level child-centroid codes (one tree level
// above the leaves); scanning its Rows against a query BinaryLut/BlockLut
// produces lower bounds for all 32 children in one pass.
type H1Tuple struct{ Group CodeGroup }

func (t H1Tuple) Serialize() []byte          { return t.Group.serialize(magicH1) }
func DeserializeH1(buf []byte) H1Tuple        { return H1Tuple{Group: deserializeCodeGroup(buf, magicH1)} }

// H0Tuple/FrozenTuple are the same SoA shape at leaf level; FrozenTuple is
// the name used once a group of 32 AppendableTuples has been packed by
// the background packer.
type H0Tuple struct{ Group CodeGroup }
type FrozenTuple struct{ Group CodeGroup }

func (t H0Tuple) Serialize() []byte   { return t.Group.serialize(magicH0) }
func DeserializeH0(buf []byte) H0Tuple { return H0Tuple{Group: deserializeCodeGroup(buf, magicH0)} }

func (t FrozenTuple) Serialize() []byte { return t.Group.serialize(magicFrozen) }
func DeserializeFrozen(buf []byte) FrozenTuple {
	return FrozenTuple{Group: deserializeCodeGroup(buf, magicFrozen)}
}

// AppendableTuple is one unpacked code row, written one at a time as
// vectors are inserted; a background pass groups 32 compatible rows into
// a FrozenTuple and frees the appendable slots.
type AppendableTuple struct {
	Meta    CodeMetadata
	Row     []byte
	Pointer PointerWire
}

const appendableFixedLen = metadataWireSize + segWireSize + 4 /*rowRegion*/

func (t AppendableTuple) Serialize() []byte {
	buf := make([]byte, headerLen+appendableFixedLen+align8(len(t.Row)))
	putHeader(buf, magicAppendable)
	b := buf[headerLen:]
	putMetadata(b[0:metadataWireSize], t.Meta)
	off := metadataWireSize
	binary.LittleEndian.PutUint32(b[off:off+4], t.Pointer.PageID)
	binary.LittleEndian.PutUint16(b[off+4:off+6], t.Pointer.Slot)
	off += segWireSize
	w := newRegionWriter(buf, uint16(headerLen+appendableFixedLen))
	r := w.put(t.Row)
	putRegion(b, off, r)
	return buf
}

func DeserializeAppendable(buf []byte) AppendableTuple {
	checkHeader(buf, magicAppendable)
	b := buf[headerLen:]
	t := AppendableTuple{Meta: getMetadata(b[0:metadataWireSize])}
	off := metadataWireSize
	t.Pointer = PointerWire{
		PageID: binary.LittleEndian.Uint32(b[off : off+4]),
		Slot:   binary.LittleEndian.Uint16(b[off+4 : off+6]),
	}
	off += segWireSize
	r := getRegion(b, off)
	checkRegion(r, uint16(len(buf)), 1)
	raw := r.bytes(buf)
	t.Row = make([]byte, len(raw))
	copy(t.Row, raw)
	return t
}
