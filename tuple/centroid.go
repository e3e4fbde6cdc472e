package tuple

import "encoding/binary"

// CentroidVariant mirrors VectorVariant's sum-type shape but for IVF
// internal-node representatives: variant 0 stores the vector inline,
// variant 1 defers to an external VectorTuple chain (used once a
// centroid's dimensionality makes inlining wasteful at every tree level).
type CentroidVariant uint8

const (
	CentroidInline    CentroidVariant = 0
	CentroidReference CentroidVariant = 1
)

type CentroidTuple struct {
	Variant CentroidVariant

	// Variant 0:
	Elems []float32

	// Variant 1:
	Head uint32 // page id of the referenced vector's first segment
}

const centroidFixedLen = 1 /*variant*/ + 4 /*head*/ + 4 /*elemsRegion*/

func (t CentroidTuple) Serialize() []byte {
	elemBytes := len(t.Elems) * 4
	buf := make([]byte, headerLen+centroidFixedLen+align8(elemBytes))
	putHeader(buf, magicCentroid)
	b := buf[headerLen:]
	b[0] = byte(t.Variant)
	binary.LittleEndian.PutUint32(b[1:5], t.Head)

	w := newRegionWriter(buf, uint16(headerLen+centroidFixedLen))
	raw := make([]byte, elemBytes)
	putF32Slice(raw, t.Elems)
	r := w.put(raw)
	putRegion(b, 5, r)
	return buf
}

func DeserializeCentroid(buf []byte) CentroidTuple {
	checkHeader(buf, magicCentroid)
	b := buf[headerLen:]
	t := CentroidTuple{
		Variant: CentroidVariant(b[0]),
		Head:    binary.LittleEndian.Uint32(b[1:5]),
	}
	r := getRegion(b, 5)
	checkRegion(r, uint16(len(buf)), 4)
	t.Elems = f32Slice(r.bytes(buf))
	return t
}
