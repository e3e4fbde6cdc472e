package tuple

import "encoding/binary"

// DistanceKind is the on-disk distance-kind tag; distance.Kind lives in
// package distance and is redefined here only as the raw on-disk byte
// value to keep the codec free of a cross-package type dependency.
type DistanceKind uint8

const (
	DistanceL2  DistanceKind = 0
	DistanceDot DistanceKind = 1
)

// IndexKind distinguishes the two access methods sharing this substrate.
type IndexKind uint8

const (
	IndexIVF   IndexKind = 0 // vchordrq
	IndexGraph IndexKind = 1 // vchordg
)

// MetaTuple is the single per-index tuple living at page 0, slot 1. Both
// vchordrq and vchordg populate the same struct; fields the other index
// kind doesn't use are left zero.
type MetaTuple struct {
	Dims           uint32
	Distance       DistanceKind
	Bits           uint8 // quantization bits: 1, 4, or 8
	Kind           IndexKind
	Residual       bool
	RerankInHeap   bool
	Height         uint8 // IVF tree height
	M              uint32
	Alpha          float32 // graph alpha
	EfConstruction uint32
	EfSearch       uint32

	RootCentroid  uint32 // IVF: page id of the root CentroidTuple's tape
	CentroidsHead uint32 // IVF: first page of the centroids tape
	VectorsHead   uint32 // first page of the vectors tape (shared by both kinds)
	FreepagesHead uint32 // first page of the 3-level freepage bitmap
	GraphStart    uint32 // vchordg: page id of the start vertex (slot 1); valid only if GraphStartSet
	GraphStartSet bool
	VerticesHead  uint32 // vchordg: first page of the vertex-tuple tape
}

const metaBodyLen = 4 /*dims*/ + 1 + 1 + 1 + 1 + 1 + 1 /*flags+height*/ +
	4 /*m*/ + 4 /*alpha*/ + 4 + 4 /*ef*/ +
	4 + 4 + 4 + 4 /*heads*/ + 4 + 1 /*graph start*/ + 4 /*verticesHead*/

// Serialize writes the fixed-size meta body; MetaTuple has no variable
// regions, so there is no region watermark to track.
func (t MetaTuple) Serialize() []byte {
	buf := make([]byte, headerLen+metaBodyLen)
	putHeader(buf, magicMeta)
	b := buf[headerLen:]
	binary.LittleEndian.PutUint32(b[0:4], t.Dims)
	b[4] = byte(t.Distance)
	b[5] = t.Bits
	b[6] = byte(t.Kind)
	b[7] = boolByte(t.Residual)
	b[8] = boolByte(t.RerankInHeap)
	b[9] = t.Height
	binary.LittleEndian.PutUint32(b[10:14], t.M)
	binary.LittleEndian.PutUint32(b[14:18], floatBits(t.Alpha))
	binary.LittleEndian.PutUint32(b[18:22], t.EfConstruction)
	binary.LittleEndian.PutUint32(b[22:26], t.EfSearch)
	binary.LittleEndian.PutUint32(b[26:30], t.RootCentroid)
	binary.LittleEndian.PutUint32(b[30:34], t.CentroidsHead)
	binary.LittleEndian.PutUint32(b[34:38], t.VectorsHead)
	binary.LittleEndian.PutUint32(b[38:42], t.FreepagesHead)
	binary.LittleEndian.PutUint32(b[42:46], t.GraphStart)
	b[46] = boolByte(t.GraphStartSet)
	binary.LittleEndian.PutUint32(b[47:51], t.VerticesHead)
	return buf
}

func DeserializeMeta(buf []byte) MetaTuple {
	checkHeader(buf, magicMeta)
	b := buf[headerLen:]
	return MetaTuple{
		Dims:           binary.LittleEndian.Uint32(b[0:4]),
		Distance:       DistanceKind(b[4]),
		Bits:           b[5],
		Kind:           IndexKind(b[6]),
		Residual:       b[7] != 0,
		RerankInHeap:   b[8] != 0,
		Height:         b[9],
		M:              binary.LittleEndian.Uint32(b[10:14]),
		Alpha:          floatFromBits(binary.LittleEndian.Uint32(b[14:18])),
		EfConstruction: binary.LittleEndian.Uint32(b[18:22]),
		EfSearch:       binary.LittleEndian.Uint32(b[22:26]),
		RootCentroid:   binary.LittleEndian.Uint32(b[26:30]),
		CentroidsHead:  binary.LittleEndian.Uint32(b[30:34]),
		VectorsHead:    binary.LittleEndian.Uint32(b[34:38]),
		FreepagesHead:  binary.LittleEndian.Uint32(b[38:42]),
		GraphStart:     binary.LittleEndian.Uint32(b[42:46]),
		GraphStartSet:  b[46] != 0,
		VerticesHead:   binary.LittleEndian.Uint32(b[47:51]),
	}
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
