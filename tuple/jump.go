package tuple

import "encoding/binary"

// JumpTuple is one IVF leaf partition's directory entry: the heads of its
// three sub-tapes plus centroid-prefetch info and a running tuple count,
// letting Search jump straight to a partition's frozen/appendable data
// without walking the centroid tree's CentroidTuple chain again.
type JumpTuple struct {
	DirectoryHead  uint32
	FrozenHead     uint32
	AppendableHead uint32
	CentroidPrefetch []uint32 // page ids to prefetch before scoring this leaf's centroid
	TupleCount     uint32
}

const jumpFixedLen = 4 + 4 + 4 + 4 /*tupleCount*/ + 4 /*prefetchRegion*/

func (t JumpTuple) Serialize() []byte {
	prefetchBytes := len(t.CentroidPrefetch) * 4
	buf := make([]byte, headerLen+jumpFixedLen+align8(prefetchBytes))
	putHeader(buf, magicJump)
	b := buf[headerLen:]
	binary.LittleEndian.PutUint32(b[0:4], t.DirectoryHead)
	binary.LittleEndian.PutUint32(b[4:8], t.FrozenHead)
	binary.LittleEndian.PutUint32(b[8:12], t.AppendableHead)
	binary.LittleEndian.PutUint32(b[12:16], t.TupleCount)

	w := newRegionWriter(buf, uint16(headerLen+jumpFixedLen))
	raw := make([]byte, prefetchBytes)
	for i, id := range t.CentroidPrefetch {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], id)
	}
	r := w.put(raw)
	putRegion(b, 16, r)
	return buf
}

func DeserializeJump(buf []byte) JumpTuple {
	checkHeader(buf, magicJump)
	b := buf[headerLen:]
	t := JumpTuple{
		DirectoryHead:  binary.LittleEndian.Uint32(b[0:4]),
		FrozenHead:     binary.LittleEndian.Uint32(b[4:8]),
		AppendableHead: binary.LittleEndian.Uint32(b[8:12]),
		TupleCount:     binary.LittleEndian.Uint32(b[12:16]),
	}
	r := getRegion(b, 16)
	checkRegion(r, uint16(len(buf)), 4)
	raw := r.bytes(buf)
	t.CentroidPrefetch = make([]uint32, len(raw)/4)
	for i := range t.CentroidPrefetch {
		t.CentroidPrefetch[i] = binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
	}
	return t
}

// DirectoryTuple is a page of a frozen tape's explicit prefetch directory:
// a flat sequence of page ids, one per frozen-tape page, so the reader
// can issue one prefetch batch instead of walking Next pointers one hop
// at a time.
type DirectoryTuple struct {
	PageIDs []uint32
}

func (t DirectoryTuple) Serialize() []byte {
	raw := make([]byte, len(t.PageIDs)*4)
	for i, id := range t.PageIDs {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], id)
	}
	buf := make([]byte, headerLen+4+align8(len(raw)))
	putHeader(buf, magicDirectory)
	w := newRegionWriter(buf, headerLen+4)
	r := w.put(raw)
	putRegion(buf[headerLen:], 0, r)
	return buf
}

func DeserializeDirectory(buf []byte) DirectoryTuple {
	checkHeader(buf, magicDirectory)
	b := buf[headerLen:]
	r := getRegion(b, 0)
	checkRegion(r, uint16(len(buf)), 4)
	raw := r.bytes(buf)
	ids := make([]uint32, len(raw)/4)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
	}
	return DirectoryTuple{PageIDs: ids}
}
