package tuple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaTupleRoundTrip(t *testing.T) {
	mt := MetaTuple{
		Dims:           128,
		Distance:       DistanceDot,
		Bits:           4,
		Kind:           IndexGraph,
		Residual:       true,
		RerankInHeap:   true,
		Height:         1,
		M:              32,
		Alpha:          1.2,
		EfConstruction: 100,
		EfSearch:       64,
		RootCentroid:   7,
		CentroidsHead:  9,
		VectorsHead:    11,
		FreepagesHead:  13,
		GraphStart:     17,
		GraphStartSet:  true,
		VerticesHead:   19,
	}
	got := DeserializeMeta(mt.Serialize())
	assert.Equal(t, mt, got)
}

func TestMetaTupleBadMagicPanics(t *testing.T) {
	bad := make([]byte, 64)
	assert.Panics(t, func() { DeserializeMeta(bad) })
}

func TestCentroidTupleInlineRoundTrip(t *testing.T) {
	ct := CentroidTuple{
		Variant: CentroidInline,
		Elems:   []float32{1.5, -2.25, 3.0, 4.75},
	}
	got := DeserializeCentroid(ct.Serialize())
	assert.Equal(t, ct.Variant, got.Variant)
	require.Len(t, got.Elems, len(ct.Elems))
	for i := range ct.Elems {
		assert.InDelta(t, ct.Elems[i], got.Elems[i], 1e-6)
	}
}

func TestCentroidTupleReferenceRoundTrip(t *testing.T) {
	ct := CentroidTuple{Variant: CentroidReference, Head: 42}
	got := DeserializeCentroid(ct.Serialize())
	assert.Equal(t, CentroidReference, got.Variant)
	assert.Equal(t, uint32(42), got.Head)
	assert.Empty(t, got.Elems)
}

func TestJumpTupleRoundTrip(t *testing.T) {
	jt := JumpTuple{
		DirectoryHead:    1,
		FrozenHead:       2,
		AppendableHead:   3,
		CentroidPrefetch: []uint32{10, 11, 12},
		TupleCount:       99,
	}
	got := DeserializeJump(jt.Serialize())
	assert.Equal(t, jt, got)
}

func TestJumpTupleEmptyPrefetch(t *testing.T) {
	jt := JumpTuple{DirectoryHead: 5, FrozenHead: 0, AppendableHead: 0, TupleCount: 0}
	got := DeserializeJump(jt.Serialize())
	assert.Equal(t, jt.DirectoryHead, got.DirectoryHead)
	assert.Empty(t, got.CentroidPrefetch)
}

func TestDirectoryTupleRoundTrip(t *testing.T) {
	dt := DirectoryTuple{PageIDs: []uint32{4, 8, 15, 16, 23, 42}}
	got := DeserializeDirectory(dt.Serialize())
	assert.Equal(t, dt, got)
}

func sampleCodeGroup(lanes uint8, rowBytes uint16) CodeGroup {
	g := CodeGroup{RowBytes: rowBytes, Lanes: lanes}
	g.Rows = make([]byte, int(lanes)*int(rowBytes))
	for i := range g.Rows {
		g.Rows[i] = byte(i % 251)
	}
	for i := 0; i < int(lanes); i++ {
		g.Meta[i] = CodeMetadata{
			DisU2:     float32(i) + 0.5,
			FactorCnt: float32(i) - 1,
			FactorIP:  float32(i) * 2,
			FactorErr: float32(i) * 0.1,
		}
		g.Pointers[i] = PointerWire{PageID: uint32(100 + i), Slot: uint16(i)}
	}
	return g
}

func TestFrozenTupleRoundTrip(t *testing.T) {
	g := sampleCodeGroup(32, 16)
	ft := FrozenTuple{Group: g}
	got := DeserializeFrozen(ft.Serialize())
	assert.Equal(t, g.RowBytes, got.Group.RowBytes)
	assert.Equal(t, g.Lanes, got.Group.Lanes)
	assert.Equal(t, g.Rows, got.Group.Rows)
	assert.Equal(t, g.Pointers, got.Group.Pointers)
	assert.Equal(t, g.Meta, got.Group.Meta)
}

func TestH0TuplePartialLanesRoundTrip(t *testing.T) {
	g := sampleCodeGroup(5, 8)
	h0 := H0Tuple{Group: g}
	got := DeserializeH0(h0.Serialize())
	assert.Equal(t, uint8(5), got.Group.Lanes)
	assert.Equal(t, g.Rows, got.Group.Rows)
}

func TestH1TupleRoundTrip(t *testing.T) {
	g := sampleCodeGroup(32, 4)
	h1 := H1Tuple{Group: g}
	got := DeserializeH1(h1.Serialize())
	assert.Equal(t, g.Rows, got.Group.Rows)
	assert.Equal(t, g.Pointers, got.Group.Pointers)
}

func TestAppendableTupleRoundTrip(t *testing.T) {
	at := AppendableTuple{
		Meta:    CodeMetadata{DisU2: 1, FactorCnt: 2, FactorIP: 3, FactorErr: 4},
		Row:     []byte{1, 2, 3, 4, 5, 6, 7, 8, 9},
		Pointer: PointerWire{PageID: 55, Slot: 3},
	}
	got := DeserializeAppendable(at.Serialize())
	assert.Equal(t, at, got)
}

func TestVertexTupleRoundTrip(t *testing.T) {
	vt := VertexTuple{
		DisU2:        1.5,
		FactorCnt:    2.5,
		FactorIP:     -3.5,
		FactorErr:    0.25,
		Code:         []uint64{0xdeadbeef, 0x1},
		PayloadValid: true,
		Payload:      777,
		Segments: []PointerWire{
			{PageID: 1, Slot: 0},
			{PageID: 2, Slot: 9},
		},
	}
	got := DeserializeVertex(vt.Serialize())
	assert.Equal(t, vt, got)
}

func TestVertexTupleNoPayloadNoSegments(t *testing.T) {
	vt := VertexTuple{
		DisU2:     1,
		FactorCnt: 2,
		FactorIP:  3,
		FactorErr: 4,
		Code:      []uint64{0x0f},
	}
	got := DeserializeVertex(vt.Serialize())
	assert.False(t, got.PayloadValid)
	assert.Empty(t, got.Segments)
	assert.Equal(t, vt.Code, got.Code)
}

func TestVectorTupleTerminalRoundTrip(t *testing.T) {
	vt := VectorTuple{
		Variant:      VectorTerminal,
		Elems:        []float32{1, 2, 3, 4},
		Index:        2,
		PayloadValid: true,
		Payload:      99,
		Version:      3,
	}
	got := DeserializeVector(vt.Serialize())
	assert.Equal(t, vt.Variant, got.Variant)
	assert.Equal(t, vt.Elems, got.Elems)
	assert.Equal(t, vt.Index, got.Index)
	assert.Equal(t, vt.PayloadValid, got.PayloadValid)
	assert.Equal(t, vt.Payload, got.Payload)
	assert.Equal(t, vt.Version, got.Version)
	assert.Empty(t, got.Neighbours)
}

func TestVectorTupleNonTerminalRoundTrip(t *testing.T) {
	vt := VectorTuple{
		Variant: VectorNonTerminal,
		Elems:   []float32{5, 6},
		Index:   1,
		Version: 7,
		Neighbours: []OptionNeighbourWire{
			{Valid: true, PageID: 4, Slot: 1, Distance: 0.5},
			{Valid: false},
		},
	}
	got := DeserializeVector(vt.Serialize())
	assert.Equal(t, vt, got)
}
