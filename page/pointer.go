package page

import "math"

// ID identifies a page within an index relation.
type ID = uint32

// Pointer is a (page-id, slot) heap/tuple reference, the unit every
// cross-page link in vchordlite is expressed in.
type Pointer struct {
	Page ID
	Slot uint16
}

// PairToPointer and PointerToPair round-trip a Pointer through its
// (uint32, uint16) wire representation; property-tested in pointer_test.go.
func PairToPointer(page uint32, slot uint16) Pointer { return Pointer{Page: page, Slot: slot} }

func PointerToPair(p Pointer) (uint32, uint16) { return p.Page, p.Slot }

// OptionPointer adds a validity byte to Pointer.
type OptionPointer struct {
	Valid bool
	Ptr   Pointer
}

func SomePointer(p Pointer) OptionPointer { return OptionPointer{Valid: true, Ptr: p} }
func NonePointer() OptionPointer          { return OptionPointer{} }

// Distance is a wrapping f32 distance value: NaN-free and total-ordered.
// Construction panics on NaN or +/-Inf, since a non-finite distance can
// only arise from a corrupt tuple or a coding bug upstream (§7: these are
// fatal, not tolerated, conditions).
type Distance float32

func NewDistance(v float32) Distance {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		panic("distance: NaN or Inf is not a representable distance")
	}
	return Distance(v)
}

func (d Distance) Less(o Distance) bool { return d < o }
func (d Distance) Float32() float32     { return float32(d) }

// OptionNeighbour bundles a Pointer with a Distance, used by the graph
// index's neighbour lists.
type OptionNeighbour struct {
	Valid    bool
	Ptr      Pointer
	Distance Distance
}

func SomeNeighbour(p Pointer, d Distance) OptionNeighbour {
	return OptionNeighbour{Valid: true, Ptr: p, Distance: d}
}
func NoneNeighbour() OptionNeighbour { return OptionNeighbour{} }
