// Package tuple implements the self-describing binary layouts every
// on-disk record uses: a magic+version tagged header followed by fixed,
// plain-old-data fields and zero or more 8-byte-aligned variable-length
// regions, one codec skeleton shared by every tuple kind.
package tuple

import (
	"encoding/binary"
	"fmt"
	"math"
)

// magic identifies a tuple kind; version is bumped on any incompatible
// layout change. A mismatch on read is always fatal ("REINDEX required").
type magic uint32

const (
	magicMeta        magic = 0x5643524d // "VCRM"
	magicCentroid    magic = 0x56434354 // "VCCT"
	magicVector      magic = 0x56435654 // "VCVT"
	magicVertex      magic = 0x56435856 // "VCXV"
	magicH1          magic = 0x56434831 // "VCH1"
	magicH0          magic = 0x56434830 // "VCH0"
	magicFrozen      magic = 0x56434652 // "VCFR"
	magicAppendable  magic = 0x56434150 // "VCAP"
	magicJump        magic = 0x564a4d50 // "VJMP"
	magicDirectory   magic = 0x56444952 // "VDIR"
	magicFreepage    magic = 0x56465042 // "VFPB"
	currentVersion   uint16 = 1
)

// ErrBadMagic and ErrBadVersion back the panics the codec raises on
// corruption; kept as sentinel-flavored messages rather than error
// values since corruption here is fatal-by-panic, not a recoverable
// error path.
const (
	errBadMagicFmt   = "tuple: bad magic number (want %#x, got %#x)"
	errBadVersionFmt = "tuple: bad version (want %d, got %d) — REINDEX required"
)

func checkHeader(b []byte, want magic) uint16 {
	if len(b) < 6 {
		panic("tuple: header truncated")
	}
	got := magic(binary.LittleEndian.Uint32(b[0:4]))
	if got != want {
		panic(fmt.Sprintf(errBadMagicFmt, uint32(want), uint32(got)))
	}
	ver := binary.LittleEndian.Uint16(b[4:6])
	if ver != currentVersion {
		panic(fmt.Sprintf(errBadVersionFmt, currentVersion, ver))
	}
	return ver
}

func putHeader(b []byte, m magic) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(m))
	binary.LittleEndian.PutUint16(b[4:6], currentVersion)
}

const headerLen = 6

func align8(n int) int { return (n + 7) &^ 7 }

// region is an 8-byte-aligned (start,end) byte span inside a tuple's own
// buffer, the variable-length-field mechanism every sum-typed/variadic
// tuple uses instead of a separate length-prefixed encoding.
type region struct {
	start, end uint16
}

func (r region) bytes(buf []byte) []byte { return buf[r.start:r.end] }
func (r region) len() int                { return int(r.end) - int(r.start) }

// regionWriter enforces the codec's monotonic, non-overlapping,
// 8-byte-aligned region invariant as regions are appended during
// serialize.
type regionWriter struct {
	buf []byte
	wm  uint16 // watermark: next free offset
}

func newRegionWriter(buf []byte, headerEnd uint16) *regionWriter {
	return &regionWriter{buf: buf, wm: headerEnd}
}

func (w *regionWriter) put(data []byte) region {
	start := w.wm
	n := copy(w.buf[start:], data)
	end := start + uint16(n)
	padded := uint16(align8(int(end)))
	for i := end; i < padded; i++ {
		w.buf[i] = 0
	}
	w.wm = padded
	return region{start: start, end: start + uint16(len(data))}
}

// checkRegion validates a decoded region against the codec invariant:
// start <= end <= size, and the span is a whole multiple of elemSize.
func checkRegion(r region, size uint16, elemSize int) {
	if r.start > r.end || r.end > size {
		panic("tuple: region out of bounds, corruption")
	}
	if elemSize > 0 && r.len()%elemSize != 0 {
		panic("tuple: region length not a multiple of element size, corruption")
	}
}

func putRegion(b []byte, off int, r region) {
	binary.LittleEndian.PutUint16(b[off:off+2], r.start)
	binary.LittleEndian.PutUint16(b[off+2:off+4], r.end)
}

func getRegion(b []byte, off int) region {
	return region{
		start: binary.LittleEndian.Uint16(b[off : off+2]),
		end:   binary.LittleEndian.Uint16(b[off+2 : off+4]),
	}
}

// f32Slice/putF32Slice round-trip []float32 through raw little-endian
// bytes, the shape every vector/centroid region uses.
func f32Slice(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	return out
}

func putF32Slice(b []byte, v []float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:i*4+4], math.Float32bits(f))
	}
}

func floatBits(f float32) uint32       { return math.Float32bits(f) }
func floatFromBits(u uint32) float32   { return math.Float32frombits(u) }

func u64Slice(b []byte) []uint64 {
	out := make([]uint64, len(b)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(b[i*8 : i*8+8])
	}
	return out
}

func putU64Slice(b []byte, v []uint64) {
	for i, w := range v {
		binary.LittleEndian.PutUint64(b[i*8:i*8+8], w)
	}
}
