// Package vchordrq implements an IVF index: a centroid tree whose leaves
// are posting lists of RaBitQ-coded residuals, with build, insert,
// background packing, default search, and vacuum.
//
// This implementation supports a single centroid level (height = 1): the
// root's immediate children are the leaf partitions directly. A taller
// tree is a straightforward recursive generalization of
// writeCentroidsAndLeaves below
// (fan out k-means one more level, store the intermediate CentroidTuples
// on an H1Tuple chain) that this build intentionally does not implement;
// see DESIGN.md for the scoping note.
package vchordrq

import (
	"container/heap"
	"encoding/binary"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog"
	"github.com/ryogrid/vchordlite/bufmgr"
	"github.com/ryogrid/vchordlite/distance"
	"github.com/ryogrid/vchordlite/page"
	"github.com/ryogrid/vchordlite/rabitq"
	"github.com/ryogrid/vchordlite/tuple"
)

// Config is the index's build/search parameters. Open reads Dims, Kind,
// Bits and Residual back from the MetaTuple; Probes and Epsilon are not
// persisted there, so an opened Index has them unset.
type Config struct {
	Dims     int
	Kind     distance.Kind
	Bits     int // 1, 4, or 8
	Residual bool
	Probes   []int // per-level fanout; Probes[0] is the leaf-level probe count
	Epsilon  float32
}

// Index is a handle on one vchordrq relation.
type Index struct {
	mgr  *bufmgr.Mgr
	cfg  Config
	log  zerolog.Logger
	meta tuple.MetaTuple
}

func Open(mgr *bufmgr.Mgr, log zerolog.Logger) *Index {
	g := mgr.Read(0)
	raw, ok := g.P.Get(1)
	g.Release()
	if !ok {
		panic("vchordrq: data corruption, missing meta tuple")
	}
	mt := tuple.DeserializeMeta(raw)
	return &Index{
		mgr: mgr, log: log, meta: mt,
		cfg: Config{
			Dims: int(mt.Dims), Kind: distance.Kind(mt.Distance),
			Bits: int(mt.Bits), Residual: mt.Residual,
		},
	}
}

// Build creates a brand-new IVF index: it k-means-clusters the input
// vectors into `nLeaves` partitions, writes one CentroidTuple per
// partition, one JumpTuple per leaf, and RaBitQ-codes every vector as an
// AppendableTuple in its assigned leaf.
func Build(mgr *bufmgr.Mgr, cfg Config, nLeaves int, payloads []uint64, vecs [][]float32, log zerolog.Logger) *Index {
	if len(vecs) == 0 {
		panic("vchordrq: build requires at least one input vector")
	}
	centroids := kmeans(vecs, nLeaves, cfg.Kind)

	placeholder := mgr.Extend(page.Opaque{}, false)
	if placeholder.ID() != 0 {
		panic("vchordrq: build must run against a fresh relation, page 0 already taken")
	}
	if slot, ok := placeholder.P.Alloc(tuple.MetaTuple{}.Serialize()); !ok || slot != 1 {
		placeholder.Abort()
		panic("vchordrq: unexpected meta tuple layout, expected page 0 slot 1")
	}
	placeholder.Finish()

	centroidsHead, jumpHeads := writeCentroidsAndLeaves(mgr, centroids)
	assignAndCode(mgr, cfg, centroids, jumpHeads, payloads, vecs)

	mt := tuple.MetaTuple{
		Dims: uint32(cfg.Dims), Distance: tuple.DistanceKind(cfg.Kind), Bits: uint8(cfg.Bits),
		Kind: tuple.IndexIVF, Residual: cfg.Residual, Height: 1,
		CentroidsHead: centroidsHead,
	}
	g := mgr.Write(0, false)
	g.P.Free(1)
	if slot, ok := g.P.Alloc(mt.Serialize()); !ok || slot != 1 {
		g.Abort()
		panic("vchordrq: unexpected meta tuple layout, expected page 0 slot 1")
	}
	g.Finish()

	return &Index{mgr: mgr, cfg: cfg, log: log, meta: mt}
}

func writeCentroidsAndLeaves(mgr *bufmgr.Mgr, centroids [][]float32) (centroidsHead uint32, jumpHeads []uint32) {
	jumpHeads = make([]uint32, len(centroids))
	centroidPages := make([]uint32, len(centroids))
	for i, c := range centroids {
		ct := tuple.CentroidTuple{Variant: tuple.CentroidInline, Elems: c}
		cg := mgr.Extend(page.Opaque{}, false)
		if _, ok := cg.P.Alloc(ct.Serialize()); !ok {
			cg.Abort()
			panic("vchordrq: centroid tuple does not fit an empty page")
		}
		centroidPages[i] = cg.ID()
		cg.Finish()

		jt := tuple.JumpTuple{}
		jg := mgr.Extend(page.Opaque{}, false)
		if _, ok := jg.P.Alloc(jt.Serialize()); !ok {
			jg.Abort()
			panic("vchordrq: jump tuple does not fit an empty page")
		}
		jumpHeads[i] = jg.ID()
		jg.Finish()
	}

	// Second pass: thread the centroid pages into a tape via Opaque.Next,
	// now that every page's final id is known.
	for i, id := range centroidPages {
		g := mgr.Write(id, false)
		op := g.P.Opaque()
		if i+1 < len(centroidPages) {
			op.Next = centroidPages[i+1]
		}
		g.P.SetOpaque(op)
		g.Finish()
	}

	if len(centroidPages) == 0 {
		return 0, jumpHeads
	}
	return centroidPages[0], jumpHeads
}

// assignedRow is one vector's nearest-centroid assignment and RaBitQ code,
// computed in assignAndCode's parallel encode pass.
type assignedRow struct {
	part int
	at   tuple.AppendableTuple
}

// assignAndCode assigns every build-time vector to its nearest centroid
// and RaBitQ-encodes its residual. The encode pass (pure CPU, no shared
// state) runs across a worker pool via golang.org/x/sync/errgroup; the
// subsequent append pass is sequential because appendLeaf mutates the
// leaf's shared tape state and bufmgr already serializes same-page
// writers behind its own latch, so adding concurrency there would only
// add contention, not throughput.
func assignAndCode(mgr *bufmgr.Mgr, cfg Config, centroids [][]float32, jumpHeads []uint32, payloads []uint64, vecs [][]float32) {
	rows := make([]assignedRow, len(vecs))
	workers := runtime.GOMAXPROCS(0)
	if workers > len(vecs) {
		workers = len(vecs)
	}
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	chunk := (len(vecs) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(vecs) {
			hi = len(vecs)
		}
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				v := vecs[i]
				part := nearest(v, centroids, cfg.Kind)
				residual := v
				if cfg.Residual {
					residual = sub(v, centroids[part])
				}
				code := rabitq.Encode(residual)
				rows[i] = assignedRow{
					part: part,
					at: tuple.AppendableTuple{
						Meta: tuple.CodeMetadata(code.Meta),
						Row:  packRow(code.Bits),
					},
				}
			}
			return nil
		})
	}
	_ = g.Wait() // encode workers never return an error

	for i, r := range rows {
		appendLeaf(mgr, jumpHeads[r.part], r.at, payloads[i])
	}
}

// packRow stores a RaBitQ sign-bit code as its little-endian byte form, one
// bit per dimension (cfg.Bits is persisted in the MetaTuple but Search
// does not read it: every query is scored with the binary LUT, never the
// block LUT; the stored code itself is always the 1-bit sign form
// Encode/Accumulate operate on).
func packRow(bits []uint64) []byte {
	out := make([]byte, len(bits)*8)
	for i, w := range bits {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], w)
	}
	return out
}

// appendLeaf writes one AppendableTuple into the leaf's appendable tape,
// updating the JumpTuple's head/count as it goes. The heap TID `payload`
// is carried in AppendableTuple.Pointer as (block, offset) — the same
// packing PointerWire already uses for page/slot pairs — so Search can
// hand it straight back out without a separate payload codec.
func appendLeaf(mgr *bufmgr.Mgr, jumpHead uint32, at tuple.AppendableTuple, payload uint64) {
	at.Pointer = tuple.PointerWire{PageID: uint32(payload >> 32), Slot: uint16(payload)}
	jg := mgr.Write(jumpHead, false)
	jraw, ok := jg.P.Get(1)
	if !ok {
		jg.Abort()
		panic("vchordrq: broken jump tuple, corruption")
	}
	jt := tuple.DeserializeJump(jraw)

	var appendGuard *bufmgr.WriteGuard
	if jt.AppendableHead == 0 {
		appendGuard = mgr.Extend(page.Opaque{}, true)
		jt.AppendableHead = appendGuard.ID()
	} else {
		appendGuard = mgr.Write(jt.AppendableHead, true)
	}
	if _, ok := appendGuard.P.Alloc(at.Serialize()); !ok {
		tail := mgr.Extend(page.Opaque{}, true)
		op := appendGuard.P.Opaque()
		tail.P.SetOpaque(page.Opaque{Next: op.Next}) // keep earlier tail pages linked
		op.Next = tail.ID()
		appendGuard.P.SetOpaque(op)
		appendGuard.Finish()
		if _, ok := tail.P.Alloc(at.Serialize()); !ok {
			tail.Abort()
			panic("vchordrq: appendable tuple does not fit an empty page")
		}
		tail.Finish()
	} else {
		appendGuard.Finish()
	}

	jt.TupleCount++
	jg.P.Free(1)
	if _, ok := jg.P.Alloc(jt.Serialize()); !ok {
		jg.Abort()
		panic("vchordrq: jump tuple grew too large to fit its page")
	}
	jg.Finish()
}

func sub(a, b []float32) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func nearest(v []float32, centroids [][]float32, kind distance.Kind) int {
	best, bestD := 0, distance.Exact(kind, v, centroids[0])
	for i := 1; i < len(centroids); i++ {
		d := distance.Exact(kind, v, centroids[i])
		if d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// kmeans runs a small fixed number of Lloyd's-algorithm iterations to
// produce the build-time centroid assignment, implemented in-package
// since no standalone clustering library is wired into this module.
func kmeans(vecs [][]float32, k int, kind distance.Kind) [][]float32 {
	if k > len(vecs) {
		k = len(vecs)
	}
	dims := len(vecs[0])
	centroids := make([][]float32, k)
	for i := range centroids {
		src := vecs[(i*len(vecs))/k]
		centroids[i] = append([]float32(nil), src...)
	}
	for iter := 0; iter < 10; iter++ {
		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dims)
		}
		for _, v := range vecs {
			c := nearest(v, centroids, kind)
			counts[c]++
			for d := 0; d < dims; d++ {
				sums[c][d] += float64(v[d])
			}
		}
		for i := range centroids {
			if counts[i] == 0 {
				continue
			}
			nc := make([]float32, dims)
			for d := 0; d < dims; d++ {
				nc[d] = float32(sums[i][d] / float64(counts[i]))
			}
			centroids[i] = nc
		}
	}
	return centroids
}

// searchHeap orders partial candidates by ascending lower bound.
// SearchResult is one candidate emitted by Search: a code-derived lower
// bound and the heap TID it points at, ready for rerank.Candidate.
type SearchResult struct {
	LowerBound float32
	Payload    uint64
}

type searchHeap []SearchResult

func (h searchHeap) Len() int            { return len(h) }
func (h searchHeap) Less(i, j int) bool  { return h[i].LowerBound < h[j].LowerBound }
func (h searchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *searchHeap) Push(x interface{}) { *h = append(*h, x.(SearchResult)) }
func (h *searchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Search implements the default search: select the top probes centroids
// by exact distance (a single-level tree needs no lower-bound
// refinement pass at the root), then scan each selected leaf's frozen
// and appendable tapes, emitting candidates ordered by lower bound.
func (ix *Index) Search(query []float32, k int) []SearchResult {
	centroids, jumpHeads := ix.readCentroidsAndLeaves()
	probes := k
	if len(ix.cfg.Probes) > 0 {
		probes = ix.cfg.Probes[0]
	}
	if probes < k {
		probes = k
	}
	order := topCentroids(query, centroids, ix.cfg.Kind, probes)

	binLut := rabitq.PreprocessBinary(queryOrResidual(query, nil, ix.cfg.Residual))
	var h searchHeap
	heap.Init(&h)
	for _, idx := range order {
		var lut rabitq.BinaryLut
		if ix.cfg.Residual {
			lut = rabitq.PreprocessBinary(sub(query, centroids[idx]))
		} else {
			lut = binLut
		}
		ix.scanLeaf(jumpHeads[idx], lut, &h)
	}

	out := make([]SearchResult, 0, h.Len())
	for h.Len() > 0 {
		out = append(out, heap.Pop(&h).(SearchResult))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LowerBound < out[j].LowerBound })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func queryOrResidual(query []float32, centroid []float32, residual bool) []float32 {
	if !residual || centroid == nil {
		return query
	}
	return sub(query, centroid)
}

func (ix *Index) scanLeaf(jumpHead uint32, lut rabitq.BinaryLut, h *searchHeap) {
	jg := ix.mgr.Read(jumpHead)
	raw, ok := jg.P.Get(1)
	jg.Release()
	if !ok {
		return
	}
	jt := tuple.DeserializeJump(raw)
	ix.scanFrozen(jt.FrozenHead, lut, h)

	id := jt.AppendableHead
	for id != 0 {
		g := ix.mgr.Read(id)
		for s := uint16(1); s <= g.P.Len(); s++ {
			b, ok := g.P.Get(s)
			if !ok {
				continue
			}
			at := tuple.DeserializeAppendable(b)
			sum := rabitq.Accumulate(bitsFromRow(at.Row), lut)
			var lb, errv float32
			if ix.cfg.Kind == distance.Dot {
				lb, errv = rabitq.HalfProcessDot(sum, rabitq.CodeMetadata(at.Meta), lut.Meta)
			} else {
				lb, errv = rabitq.HalfProcessL2(sum, rabitq.CodeMetadata(at.Meta), lut.Meta)
			}
			payload := uint64(at.Pointer.PageID)<<32 | uint64(at.Pointer.Slot)
			heap.Push(h, SearchResult{LowerBound: distance.LowerBound(lb, errv, ix.cfg.Epsilon), Payload: payload})
		}
		next := g.P.Opaque().Next
		g.Release()
		id = next
	}
}

// bitsFromRow is packRow's inverse.
func bitsFromRow(row []byte) []uint64 {
	out := make([]uint64, len(row)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(row[i*8 : i*8+8])
	}
	return out
}

func (ix *Index) readCentroidsAndLeaves() ([][]float32, []uint32) {
	var centroids [][]float32
	var jumpHeads []uint32
	id := ix.meta.CentroidsHead
	for id != 0 {
		g := ix.mgr.Read(id)
		raw, ok := g.P.Get(1)
		next := g.P.Opaque().Next
		g.Release()
		if !ok {
			id = next
			continue
		}
		ct := tuple.DeserializeCentroid(raw)
		centroids = append(centroids, ct.Elems)
		jumpHeads = append(jumpHeads, id+1) // jump tuple page immediately follows its centroid page, see writeCentroidsAndLeaves
		id = next
	}
	return centroids, jumpHeads
}

func topCentroids(query []float32, centroids [][]float32, kind distance.Kind, n int) []int {
	type scored struct {
		idx int
		d   float32
	}
	scoredAll := make([]scored, len(centroids))
	for i, c := range centroids {
		scoredAll[i] = scored{idx: i, d: distance.Exact(kind, query, c)}
	}
	sort.Slice(scoredAll, func(i, j int) bool { return scoredAll[i].d < scoredAll[j].d })
	if n > len(scoredAll) {
		n = len(scoredAll)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = scoredAll[i].idx
	}
	return out
}
