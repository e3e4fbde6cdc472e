package access

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/ryogrid/vchordlite/bufmgr"
	"github.com/ryogrid/vchordlite/distance"
	"github.com/ryogrid/vchordlite/rerank"
	"github.com/ryogrid/vchordlite/tuple"
	"github.com/ryogrid/vchordlite/vchordg"
	"github.com/ryogrid/vchordlite/vchordrq"
)

// ErrNonMVCC is returned by BeginScan when the caller's snapshot isn't
// MVCC-consistent — reused physical TIDs outside MVCC would otherwise
// resolve to the wrong row.
var ErrNonMVCC = errors.New("access: scan requires an MVCC snapshot")

// ErrBackward describes the rejection of any scan direction other than
// forward. GetTuple reports such a direction as ok=false and does not
// return this error value.
var ErrBackward = errors.New("access: only forward scans are supported")

// HeapRow is one row Build/Insert receive from the host: a heap TID (the
// PointerWire-style page/slot pair packed as pageID<<32|slot) and its
// indexed vector.
type HeapRow struct {
	TID    uint64
	Vector []float32
}

// HeapScanner is the host's table scan, handed to Build so the engine can
// enumerate every live row once without the host having to materialize
// them all up front.
type HeapScanner interface {
	Next() (HeapRow, bool)
}

// Reporter receives build progress callbacks.
type Reporter interface {
	Progress(done, total int)
}

// RowFetcher resolves a heap TID back to its vector; IVF's posting lists
// only ever store RaBitQ codes, so reranking a vchordrq scan always goes
// through this host-supplied callback rather than an on-disk segment
// chain (the chain approach vchordg's full-vector vertices use instead).
type RowFetcher = rerank.RowFetcher

// Index wraps one opened relation's index kind behind the access-method
// operation contract. Exactly one of ivf/graph is non-nil after Build/Open.
type Index struct {
	mgr     *bufmgr.Mgr
	opts    Options
	log     zerolog.Logger
	ivf     *vchordrq.Index
	graph   *vchordg.Index
	fetcher RowFetcher
}

// Build populates a brand-new index relation by draining the host's heap
// scanner once. For the IVF kind the full set of rows is buffered in
// memory to feed k-means; for the graph kind rows are inserted one at a
// time as Vamana construction requires.
func Build(mgr *bufmgr.Mgr, opts Options, scan HeapScanner, report Reporter, fetcher RowFetcher, log zerolog.Logger) (*Index, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	switch opts.Kind {
	case "ivf":
		var tids []uint64
		var vecs [][]float32
		for {
			row, ok := scan.Next()
			if !ok {
				break
			}
			tids = append(tids, row.TID)
			vecs = append(vecs, row.Vector)
			if report != nil {
				report.Progress(len(tids), 0)
			}
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("access: build requires at least one row")
		}
		nLeaves := leafCountFor(len(vecs))
		cfg := ivfConfig(opts)
		ix := vchordrq.Build(mgr, cfg, nLeaves, tids, vecs, log)
		return &Index{mgr: mgr, opts: opts, log: log, ivf: ix, fetcher: fetcher}, nil
	case "graph":
		cfg := graphConfig(opts)
		ix := vchordg.Build(mgr, cfg, log)
		count := 0
		for {
			row, ok := scan.Next()
			if !ok {
				break
			}
			ix.Insert(row.Vector, row.TID)
			count++
			if report != nil {
				report.Progress(count, 0)
			}
		}
		return &Index{mgr: mgr, opts: opts, log: log, graph: ix}, nil
	default:
		return nil, fmt.Errorf("access: unknown index kind %q", opts.Kind)
	}
}

// Open reattaches to an existing index relation, reading its kind back
// out of the persisted MetaTuple rather than trusting the caller's
// Options (the on-disk kind is authoritative).
func Open(mgr *bufmgr.Mgr, opts Options, fetcher RowFetcher, log zerolog.Logger) *Index {
	g := mgr.Read(0)
	raw, ok := g.P.Get(1)
	if !ok {
		g.Release()
		panic("access: data corruption, missing meta tuple")
	}
	kind := tuple.DeserializeMeta(raw).Kind
	g.Release()
	if kind == tuple.IndexGraph {
		return &Index{mgr: mgr, opts: opts, log: log, graph: vchordg.Open(mgr, log)}
	}
	return &Index{mgr: mgr, opts: opts, log: log, ivf: vchordrq.Open(mgr, log), fetcher: fetcher}
}

func leafCountFor(n int) int {
	// sqrt(n) partitions: a simple rule of thumb for the build-time
	// k-means leaf count, not tuned further.
	l := 1
	for l*l < n {
		l++
	}
	if l < 1 {
		l = 1
	}
	return l
}

func ivfConfig(o Options) vchordrq.Config {
	return vchordrq.Config{
		Dims: o.Dims, Kind: kindFrom(o.Distance), Bits: o.Bits, Residual: o.Residual,
		Probes: o.Probes, Epsilon: o.Epsilon,
	}
}

func graphConfig(o Options) vchordg.Config {
	return vchordg.Config{
		Dims: o.Dims, Kind: kindFrom(o.Distance), M: o.M, Alpha: o.Alpha,
		EfConstruction: o.EfConstruction, EfSearch: o.EfSearch,
	}
}

func kindFrom(name string) distance.Kind {
	if name == "dot" {
		return distance.Dot
	}
	return distance.L2
}

// Insert adds one row to an already-built index. The return value always
// reports false: vchordlite enforces no uniqueness constraint.
func (ix *Index) Insert(row HeapRow) bool {
	if ix.graph != nil {
		ix.graph.Insert(row.Vector, row.TID)
	} else {
		ix.ivf.Insert(row.Vector, row.TID)
	}
	return false
}
