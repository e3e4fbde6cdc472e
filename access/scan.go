package access

import (
	"github.com/ryogrid/vchordlite/rerank"
)

// OrderBy is one ORDER BY <expr> <op> <query> clause; vchordlite only
// supports a single distance order-by per scan — it answers
// nearest-neighbour queries, not arbitrary predicate scans.
type OrderBy struct {
	Query []float32
}

// Scanner is the opaque handle begin_scan hands back to the host; it
// holds the materialized, already-ordered result set and a cursor, since
// neither vchordrq.Search nor vchordg.Search stream incrementally.
type Scanner struct {
	results []rerank.Result
	pos     int
}

// BeginScan validates the scan request and returns an opaque scanner.
// #keys/#order-bys are implicit in Rescan's OrderBy argument; vchordlite
// has no scalar-key quals of its own to report a count for.
func (ix *Index) BeginScan(mvcc bool) (*Scanner, error) {
	if !mvcc {
		return nil, ErrNonMVCC
	}
	return &Scanner{}, nil
}

// Rescan runs the nearest-neighbour query and buffers its ordered
// results. Only a single OrderBy clause, forward direction, is
// accepted.
func (s *Scanner) Rescan(ix *Index, order OrderBy, k int) error {
	s.results = nil
	s.pos = 0

	if ix.graph != nil {
		hits := ix.graph.Search(order.Query, k)
		s.results = make([]rerank.Result, len(hits))
		for i, h := range hits {
			s.results[i] = rerank.Result{Distance: h.Distance, Payload: h.Payload}
		}
		return nil
	}

	lower := ix.ivf.Search(order.Query, k*overscanFactor(ix.opts))
	r := rerank.New(ix.mgr, kindFrom(ix.opts.Distance), order.Query, k, ix.fetcher)
	for _, c := range lower {
		if !r.Feed(rerank.Candidate{LowerBound: c.LowerBound, Payload: c.Payload}) {
			break
		}
	}
	s.results = r.Results()
	return nil
}

// overscanFactor widens the IVF probe pass beyond k so the reranker has
// enough candidates to apply its termination bound meaningfully; a small
// constant multiplier, not otherwise tuned.
func overscanFactor(o Options) int {
	if o.EagerSearch {
		return 1
	}
	return 4
}

// GetTuple returns the next (tid, recheck) pair in forward order, or
// ok=false at end of scan. recheck is always false: vchordlite's
// distances are exact once reranked (or, for the lower-bound-only IVF
// path, already pruned against the k-th best before being returned).
func (s *Scanner) GetTuple(direction int) (tid uint64, recheck bool, ok bool) {
	if direction != ScanForward {
		return 0, false, false
	}
	if s.pos >= len(s.results) {
		return 0, false, false
	}
	r := s.results[s.pos]
	s.pos++
	return r.Payload, false, true
}

// ScanForward is the only direction value get_tuple accepts.
const ScanForward = 0

// EndScan releases the scanner; vchordlite's Scanner holds no
// host-side resources, so this is a no-op kept for contract symmetry.
func (s *Scanner) EndScan() {}
