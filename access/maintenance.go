package access

import "github.com/ryogrid/vchordlite/vchordrq"

// Stats summarizes a bulk_delete or vacuum pass.
type Stats struct {
	TuplesRemoved int
}

// LivenessFunc reports whether a TID is still live; bulk_delete calls it
// once per indexed row.
type LivenessFunc func(tid uint64) bool

// BulkDelete removes every indexed row the callback reports as dead from
// an IVF index. On a graph index it does nothing and reports zero
// removed: dead vertices keep their payloads, so a graph scan can still
// return their TIDs.
func (ix *Index) BulkDelete(alive LivenessFunc) Stats {
	if ix.ivf != nil {
		removed := ix.ivf.Vacuum(vchordrq.Liveness(alive))
		return Stats{TuplesRemoved: removed}
	}
	return Stats{}
}

// Vacuum runs routine maintenance. For the IVF kind this is the same
// liveness-driven reclaim bulk_delete performs; a real host would pass
// an always-true liveness function here since the row set is unchanged,
// vacuum just re-packs/reclaims space.
func (ix *Index) Vacuum(alive LivenessFunc) Stats {
	return ix.BulkDelete(alive)
}
