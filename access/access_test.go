package access

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryogrid/vchordlite/bufmgr"
	"github.com/ryogrid/vchordlite/hostsim"
)

type sliceScanner struct {
	rows []HeapRow
	pos  int
}

func (s *sliceScanner) Next() (HeapRow, bool) {
	if s.pos >= len(s.rows) {
		return HeapRow{}, false
	}
	r := s.rows[s.pos]
	s.pos++
	return r, true
}

type mapFetcher map[uint64][]float32

func (f mapFetcher) FetchRow(payload uint64) []float32 { return f[payload] }

func newTestMgr() *bufmgr.Mgr {
	return bufmgr.New(hostsim.NewMemory(), 64, zerolog.Nop())
}

func buildRows(n int) ([]HeapRow, mapFetcher) {
	rows := make([]HeapRow, n)
	fetcher := mapFetcher{}
	for i := 0; i < n; i++ {
		tid := uint64(i+1) << 32
		vec := []float32{float32(i), float32(i % 3), float32(-i)}
		rows[i] = HeapRow{TID: tid, Vector: vec}
		fetcher[tid] = vec
	}
	return rows, fetcher
}

func ivfOptions() Options {
	o := Options{Dims: 3, Distance: "l2", Bits: 1, Kind: "ivf"}
	o.setDefaults()
	return o
}

func graphOptions() Options {
	o := Options{Dims: 3, Distance: "l2", Kind: "graph"}
	o.setDefaults()
	return o
}

func TestBuildIVFThenScanFindsRow(t *testing.T) {
	mgr := newTestMgr()
	rows, fetcher := buildRows(20)
	ix, err := Build(mgr, ivfOptions(), &sliceScanner{rows: rows}, nil, fetcher, zerolog.Nop())
	require.NoError(t, err)

	scanner, err := ix.BeginScan(true)
	require.NoError(t, err)
	require.NoError(t, scanner.Rescan(ix, OrderBy{Query: rows[10].Vector}, 3))

	tid, recheck, ok := scanner.GetTuple(ScanForward)
	require.True(t, ok)
	assert.False(t, recheck)
	assert.Equal(t, rows[10].TID, tid)
	scanner.EndScan()
}

func TestBuildGraphThenScanFindsRow(t *testing.T) {
	mgr := newTestMgr()
	rows, _ := buildRows(15)
	ix, err := Build(mgr, graphOptions(), &sliceScanner{rows: rows}, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	scanner, err := ix.BeginScan(true)
	require.NoError(t, err)
	require.NoError(t, scanner.Rescan(ix, OrderBy{Query: rows[5].Vector}, 3))

	found := false
	for {
		tid, _, ok := scanner.GetTuple(ScanForward)
		if !ok {
			break
		}
		if tid == rows[5].TID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBeginScanRejectsNonMVCC(t *testing.T) {
	mgr := newTestMgr()
	rows, fetcher := buildRows(5)
	ix, err := Build(mgr, ivfOptions(), &sliceScanner{rows: rows}, nil, fetcher, zerolog.Nop())
	require.NoError(t, err)

	_, err = ix.BeginScan(false)
	assert.ErrorIs(t, err, ErrNonMVCC)
}

func TestGetTupleRejectsBackwardScan(t *testing.T) {
	mgr := newTestMgr()
	rows, fetcher := buildRows(5)
	ix, err := Build(mgr, ivfOptions(), &sliceScanner{rows: rows}, nil, fetcher, zerolog.Nop())
	require.NoError(t, err)

	scanner, err := ix.BeginScan(true)
	require.NoError(t, err)
	require.NoError(t, scanner.Rescan(ix, OrderBy{Query: rows[0].Vector}, 3))

	_, _, ok := scanner.GetTuple(1)
	assert.False(t, ok)
}

func TestInsertAfterBuildIsVisibleInScan(t *testing.T) {
	mgr := newTestMgr()
	rows, fetcher := buildRows(10)
	ix, err := Build(mgr, ivfOptions(), &sliceScanner{rows: rows}, nil, fetcher, zerolog.Nop())
	require.NoError(t, err)

	newTID := uint64(999) << 32
	newVec := []float32{500, 0, -500}
	fetcher[newTID] = newVec
	ix.Insert(HeapRow{TID: newTID, Vector: newVec})

	scanner, err := ix.BeginScan(true)
	require.NoError(t, err)
	require.NoError(t, scanner.Rescan(ix, OrderBy{Query: newVec}, 1))

	tid, _, ok := scanner.GetTuple(ScanForward)
	require.True(t, ok)
	assert.Equal(t, newTID, tid)
}

func TestBulkDeleteOnIVFReportsRemovedRows(t *testing.T) {
	mgr := newTestMgr()
	rows, fetcher := buildRows(10)
	ix, err := Build(mgr, ivfOptions(), &sliceScanner{rows: rows}, nil, fetcher, zerolog.Nop())
	require.NoError(t, err)

	dead := rows[0].TID
	stats := ix.BulkDelete(func(tid uint64) bool { return tid != dead })
	assert.Equal(t, 1, stats.TuplesRemoved)
}

func TestVacuumOnGraphIsNoop(t *testing.T) {
	mgr := newTestMgr()
	rows, _ := buildRows(5)
	ix, err := Build(mgr, graphOptions(), &sliceScanner{rows: rows}, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	stats := ix.Vacuum(func(uint64) bool { return true })
	assert.Equal(t, 0, stats.TuplesRemoved)
}

func TestBuildRejectsInvalidOptions(t *testing.T) {
	mgr := newTestMgr()
	_, err := Build(mgr, Options{}, &sliceScanner{}, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}
