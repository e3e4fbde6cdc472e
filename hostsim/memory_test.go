package hostsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryNewFetchUnpinRoundTrip(t *testing.T) {
	m := NewMemory()
	hp := m.New()
	id := hp.ID()
	copy(hp.DataAsSlice(), []byte("hello"))
	require.NoError(t, m.Unpin(id, true))

	got := m.Fetch(id)
	assert.Equal(t, []byte("hello"), got.DataAsSlice()[:5])
	require.NoError(t, m.Unpin(id, false))
}

func TestMemoryFetchUnknownPanics(t *testing.T) {
	m := NewMemory()
	assert.Panics(t, func() { m.Fetch(999) })
}

func TestMemoryDeallocateRemovesPage(t *testing.T) {
	m := NewMemory()
	hp := m.New()
	id := hp.ID()
	require.NoError(t, m.Unpin(id, false))
	require.NoError(t, m.Deallocate(id, false))
	assert.Panics(t, func() { m.Fetch(id) })
}

func TestMemorySnapshotReflectsDirtyWrites(t *testing.T) {
	m := NewMemory()
	hp := m.New()
	id := hp.ID()
	copy(hp.DataAsSlice(), []byte("snap"))
	require.NoError(t, m.Unpin(id, true))

	snap := m.Snapshot()
	assert.Contains(t, string(snap), "snap")
}
