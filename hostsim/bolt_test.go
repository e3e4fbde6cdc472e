package hostsim

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltNewFetchUnpinRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")
	b, err := OpenBolt(path)
	require.NoError(t, err)
	defer b.Close()

	hp := b.New()
	id := hp.ID()
	copy(hp.DataAsSlice(), []byte("persisted"))
	require.NoError(t, b.Unpin(id, true))

	got := b.Fetch(id)
	assert.Equal(t, []byte("persisted"), got.DataAsSlice()[:9])
	require.NoError(t, b.Unpin(id, false))
}

func TestBoltSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")
	b, err := OpenBolt(path)
	require.NoError(t, err)

	hp := b.New()
	id := hp.ID()
	copy(hp.DataAsSlice(), []byte("durable"))
	require.NoError(t, b.Unpin(id, true))
	require.NoError(t, b.Close())

	b2, err := OpenBolt(path)
	require.NoError(t, err)
	defer b2.Close()

	got := b2.Fetch(id)
	assert.Equal(t, []byte("durable"), got.DataAsSlice()[:7])
	require.NoError(t, b2.Unpin(id, false))
}

func TestBoltDeallocateRemovesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")
	b, err := OpenBolt(path)
	require.NoError(t, err)
	defer b.Close()

	hp := b.New()
	id := hp.ID()
	require.NoError(t, b.Unpin(id, false))
	require.NoError(t, b.Deallocate(id, false))
	assert.Panics(t, func() { b.Fetch(id) })
}
