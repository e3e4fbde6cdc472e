package bufmgr

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryogrid/vchordlite/hostsim"
	"github.com/ryogrid/vchordlite/page"
)

func newTestMgr() *Mgr {
	return New(hostsim.NewMemory(), 16, zerolog.Nop())
}

func TestExtendWriteRead(t *testing.T) {
	mgr := newTestMgr()

	g := mgr.Extend(page.Opaque{}, true)
	id := g.ID()
	data := []byte("hello world")
	slot, fits := g.P.Alloc(data)
	require.True(t, fits)
	g.Finish()

	rg := mgr.Read(id)
	got, ok := rg.P.Get(slot)
	require.True(t, ok)
	assert.Equal(t, data, got)
	rg.Release()
}

func TestPinHitIncrementsMetric(t *testing.T) {
	mgr := newTestMgr()
	g := mgr.Extend(page.Opaque{}, true)
	id := g.ID()
	g.Finish()

	before := testutil.ToFloat64(mgr.metrics.hits)
	rg := mgr.Read(id)
	rg.Release()
	after := testutil.ToFloat64(mgr.metrics.hits)
	assert.Greater(t, after, before)
}

func TestSearchFindsFreespace(t *testing.T) {
	mgr := newTestMgr()
	g := mgr.Extend(page.Opaque{}, true)
	g.Finish()

	wg, ok := mgr.Search(16)
	require.True(t, ok)
	_, fits := wg.P.Alloc(make([]byte, 16))
	assert.True(t, fits)
	wg.Finish()
}

func TestFreeListReusesPageID(t *testing.T) {
	mgr := newTestMgr()
	g := mgr.Extend(page.Opaque{}, true)
	id := g.ID()
	g.Finish()

	mgr.PushFree(id)
	g2 := mgr.Extend(page.Opaque{}, true)
	assert.Equal(t, id, g2.ID())
	g2.Finish()
}

func TestWriteAbortDiscardsMutation(t *testing.T) {
	mgr := newTestMgr()
	g := mgr.Extend(page.Opaque{}, true)
	id := g.ID()
	g.Finish()

	wg := mgr.Write(id, true)
	slot, fits := wg.P.Alloc([]byte("discarded"))
	require.True(t, fits)
	wg.Abort()

	rg := mgr.Read(id)
	_, ok := rg.P.Get(slot)
	assert.False(t, ok)
	rg.Release()
}
