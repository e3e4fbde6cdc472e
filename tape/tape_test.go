package tape

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryogrid/vchordlite/bufmgr"
	"github.com/ryogrid/vchordlite/hostsim"
	"github.com/ryogrid/vchordlite/page"
)

func newTestMgr() *bufmgr.Mgr {
	return bufmgr.New(hostsim.NewMemory(), 32, zerolog.Nop())
}

func TestCreateAppendAndByNext(t *testing.T) {
	mgr := newTestMgr()
	tp, first := Create(mgr, page.Opaque{}, true, zerolog.Nop())
	assert.Equal(t, first, tp.First())

	p1 := tp.Append([]byte("alpha"), page.Opaque{})
	p2 := tp.Append([]byte("beta"), page.Opaque{})
	assert.Equal(t, first, p1.Page)
	assert.Equal(t, first, p2.Page)

	var seen [][]byte
	tp.ByNext(func(g *bufmgr.ReadGuard) bool {
		for s := uint16(1); s <= g.P.Len(); s++ {
			if b, ok := g.P.Get(s); ok {
				cp := append([]byte(nil), b...)
				seen = append(seen, cp)
			}
		}
		return true
	})
	require.Len(t, seen, 2)
	assert.Equal(t, []byte("alpha"), seen[0])
	assert.Equal(t, []byte("beta"), seen[1])
}

func TestAppendExtendsWhenPageFull(t *testing.T) {
	mgr := newTestMgr()
	tp, _ := Create(mgr, page.Opaque{}, true, zerolog.Nop())

	big := make([]byte, 4000)
	p1 := tp.Append(big, page.Opaque{})
	p2 := tp.Append(big, page.Opaque{})
	p3 := tp.Append(big, page.Opaque{})

	assert.NotEqual(t, p1.Page, p3.Page, "third oversized tuple should land on a new tape page")
	_ = p2
}

func TestByNextStopsEarlyWhenFnReturnsFalse(t *testing.T) {
	mgr := newTestMgr()
	tp, _ := Create(mgr, page.Opaque{}, true, zerolog.Nop())
	tp.Append([]byte("one"), page.Opaque{})

	visited := 0
	tp.ByNext(func(g *bufmgr.ReadGuard) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}

func TestByDirectoryVisitsGivenIDs(t *testing.T) {
	mgr := newTestMgr()
	tp, first := Create(mgr, page.Opaque{}, true, zerolog.Nop())
	tp.Append([]byte("x"), page.Opaque{})

	visited := []page.ID{}
	tp.ByDirectory([]page.ID{first}, func(g *bufmgr.ReadGuard) bool {
		visited = append(visited, g.ID())
		return true
	})
	assert.Equal(t, []page.ID{first}, visited)
}

func TestPrefetcherDrainsAllIDs(t *testing.T) {
	mgr := newTestMgr()
	tp, first := Create(mgr, page.Opaque{}, true, zerolog.Nop())

	second := mgr.Extend(page.Opaque{}, true)
	secondID := second.ID()
	second.Finish()

	pf := NewPrefetcher(mgr, []page.ID{first, secondID}, 1)
	var got []page.ID
	for {
		g, ok := pf.Next()
		if !ok {
			break
		}
		got = append(got, g.ID())
		g.Release()
	}
	assert.Equal(t, []page.ID{first, secondID}, got)
}
