package tuple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreepageTupleRoundTrip(t *testing.T) {
	var ft FreepageTuple
	ft.Mark(5)
	ft.Mark(1000)
	ft.Mark(Capacity - 1)

	got := DeserializeFreepage(ft.Serialize())
	assert.Equal(t, ft, got)
}

func TestFreepageMarkFetchSmallest(t *testing.T) {
	var ft FreepageTuple
	ft.Mark(500)
	ft.Mark(3)
	ft.Mark(30000)

	got, ok := ft.Fetch()
	require.True(t, ok)
	assert.Equal(t, uint32(3), got)
}

func TestFreepageUnmarkClearsSummaryBits(t *testing.T) {
	var ft FreepageTuple
	ft.Mark(42)

	_, ok := ft.Fetch()
	require.True(t, ok)

	ft.Unmark(42)
	_, ok = ft.Fetch()
	assert.False(t, ok)
	assert.Equal(t, uint32(0), ft.Root)
}

func TestFreepageFetchEmpty(t *testing.T) {
	var ft FreepageTuple
	_, ok := ft.Fetch()
	assert.False(t, ok)
}

func TestFreepageMarkOutOfRangePanics(t *testing.T) {
	var ft FreepageTuple
	assert.Panics(t, func() { ft.Mark(Capacity) })
}

func TestFreepageUnmarkOutOfRangeIsNoop(t *testing.T) {
	var ft FreepageTuple
	assert.NotPanics(t, func() { ft.Unmark(Capacity) })
}
