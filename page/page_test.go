package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageAllocGet(t *testing.T) {
	var p Page
	p.Init(Opaque{Next: 7, Skip: 3, Link: 1})

	s1, ok := p.Alloc([]byte("hello"))
	require.True(t, ok)
	s2, ok := p.Alloc([]byte("world!!"))
	require.True(t, ok)
	assert.NotEqual(t, s1, s2)

	b1, ok := p.Get(s1)
	require.True(t, ok)
	assert.Equal(t, "hello", string(b1))

	b2, ok := p.Get(s2)
	require.True(t, ok)
	assert.Equal(t, "world!!", string(b2))

	assert.Equal(t, Opaque{Next: 7, Skip: 3, Link: 1}, p.Opaque())
	assert.True(t, p.Validate())
}

func TestPageGetMissingSlot(t *testing.T) {
	var p Page
	p.Init(Opaque{})

	_, ok := p.Get(0)
	assert.False(t, ok)
	_, ok = p.Get(1)
	assert.False(t, ok)
}

func TestPageFreeAndReconstruct(t *testing.T) {
	var p Page
	p.Init(Opaque{Next: 5})

	s1, _ := p.Alloc([]byte("alive-1"))
	s2, _ := p.Alloc([]byte("dead"))
	s3, _ := p.Alloc([]byte("alive-2"))

	p.Reconstruct(map[uint16]bool{s2: true})

	assert.Equal(t, uint16(2), p.Len())
	b1, ok := p.Get(1)
	require.True(t, ok)
	assert.Equal(t, "alive-1", string(b1))
	b2, ok := p.Get(2)
	require.True(t, ok)
	assert.Equal(t, "alive-2", string(b2))
	_ = s1
	_ = s3
	assert.Equal(t, uint32(5), p.Opaque().Next, "Reconstruct must preserve the opaque trailer")
}

func TestPageAllocFull(t *testing.T) {
	var p Page
	p.Init(Opaque{})

	chunk := make([]byte, 256)
	count := 0
	for {
		if _, ok := p.Alloc(chunk); !ok {
			break
		}
		count++
	}
	assert.Greater(t, count, 0)
	assert.True(t, p.Validate())
}

func TestPageFreespaceShrinksOnAlloc(t *testing.T) {
	var p Page
	p.Init(Opaque{})
	before := p.Freespace()
	_, ok := p.Alloc([]byte("12345678"))
	require.True(t, ok)
	after := p.Freespace()
	assert.Less(t, after, before)
}
