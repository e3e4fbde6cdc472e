package latch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpinMutualExclusion(t *testing.T) {
	var s Spin
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Lock()
			counter++
			s.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestRWReadersDoNotBlockEachOther(t *testing.T) {
	var l RW
	l.Lock(ModeRead)
	done := make(chan struct{})
	go func() {
		l.Lock(ModeRead)
		l.Unlock(ModeRead)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked behind first reader")
	}
	l.Unlock(ModeRead)
}

func TestRWWriteExcludesRead(t *testing.T) {
	var l RW
	l.Lock(ModeWrite)
	acquired := make(chan struct{})
	go func() {
		l.Lock(ModeRead)
		close(acquired)
		l.Unlock(ModeRead)
	}()
	select {
	case <-acquired:
		t.Fatal("reader acquired while writer held the latch")
	case <-time.After(50 * time.Millisecond):
	}
	l.Unlock(ModeWrite)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired after writer released")
	}
}

func TestAccessAndParentAreIndependentLocks(t *testing.T) {
	var l RW
	l.Lock(ModeAccess)
	done := make(chan struct{})
	go func() {
		l.Lock(ModeParent)
		l.Unlock(ModeParent)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("parent lock blocked behind unrelated access lock")
	}
	l.Unlock(ModeAccess)
}
