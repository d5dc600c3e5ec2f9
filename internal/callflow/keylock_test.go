package callflow

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	k := newKeyLock()
	unlock := k.Lock("a")

	acquired := make(chan struct{})
	go func() {
		u := k.Lock("a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first was held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired
	require.Zero(t, k.size())
}

func TestKeyLockIndependentKeys(t *testing.T) {
	k := newKeyLock()
	unlockA := k.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		k.Lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by a")
	}
}

func TestKeyLockReleasesEntries(t *testing.T) {
	k := newKeyLock()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("shared")()
		}()
	}
	wg.Wait()
	require.Zero(t, k.size())
}
