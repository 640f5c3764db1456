package reentrant

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockUnlockSameToken(t *testing.T) {
	var m Mutex
	m.Lock("a")
	require.Equal(t, 1, m.Depth())
	m.Lock("a")
	require.Equal(t, 2, m.Depth())
	require.True(t, m.Unlock("a"))
	require.Equal(t, 1, m.Depth())
	require.True(t, m.Unlock("a"))
	require.Equal(t, 0, m.Depth())
	require.Nil(t, m.Owner())
}

func TestUnlockWrongTokenIsNoop(t *testing.T) {
	var m Mutex
	m.Lock("a")
	require.False(t, m.Unlock("b"))
	require.Equal(t, 1, m.Depth())
	require.True(t, m.Unlock("a"))
}

func TestBlocksOtherToken(t *testing.T) {
	var m Mutex
	m.Lock("a")

	acquired := make(chan struct{})
	go func() {
		m.Lock("b")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("token b acquired while token a still holds the mutex")
	case <-time.After(50 * time.Millisecond):
	}

	m.Unlock("a")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("token b never acquired after token a released")
	}
	m.Unlock("b")
}

func TestTryLock(t *testing.T) {
	var m Mutex
	require.True(t, m.TryLock("a"))
	require.True(t, m.TryLock("a"))
	require.False(t, m.TryLock("b"))
	require.True(t, m.Unlock("a"))
	require.True(t, m.Unlock("a"))
	require.True(t, m.TryLock("b"))
}

func TestConcurrentDistinctTokensSerialize(t *testing.T) {
	var m Mutex
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(tok int) {
			defer wg.Done()
			m.Lock(tok)
			counter++
			m.Unlock(tok)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 50, counter)
}
