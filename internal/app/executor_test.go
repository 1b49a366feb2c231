package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecutorRunsInOrder(t *testing.T) {
	e := newExecutor("test")
	var mu sync.Mutex
	var got []int
	for i := 0; i < 1000; i++ {
		require.True(t, e.Enqueue(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	e.Stop()
	<-e.Done()

	require.Len(t, got, 1000)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestExecutorRejectsAfterStop(t *testing.T) {
	e := newExecutor("test")
	block := make(chan struct{})
	ran := make(chan struct{})
	e.Enqueue(func() { <-block })
	e.Enqueue(func() { close(ran) })
	e.Stop()

	require.False(t, e.Enqueue(func() {}))
	close(block)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("op queued before stop did not run")
	}
	<-e.Done()
}
