package app

import (
	"sync"

	"github.com/gammazero/deque"
)

// executor runs queued ops one at a time in FIFO order. The queue is unbounded so an
// offer is never dropped. Ops queued before Stop still run; Enqueue after Stop fails.
type executor struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	ops     *deque.Deque[func()]
	stopped bool
	done    chan struct{}
}

func newExecutor(name string) *executor {
	e := &executor{
		name: name,
		ops:  deque.New[func()](),
		done: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

func (e *executor) Enqueue(op func()) bool {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return false
	}
	e.ops.PushBack(op)
	e.mu.Unlock()
	e.cond.Signal()
	return true
}

func (e *executor) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.cond.Broadcast()
}

func (e *executor) Done() <-chan struct{} { return e.done }

func (e *executor) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for e.ops.Len() == 0 && !e.stopped {
			e.cond.Wait()
		}
		if e.ops.Len() == 0 {
			e.mu.Unlock()
			return
		}
		op := e.ops.PopFront()
		e.mu.Unlock()
		op()
	}
}
