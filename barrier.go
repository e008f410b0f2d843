package spellbook

import (
	"sync"
	"sync/atomic"
	"time"
)

// Barrier is a one-shot gate. It starts closed and can only be opened once.
type Barrier struct {
	open atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewBarrier creates a closed Barrier.
func NewBarrier() *Barrier {
	return &Barrier{done: make(chan struct{})}
}

// Await blocks until the barrier opens or timeout elapses; timeout <= 0 waits forever.
//
// The result tells whether the caller waited at all, it does not tell whether the barrier is open:
// a waiter released by the timeout also gets true. Use IsOpen when that matters.
func (b *Barrier) Await(timeout time.Duration) (waited bool) {
	if b.open.Load() {
		return false
	}
	if timeout <= 0 {
		<-b.done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-b.done:
	case <-t.C:
	}
	return true
}

// Open releases every waiter. Calling it again does nothing.
func (b *Barrier) Open() {
	b.once.Do(func() {
		b.open.Store(true)
		close(b.done)
	})
}

// IsOpen reports whether Open has been called.
func (b *Barrier) IsOpen() bool {
	return b.open.Load()
}

// Done returns a channel closed once the barrier opens.
func (b *Barrier) Done() <-chan struct{} {
	return b.done
}
