package util

import "sync"

// A Gate limits concurrency. Every gate has a maximum number
// number of goroutines to allow through at a time. Goroutines enter the gate
// by calling Enter(), and signal that they are done by calling Leave().
// Once Stop() is called every waiting and future Enter() fails.
type Gate struct {
	c    chan struct{}
	stop chan struct{}
	once sync.Once
}

// NewGate returns a Gate which accepts at most n entries at a time.
func NewGate(n int) *Gate {
	return &Gate{
		c:    make(chan struct{}, n),
		stop: make(chan struct{}),
	}
}

// Enter is called at the beginning of the section to be protected by
// the gate, and will block the calling goroutine until there are less than
// n goroutines inside. It returns false if the gate was stopped, in which
// case the caller must not call Leave.
// It is safe to call this from multiple goroutines.
func (g *Gate) Enter() bool {
	select {
	case <-g.stop:
		return false
	default:
	}
	select {
	case g.c <- struct{}{}:
		return true
	case <-g.stop:
		return false
	}
}

// TryEnter is like Enter but returns false instead of waiting when the gate
// is full.
func (g *Gate) TryEnter() bool {
	select {
	case <-g.stop:
		return false
	default:
	}
	select {
	case g.c <- struct{}{}:
		return true
	default:
		return false
	}
}

// Leave marks a goroutine outside the critical section. It is important to
// balance each successful call to Enter with a call to Leave. Enter and Leave
// do not need to be called from the same goroutine, necessarily.
func (g *Gate) Leave() {
	<-g.c
}

// Stop fails every waiting Enter and then waits for the goroutines inside
// the gate to leave.
func (g *Gate) Stop() {
	g.once.Do(func() { close(g.stop) })
	for i := 0; i < cap(g.c); i++ {
		g.c <- struct{}{}
	}
}
