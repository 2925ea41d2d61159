package util

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateMaximum(t *testing.T) {
	// create 10 goroutines trying to enter a gate that can only hold 5
	g := NewGate(5)
	var nenter, nerr int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Enter() {
				atomic.AddInt64(&nenter, 1)
			} else {
				atomic.AddInt64(&nerr, 1)
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	if n := atomic.LoadInt64(&nenter); n != 5 {
		t.Errorf("Received %d enters, expected %d", n, 5)
	}

	// call leave a few times and see what happens
	g.Leave()
	g.Leave()
	time.Sleep(10 * time.Millisecond)
	if n := atomic.LoadInt64(&nenter); n != 7 {
		t.Errorf("Received %d enters, expected %d", n, 7)
	}
	if g.TryEnter() {
		t.Errorf("TryEnter succeeded on a full gate")
	}

	// the 5 goroutines inside have to leave before Stop returns
	go func() {
		time.Sleep(5 * time.Millisecond)
		for i := 0; i < 5; i++ {
			g.Leave()
		}
	}()
	g.Stop()
	wg.Wait()

	if nenter != 7 {
		t.Errorf("Received %d enters, expected %d", nenter, 7)
	}
	if nerr != 3 {
		t.Errorf("Received %d errors, expected %d", nerr, 3)
	}
	if g.Enter() || g.TryEnter() {
		t.Errorf("Enter succeeded on a stopped gate")
	}
}
