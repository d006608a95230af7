package keymutex

import (
	"sync"
	"testing"
)

func TestSameKeySerializes(t *testing.T) {
	km := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("vendor-1")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 100 {
		t.Errorf("counter = %d; want 100", counter)
	}
	if km.Len() != 0 {
		t.Errorf("Len() = %d after all unlocks; want 0", km.Len())
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	km := New()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()
	<-done
}
