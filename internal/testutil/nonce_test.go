package testutil

import (
	"sync"
	"testing"
)

func TestNonceSource_Monotonic(t *testing.T) {
	n := NewNonceSource()

	for want := int64(1); want <= 5; want++ {
		if got := n.Next(); got != want {
			t.Errorf("Next() = %d, want %d", got, want)
		}
	}
}

func TestNonceSource_Reset(t *testing.T) {
	n := NewNonceSource()
	n.Next()
	n.Next()
	n.Reset()

	if got := n.Next(); got != 1 {
		t.Errorf("Next() after Reset() = %d, want 1", got)
	}
}

func TestNonceSource_ConcurrentUnique(t *testing.T) {
	n := NewNonceSource()
	const goroutines = 100

	nonces := make(chan int64, goroutines)
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nonces <- n.Next()
		}()
	}

	wg.Wait()
	close(nonces)

	seen := make(map[int64]bool, goroutines)
	for nonce := range nonces {
		if seen[nonce] {
			t.Errorf("nonce %d issued twice", nonce)
		}
		seen[nonce] = true
	}
}
