// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package sequence

import (
	"sync"
	"testing"
)

func TestNextGlobalMonotonic(t *testing.T) {
	a := NewAuthority()

	if got := a.CurrentGlobal(); got != 0 {
		t.Fatalf("fresh authority CurrentGlobal = %d, want 0", got)
	}

	prev := uint64(0)
	for i := 0; i < 100; i++ {
		n := a.NextGlobal()
		if n != prev+1 {
			t.Fatalf("NextGlobal = %d, want %d", n, prev+1)
		}
		prev = n
	}

	if got := a.CurrentGlobal(); got != 100 {
		t.Errorf("CurrentGlobal = %d, want 100", got)
	}
}

func TestNextScopedIndependentPerScope(t *testing.T) {
	a := NewAuthority()

	if n := a.NextScoped("p1"); n != 1 {
		t.Errorf("first NextScoped(p1) = %d, want 1", n)
	}
	if n := a.NextScoped("p2"); n != 1 {
		t.Errorf("first NextScoped(p2) = %d, want 1", n)
	}
	if n := a.NextScoped("p1"); n != 2 {
		t.Errorf("second NextScoped(p1) = %d, want 2", n)
	}

	if got := a.CurrentScoped("p1"); got != 2 {
		t.Errorf("CurrentScoped(p1) = %d, want 2", got)
	}
	if got := a.CurrentScoped("never-seen"); got != 0 {
		t.Errorf("CurrentScoped(never-seen) = %d, want 0", got)
	}
}

func TestForget(t *testing.T) {
	a := NewAuthority()
	a.NextScoped("p1")
	a.Forget("p1")

	if got := a.CurrentScoped("p1"); got != 0 {
		t.Errorf("CurrentScoped after Forget = %d, want 0", got)
	}
}

// TestConcurrentUniqueness verifies that no two concurrent callers ever
// receive the same value for the same counter.
func TestConcurrentUniqueness(t *testing.T) {
	a := NewAuthority()

	const workers = 16
	const perWorker = 500

	var wg sync.WaitGroup
	results := make([][]uint64, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			vals := make([]uint64, 0, perWorker*2)
			for i := 0; i < perWorker; i++ {
				vals = append(vals, a.NextGlobal())
				a.NextScoped("shared")
			}
			results[w] = vals
		}(w)
	}
	wg.Wait()

	seen := make(map[uint64]bool, workers*perWorker)
	for _, vals := range results {
		for _, v := range vals {
			if seen[v] {
				t.Fatalf("global sequence %d issued twice", v)
			}
			seen[v] = true
		}
	}

	if got := a.CurrentGlobal(); got != workers*perWorker {
		t.Errorf("CurrentGlobal = %d, want %d", got, workers*perWorker)
	}
	if got := a.CurrentScoped("shared"); got != workers*perWorker {
		t.Errorf("CurrentScoped(shared) = %d, want %d", got, workers*perWorker)
	}
}
