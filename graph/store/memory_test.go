package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// TestMemStore_Contract runs the shared store contract.
func TestMemStore_Contract(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store[testState] {
		return NewMemStore[testState]()
	})
}

// TestMemStore_ConcurrentAppends verifies per-thread append atomicity.
func TestMemStore_ConcurrentAppends(t *testing.T) {
	st := NewMemStore[testState]()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				cp := Checkpoint[testState]{
					ThreadID: fmt.Sprintf("t%d", n%4),
					ID:       fmt.Sprintf("cp-%d-%d", n, j),
					Seq:      j,
					Next:     "work",
				}
				if _, err := st.Put(ctx, cp); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 4; i++ {
		history, err := st.History(ctx, fmt.Sprintf("t%d", i))
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		total += len(history)
	}
	if total != 1000 {
		t.Errorf("expected 1000 checkpoints, got %d", total)
	}
}
