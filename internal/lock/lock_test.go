package lock

import (
	"context"
	"sync"
	"testing"
)

func TestKeyedMutualExclusion(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	// counter and active are guarded only by the keyed lock; the race
	// detector flags any overlap in the critical section.
	var counter, active int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Acquire(ctx, "player-1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()
			active++
			if active != 1 {
				t.Errorf("critical section entered concurrently: %d active", active)
			}
			counter++
			active--
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter: %d", counter)
	}
}

func TestKeyedIndependentKeys(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	releaseA, err := k.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer releaseA()

	// A different key must not block behind "a".
	done := make(chan struct{})
	go func() {
		releaseB, err := k.Acquire(ctx, "b")
		if err != nil {
			t.Errorf("acquire b: %v", err)
		} else {
			releaseB()
		}
		close(done)
	}()
	<-done
}

func TestKeyedCleansUpIdleEntries(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	release, err := k.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()

	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.locks) != 0 {
		t.Fatalf("released entries should be dropped, %d remain", len(k.locks))
	}
}
