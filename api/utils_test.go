package api

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNextTimestampStrictlyIncreasing(t *testing.T) {
	t.Cleanup(func() {
		atomic.StoreInt64(&lastTimestamp, 0)
	})

	prev := nextTimestamp()
	for i := 0; i < 1000; i++ {
		ts := nextTimestamp()
		if ts <= prev {
			t.Fatalf("timestamp %d not greater than %d", ts, prev)
		}
		prev = ts
	}
}

func TestNextTimestampAdvancesPastClock(t *testing.T) {
	t.Cleanup(func() {
		atomic.StoreInt64(&lastTimestamp, 0)
	})
	future := time.Now().Add(time.Second).UnixNano()
	atomic.StoreInt64(&lastTimestamp, future)

	if ts := nextTimestamp(); ts != future+1 {
		t.Fatalf("expected %d, got %d", future+1, ts)
	}
}

func TestNextTimestampConcurrentUnique(t *testing.T) {
	t.Cleanup(func() {
		atomic.StoreInt64(&lastTimestamp, 0)
	})

	const goroutines = 8
	const perGoroutine = 200

	var wg sync.WaitGroup
	results := make(chan int64, goroutines*perGoroutine)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				results <- nextTimestamp()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]struct{}, goroutines*perGoroutine)
	for ts := range results {
		if _, dup := seen[ts]; dup {
			t.Fatalf("duplicate timestamp %d", ts)
		}
		seen[ts] = struct{}{}
	}
}
