package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquire_EnforcesMinimumInterval(t *testing.T) {
	// 100 rps = 10ms between grants. Five acquisitions need at least
	// four full intervals; allow generous slack for scheduler noise.
	lim := New(100)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := lim.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	if elapsed < 35*time.Millisecond {
		t.Errorf("5 acquisitions at 100 rps finished in %v, want >= ~40ms", elapsed)
	}
}

func TestAcquire_ConcurrentCallersShareBudget(t *testing.T) {
	lim := New(200) // 5ms interval
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lim.Acquire(ctx); err != nil {
				t.Errorf("acquire: %v", err)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// 6 grants at 5ms spacing need at least 5 intervals.
	if elapsed < 20*time.Millisecond {
		t.Errorf("6 concurrent acquisitions finished in %v, want >= ~25ms", elapsed)
	}
}

func TestAcquire_NonPositiveRateNeverBlocks(t *testing.T) {
	for _, rps := range []float64{0, -1} {
		lim := New(rps)
		ctx := context.Background()

		start := time.Now()
		for i := 0; i < 1000; i++ {
			if err := lim.Acquire(ctx); err != nil {
				t.Fatalf("acquire with rps=%v: %v", rps, err)
			}
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("unthrottled limiter (rps=%v) blocked for %v", rps, elapsed)
		}
	}
}

func TestAcquire_ContextCancellation(t *testing.T) {
	lim := New(0.1) // 10s interval
	ctx := context.Background()

	// First grant is immediate; the second must park until canceled.
	if err := lim.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := lim.Acquire(cctx)
	if err == nil {
		t.Fatal("expected context error from parked acquire")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("canceled acquire took %v, want prompt return", elapsed)
	}
}
