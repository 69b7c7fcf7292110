package venue

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketAllowsBurstThenThrottles(t *testing.T) {
	t.Parallel()

	tb := NewTokenBucket(2, 1) // burst of 2, refills 1/sec
	ctx := context.Background()

	start := time.Now()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("first two waits should consume burst capacity instantly, took %s", time.Since(start))
	}

	// Third call exhausts the bucket and must block for roughly 1s.
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("third wait: %v", err)
	}
	if time.Since(start) < 400*time.Millisecond {
		t.Errorf("third wait should have blocked for refill, only took %s", time.Since(start))
	}
}

func TestTokenBucketRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	tb := NewTokenBucket(1, 0.01) // burst 1, very slow refill
	ctx := context.Background()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tb.Wait(cancelCtx); err == nil {
		t.Error("expected Wait to return an error once context deadline passes")
	}
}
