package polymarket

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketBurst(t *testing.T) {
	b := NewTokenBucket(5, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := b.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("burst of 5 should not block, took %v", elapsed)
	}
}

func TestTokenBucketRefillWait(t *testing.T) {
	b := NewTokenBucket(1, 20) // refill 20/s, one token per 50ms
	ctx := context.Background()

	if err := b.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := b.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("second token should wait for refill, took %v", elapsed)
	}
}

func TestTokenBucketContextCancel(t *testing.T) {
	b := NewTokenBucket(1, 0.001)
	ctx := context.Background()
	if err := b.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := b.Wait(cancelCtx); err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTokenBucketPenalize(t *testing.T) {
	b := NewTokenBucket(100, 100)
	ctx := context.Background()

	b.Penalize(80 * time.Millisecond)

	start := time.Now()
	if err := b.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("penalty window should block even a full bucket, took %v", elapsed)
	}
}

func TestTokenBucketPenalizeNeverShrinks(t *testing.T) {
	b := NewTokenBucket(10, 10)
	b.Penalize(time.Second)
	before := b.deadUntil
	b.Penalize(time.Millisecond)
	if b.deadUntil.Before(before) {
		t.Error("shorter penalty trimmed a longer one")
	}
}

func TestNewBuckets(t *testing.T) {
	bk := NewBuckets()
	if bk.Gamma.capacity != 200 || bk.Gamma.rate != 20 {
		t.Errorf("gamma bucket: cap=%v rate=%v", bk.Gamma.capacity, bk.Gamma.rate)
	}
	if bk.ClobRead.capacity != 1000 || bk.ClobRead.rate != 100 {
		t.Errorf("clob read bucket: cap=%v rate=%v", bk.ClobRead.capacity, bk.ClobRead.rate)
	}
	if bk.Trading.capacity != 400 || bk.Trading.rate != 40 {
		t.Errorf("trading bucket: cap=%v rate=%v", bk.Trading.capacity, bk.Trading.rate)
	}
}
