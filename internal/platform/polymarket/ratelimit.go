package polymarket

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a continuously-refilling rate limiter. Capacity is the
// burst size; refill happens at rate tokens per second with fractional
// accumulation so no refill tick is needed.
type TokenBucket struct {
	mu        sync.Mutex
	capacity  float64
	rate      float64 // tokens per second
	tokens    float64
	last      time.Time
	deadUntil time.Time
}

// NewTokenBucket creates a bucket that starts full.
func NewTokenBucket(capacity float64, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		capacity: capacity,
		rate:     ratePerSecond,
		tokens:   capacity,
		last:     time.Now(),
	}
}

// refill tops up tokens for the elapsed interval. Caller holds mu.
func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now
}

// reserve takes n tokens if available, otherwise returns how long to wait
// before retrying. During a penalty window nothing is issued.
func (b *TokenBucket) reserve(n float64) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.Before(b.deadUntil) {
		return b.deadUntil.Sub(now), false
	}

	b.refill(now)
	if b.tokens >= n {
		b.tokens -= n
		return 0, true
	}
	deficit := n - b.tokens
	return time.Duration(deficit / b.rate * float64(time.Second)), false
}

// Wait blocks until one token is available or the context is cancelled.
func (b *TokenBucket) Wait(ctx context.Context) error {
	return b.WaitN(ctx, 1)
}

// WaitN blocks until n tokens are available or the context is cancelled.
// Concurrent waiters race on wake-up, so grant order across goroutines is
// approximate rather than strict FIFO; the collectors only need the
// aggregate rate bound.
func (b *TokenBucket) WaitN(ctx context.Context, n int) error {
	for {
		wait, ok := b.reserve(float64(n))
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Penalize opens a dead interval during which no tokens are issued,
// regardless of the fill level. Used when the venue answers 429 with a
// Retry-After header. A shorter penalty never trims a longer one already
// in effect.
func (b *TokenBucket) Penalize(d time.Duration) {
	if d <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(b.deadUntil) {
		b.deadUntil = until
	}
}

// Buckets holds one limiter per venue rate-limit class. The trading class
// exists for parity with the venue's published limits; this process only
// reads.
type Buckets struct {
	Gamma    *TokenBucket
	ClobRead *TokenBucket
	Trading  *TokenBucket
}

// NewBuckets returns limiters sized to the venue's published limits.
func NewBuckets() *Buckets {
	return &Buckets{
		Gamma:    NewTokenBucket(200, 20),
		ClobRead: NewTokenBucket(1000, 100),
		Trading:  NewTokenBucket(400, 40),
	}
}
