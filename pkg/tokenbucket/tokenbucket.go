// Package tokenbucket implements the rate limiter gating READ_DATA
// delivery (spec.md §4.7): a thread-safe, continuously-refilling
// token bucket keyed on a monotonic clock.
package tokenbucket

import (
	"sync"
	"time"
)

// MinRate is the minimum allowed rate, per spec.md §4.7.
const MinRate = 64000

// Bucket is a thread-safe token bucket. Tokens refill continuously
// based on time elapsed since the last refill, which both Take and
// WaitDuration perform.
type Bucket struct {
	mu        sync.Mutex
	rate      float64 // tokens/s
	capacity  float64
	tokens    float64
	timestamp time.Time
}

// New creates a Bucket with the given rate (tokens/s, floored to
// MinRate) and capacity (burst size; 0 defaults to rate).
func New(rate, capacity float64) *Bucket {
	if rate < MinRate {
		rate = MinRate
	}
	if capacity <= 0 {
		capacity = rate
	}
	return &Bucket{
		rate:      rate,
		capacity:  capacity,
		tokens:    capacity,
		timestamp: time.Now(),
	}
}

// Take attempts to deduct n tokens, refilling first. Returns true and
// deducts on success; returns false and leaves state unchanged if
// insufficient tokens are available.
func (b *Bucket) Take(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// WaitDuration returns how long the caller must wait before n tokens
// will be available, refilling first. Returns 0 if n is already
// available.
func (b *Bucket) WaitDuration(n float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= n {
		return 0
	}
	deficit := n - b.tokens
	seconds := deficit / b.rate
	return time.Duration(seconds * float64(time.Second))
}

func (b *Bucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(b.timestamp).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.timestamp = now
}
