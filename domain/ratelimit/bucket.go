// Package ratelimit provides pure token-bucket rate limiting.
// All functions are deterministic - same input always produces same output.
package ratelimit

import (
	"math"
	"time"
)

// Bucket represents the token-bucket state for one key (value type).
type Bucket struct {
	Tokens     float64   // Available request credits, in [0, burst]
	LastRefill time.Time // When Tokens was last recomputed
}

// Decision represents the outcome of a limiter check (value type).
type Decision struct {
	OK         bool
	RetryAfter int // Seconds until a token will be available; 0 when OK
}

// Config holds token-bucket parameters (value type).
type Config struct {
	RatePerMinute float64 // Steady-state refill rate
	Burst         float64 // Maximum instantaneous credit
}

// refillPerMilli returns the refill rate in tokens per millisecond.
// A zero rate never refills: the bucket is burst-only.
func (c Config) refillPerMilli() float64 {
	return c.RatePerMinute / 60000
}

// Seed returns the bucket for a key's first request. The first request
// always succeeds and consumes one token, so the bucket starts at burst-1.
func Seed(cfg Config, now time.Time) Bucket {
	return Bucket{Tokens: cfg.Burst - 1, LastRefill: now}
}

// Take refills a bucket lazily and attempts to consume one token.
// This is a PURE function - no side effects.
//
// Returns the decision and the updated bucket (caller must persist).
func Take(b Bucket, cfg Config, now time.Time) (Decision, Bucket) {
	rate := cfg.refillPerMilli()

	elapsed := now.Sub(b.LastRefill)
	if elapsed > 0 {
		b.Tokens = math.Min(cfg.Burst, b.Tokens+float64(elapsed.Milliseconds())*rate)
	}
	b.LastRefill = now

	if b.Tokens >= 1 {
		b.Tokens--
		return Decision{OK: true}, b
	}

	if rate == 0 {
		// Never refills; the honest retry hint would be infinite.
		return Decision{OK: false, RetryAfter: math.MaxInt32}, b
	}

	needed := 1 - b.Tokens
	retryMs := needed / rate
	return Decision{OK: false, RetryAfter: int(math.Ceil(retryMs / 1000))}, b
}

// Saturated reports whether a bucket has earned back its full burst by now.
// Used by the registry sweep: a saturated bucket is indistinguishable from
// an unseen key, so it can be evicted without changing throttling behavior.
func Saturated(b Bucket, cfg Config, now time.Time) bool {
	if b.Tokens >= cfg.Burst {
		return true
	}
	rate := cfg.refillPerMilli()
	if rate == 0 {
		return false
	}
	elapsed := float64(now.Sub(b.LastRefill).Milliseconds())
	return b.Tokens+elapsed*rate >= cfg.Burst
}
