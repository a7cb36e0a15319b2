// Package quota provides pure functions for plan-scoped usage accounting.
// Counters accumulate over a calendar/clock period (UTC day or minute) and
// reset at the boundary, unlike the sliding token buckets in domain/ratelimit.
// All functions are deterministic with no side effects.
package quota

import (
	"strconv"
	"time"
)

// Kind identifies a metered operation and its period granularity.
type Kind string

const (
	KindContactDaily  Kind = "contact_daily"
	KindChatPerMinute Kind = "chat_per_minute"
)

// Decision represents the outcome of a quota check (value type).
type Decision struct {
	Allowed    bool
	RetryAfter int // Seconds until the next period boundary; 0 when allowed
}

// Record holds one user's counters, one map per kind. Only the current
// period's entry is retained per kind; stale periods are pruned on apply.
type Record struct {
	Contact map[string]int `json:"contact"`
	Chat    map[string]int `json:"chat"`
}

// NewRecord returns an empty record with allocated counter maps.
func NewRecord() Record {
	return Record{Contact: map[string]int{}, Chat: map[string]int{}}
}

// PeriodKey returns the storage key for the period containing now:
// the UTC date for daily kinds, the minute bucket number for per-minute kinds.
func PeriodKey(kind Kind, now time.Time) string {
	switch kind {
	case KindChatPerMinute:
		return strconv.FormatInt(now.UnixMilli()/60000, 10)
	default:
		return now.UTC().Format("2006-01-02")
	}
}

// NextBoundary returns when the period containing now ends: the next UTC
// midnight for daily kinds, the top of the next minute for per-minute kinds.
func NextBoundary(kind Kind, now time.Time) time.Time {
	switch kind {
	case KindChatPerMinute:
		return now.Truncate(time.Minute).Add(time.Minute)
	default:
		u := now.UTC()
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}
}

// RetryAfter returns whole seconds until the next period boundary, at least 1.
func RetryAfter(kind Kind, now time.Time) int {
	secs := int((NextBoundary(kind, now).Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Apply prunes stale periods for kind, then checks the counter against limit.
// Within the limit it increments; at or over it leaves the record unchanged.
// This is a PURE function - the caller persists the returned record (and must
// do so under the store's write lock for the increment to be race-free).
func Apply(rec Record, kind Kind, limit int, now time.Time) (Decision, Record) {
	counters := countersFor(&rec, kind)
	key := PeriodKey(kind, now)

	for k := range counters {
		if k != key {
			delete(counters, k)
		}
	}

	if counters[key] >= limit {
		return Decision{Allowed: false, RetryAfter: RetryAfter(kind, now)}, rec
	}

	counters[key]++
	return Decision{Allowed: true}, rec
}

// Count returns the stored counter for the period containing now.
func Count(rec Record, kind Kind, now time.Time) int {
	return countersFor(&rec, kind)[PeriodKey(kind, now)]
}

// countersFor returns the counter map for kind, allocating it if the record
// was decoded from a document missing that field.
func countersFor(rec *Record, kind Kind) map[string]int {
	switch kind {
	case KindChatPerMinute:
		if rec.Chat == nil {
			rec.Chat = map[string]int{}
		}
		return rec.Chat
	default:
		if rec.Contact == nil {
			rec.Contact = map[string]int{}
		}
		return rec.Contact
	}
}
