package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/leadline/leadline/ports"
)

const (
	maxLatencySamples = 500
	maxErrorEntries   = 50
	maxErrorLen       = 200
	topRouteCount     = 5
)

// LatencySample is one completed request.
type LatencySample struct {
	At     time.Time `json:"ts"`
	Method string    `json:"method"`
	Path   string    `json:"path"`
	Status int       `json:"status"`
	Millis float64   `json:"ms"`
}

// ErrorEntry is one recorded failure message.
type ErrorEntry struct {
	At  time.Time `json:"ts"`
	Msg string    `json:"msg"`
}

// RouteStat summarizes one route's samples.
type RouteStat struct {
	Route string  `json:"route"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	P95   float64 `json:"p95"`
}

// Snapshot is the owner-console statistics view.
type Snapshot struct {
	Counters map[string]int64 `json:"counters"`
	Latency  struct {
		Avg     float64 `json:"avg"`
		P95     float64 `json:"p95"`
		Samples int     `json:"samples"`
	} `json:"latency"`
	Traffic struct {
		Last5Min  int `json:"last5min"`
		Last15Min int `json:"last15min"`
	} `json:"traffic"`
	TopRoutes []RouteStat  `json:"topRoutes"`
	Errors    []ErrorEntry `json:"errors"`
}

// Rings holds the bounded in-memory sampling rings: a latency ring of the
// last 500 requests and an error ring of the last 50 failures. Old entries
// are dropped from the front as new ones arrive.
type Rings struct {
	clock ports.Clock

	mu       sync.Mutex
	latency  []LatencySample
	errors   []ErrorEntry
	counters map[string]int64
}

// NewRings creates empty rings.
func NewRings(clk ports.Clock) *Rings {
	return &Rings{
		clock:    clk,
		counters: make(map[string]int64),
	}
}

// RecordLatency adds one request sample.
func (r *Rings) RecordLatency(method, path string, status int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.latency = append(r.latency, LatencySample{
		At:     r.clock.Now(),
		Method: method,
		Path:   path,
		Status: status,
		Millis: float64(elapsed.Microseconds()) / 1000,
	})
	if len(r.latency) > maxLatencySamples {
		r.latency = r.latency[len(r.latency)-maxLatencySamples:]
	}
}

// RecordError adds one failure message, truncated so stray secrets or PII in
// wrapped errors cannot leak in full into the console feed.
func (r *Rings) RecordError(msg string) {
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, ErrorEntry{At: r.clock.Now(), Msg: msg})
	if len(r.errors) > maxErrorEntries {
		r.errors = r.errors[len(r.errors)-maxErrorEntries:]
	}
}

// IncCounter bumps a named counter (chat turns, emails sent, and so on).
func (r *Rings) IncCounter(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name]++
}

// Stats builds a point-in-time snapshot.
func (r *Rings) Stats() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	snap := Snapshot{Counters: make(map[string]int64, len(r.counters))}
	for k, v := range r.counters {
		snap.Counters[k] = v
	}

	millis := make([]float64, len(r.latency))
	byRoute := make(map[string][]float64)
	for i, s := range r.latency {
		millis[i] = s.Millis
		route := s.Method + " " + s.Path
		byRoute[route] = append(byRoute[route], s.Millis)

		age := now.Sub(s.At)
		if age < 5*time.Minute {
			snap.Traffic.Last5Min++
		}
		if age < 15*time.Minute {
			snap.Traffic.Last15Min++
		}
	}

	snap.Latency.Samples = len(millis)
	snap.Latency.Avg = mean(millis)
	snap.Latency.P95 = p95(millis)

	for route, samples := range byRoute {
		snap.TopRoutes = append(snap.TopRoutes, RouteStat{
			Route: route,
			Count: len(samples),
			Avg:   mean(samples),
			P95:   p95(samples),
		})
	}
	sort.Slice(snap.TopRoutes, func(i, j int) bool {
		if snap.TopRoutes[i].Count != snap.TopRoutes[j].Count {
			return snap.TopRoutes[i].Count > snap.TopRoutes[j].Count
		}
		return snap.TopRoutes[i].Route < snap.TopRoutes[j].Route
	})
	if len(snap.TopRoutes) > topRouteCount {
		snap.TopRoutes = snap.TopRoutes[:topRouteCount]
	}

	snap.Errors = append([]ErrorEntry(nil), r.errors...)
	return snap
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func p95(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
