// Package memory provides in-memory implementations of the abuse-control
// ports. All state here is per-process and synchronous: nothing suspends
// between reading and writing a bucket, so one mutex per limiter is enough.
package memory

import (
	"sync"
	"time"

	"github.com/leadline/leadline/domain/ratelimit"
	"github.com/leadline/leadline/ports"
)

// Limiter is an in-memory token-bucket limiter for a single concern
// (global IP, contact form, chat, login, signup). Each instance owns its
// bucket map; concerns must not share one.
type Limiter struct {
	clock ports.Clock

	mu      sync.Mutex
	cfg     ratelimit.Config
	buckets map[string]ratelimit.Bucket
}

// NewLimiter creates a limiter with the given parameters.
func NewLimiter(cfg ratelimit.Config, clk ports.Clock) *Limiter {
	return &Limiter{
		clock:   clk,
		cfg:     cfg,
		buckets: make(map[string]ratelimit.Bucket),
	}
}

// Allow attempts to consume one token for key.
func (l *Limiter) Allow(key string) ratelimit.Decision {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = ratelimit.Seed(l.cfg, now)
		return ratelimit.Decision{OK: true}
	}

	d, next := ratelimit.Take(b, l.cfg, now)
	l.buckets[key] = next
	return d
}

// SetConfig swaps the limiter parameters. Existing buckets keep their earned
// tokens; the new burst cap applies from the next refill.
func (l *Limiter) SetConfig(cfg ratelimit.Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
}

// Config returns the current parameters.
func (l *Limiter) Config() ratelimit.Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Sweep evicts buckets that have earned back their full burst. An evicted
// key is indistinguishable from an unseen one, so active keys keep exactly
// the tokens they have earned. Returns the number of evicted buckets.
func (l *Limiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for k, b := range l.buckets {
		if ratelimit.Saturated(b, l.cfg, now) {
			delete(l.buckets, k)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked keys (for tests and stats).
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Ensure interface compliance.
var _ ports.Limiter = (*Limiter)(nil)

// Registry owns the process's limiter instances. It replaces the original
// module-level singletons so tests can build isolated registries without
// global reset logic.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter

	sweep *time.Ticker
	done  chan struct{}
	once  sync.Once
}

// RegistryConfig configures the limiter registry.
type RegistryConfig struct {
	SweepInterval time.Duration // How often idle buckets are evicted (default: 10m)
}

// NewRegistry creates a registry and starts its background sweep.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}

	r := &Registry{
		limiters: make(map[string]*Limiter),
		sweep:    time.NewTicker(cfg.SweepInterval),
		done:     make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Register creates (or replaces) the named limiter.
func (r *Registry) Register(name string, cfg ratelimit.Config, clk ports.Clock) *Limiter {
	l := NewLimiter(cfg, clk)
	r.mu.Lock()
	r.limiters[name] = l
	r.mu.Unlock()
	return l
}

// Get returns the named limiter, or nil when unregistered.
func (r *Registry) Get(name string) *Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[name]
}

// SweepAll evicts idle buckets across every registered limiter.
func (r *Registry) SweepAll() int {
	r.mu.RLock()
	limiters := make([]*Limiter, 0, len(r.limiters))
	for _, l := range r.limiters {
		limiters = append(limiters, l)
	}
	r.mu.RUnlock()

	total := 0
	for _, l := range limiters {
		total += l.Sweep()
	}
	return total
}

func (r *Registry) sweepLoop() {
	for {
		select {
		case <-r.sweep.C:
			r.SweepAll()
		case <-r.done:
			return
		}
	}
}

// Close stops the sweep goroutine.
func (r *Registry) Close() error {
	r.once.Do(func() {
		close(r.done)
		r.sweep.Stop()
	})
	return nil
}
