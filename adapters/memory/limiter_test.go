package memory_test

import (
	"sync"
	"testing"
	"time"

	"github.com/leadline/leadline/adapters/clock"
	"github.com/leadline/leadline/adapters/memory"
	"github.com/leadline/leadline/domain/ratelimit"
)

var start = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newLimiter(ratePerMin, burst float64) (*memory.Limiter, *clock.Fake) {
	clk := clock.NewFake(start)
	return memory.NewLimiter(ratelimit.Config{RatePerMinute: ratePerMin, Burst: burst}, clk), clk
}

func TestLimiter_TokenConservation(t *testing.T) {
	l, _ := newLimiter(12, 6)

	for i := 0; i < 6; i++ {
		if d := l.Allow("1.2.3.4"); !d.OK {
			t.Fatalf("call %d: rejected, want allowed", i+1)
		}
	}
	if d := l.Allow("1.2.3.4"); d.OK {
		t.Fatal("call 7: allowed, want rejected")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newLimiter(12, 2)

	l.Allow("a")
	l.Allow("a")
	if d := l.Allow("a"); d.OK {
		t.Fatal("exhausted key: allowed")
	}
	if d := l.Allow("b"); !d.OK {
		t.Fatal("fresh key throttled by sibling's usage")
	}
}

func TestLimiter_RefillMonotonicity(t *testing.T) {
	l, clk := newLimiter(12, 2)

	l.Allow("k")
	l.Allow("k")
	d := l.Allow("k")
	if d.OK {
		t.Fatal("want rejection")
	}

	clk.Advance(time.Duration(d.RetryAfter) * time.Second)
	if d := l.Allow("k"); !d.OK {
		t.Errorf("after advancing %ds: rejected, want allowed", d.RetryAfter)
	}
}

func TestLimiter_ConcurrentAllowCountsExactly(t *testing.T) {
	l, _ := newLimiter(0, 100)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("shared").OK
		}()
	}
	wg.Wait()
	close(allowed)

	got := 0
	for ok := range allowed {
		if ok {
			got++
		}
	}
	if got != 100 {
		t.Errorf("allowed %d of 200 with burst 100, want exactly 100", got)
	}
}

func TestLimiter_SweepEvictsOnlySaturatedKeys(t *testing.T) {
	l, clk := newLimiter(12, 6)

	for i := 0; i < 6; i++ {
		l.Allow("drained")
	}
	l.Allow("fresh")

	// Too soon: "drained" has earned nothing back yet.
	if n := l.Sweep(); n != 0 {
		t.Fatalf("evicted %d buckets immediately, want 0", n)
	}

	// After 30s "drained" has earned 6 tokens (full burst); "fresh" sits at
	// burst-1 before refill but also saturates. Both are now equivalent to
	// unseen keys.
	clk.Advance(30 * time.Second)
	if n := l.Sweep(); n != 2 {
		t.Fatalf("evicted %d buckets, want 2", n)
	}
	if l.Len() != 0 {
		t.Errorf("len = %d, want 0", l.Len())
	}

	// Eviction must not hand back unearned tokens: a re-seeded key gets the
	// same allowance a refilled bucket would have had.
	for i := 0; i < 6; i++ {
		if d := l.Allow("drained"); !d.OK {
			t.Fatalf("post-evict call %d: rejected", i+1)
		}
	}
	if d := l.Allow("drained"); d.OK {
		t.Fatal("post-evict call 7: allowed, want rejected")
	}
}

func TestLimiter_SweepKeepsPartialBuckets(t *testing.T) {
	l, clk := newLimiter(12, 6)

	for i := 0; i < 6; i++ {
		l.Allow("k")
	}
	clk.Advance(10 * time.Second) // Earned 2 of 6 back.

	if n := l.Sweep(); n != 0 {
		t.Fatalf("evicted %d partially refilled buckets, want 0", n)
	}

	// 2 earned tokens, not a fresh burst.
	l.Allow("k")
	l.Allow("k")
	if d := l.Allow("k"); d.OK {
		t.Fatal("partially refilled key regained unearned tokens")
	}
}

func TestLimiter_SetConfig(t *testing.T) {
	l, _ := newLimiter(12, 1)

	l.Allow("k")
	if d := l.Allow("k"); d.OK {
		t.Fatal("burst 1 exhausted, want rejection")
	}

	l.SetConfig(ratelimit.Config{RatePerMinute: 6000, Burst: 1})
	if got := l.Config().RatePerMinute; got != 6000 {
		t.Errorf("ratePerMinute = %v, want 6000", got)
	}
}

func TestRegistry_IsolatedInstances(t *testing.T) {
	r := memory.NewRegistry(memory.RegistryConfig{})
	defer r.Close()

	clk := clock.NewFake(start)
	contact := r.Register("contact", ratelimit.Config{RatePerMinute: 12, Burst: 1}, clk)
	chat := r.Register("chat", ratelimit.Config{RatePerMinute: 30, Burst: 10}, clk)

	contact.Allow("ip")
	if d := contact.Allow("ip"); d.OK {
		t.Fatal("contact limiter should be exhausted")
	}
	// Same key, different concern: unaffected.
	if d := chat.Allow("ip"); !d.OK {
		t.Fatal("chat limiter shares bucket storage with contact limiter")
	}

	if r.Get("contact") != contact {
		t.Error("Get returned a different limiter")
	}
	if r.Get("nope") != nil {
		t.Error("Get for unregistered name should be nil")
	}
}

func TestRegistry_SweepAll(t *testing.T) {
	r := memory.NewRegistry(memory.RegistryConfig{SweepInterval: time.Hour})
	defer r.Close()

	clk := clock.NewFake(start)
	a := r.Register("a", ratelimit.Config{RatePerMinute: 60, Burst: 2}, clk)
	b := r.Register("b", ratelimit.Config{RatePerMinute: 60, Burst: 2}, clk)
	a.Allow("x")
	b.Allow("y")

	clk.Advance(5 * time.Second)
	if n := r.SweepAll(); n != 2 {
		t.Errorf("swept %d, want 2", n)
	}
}
