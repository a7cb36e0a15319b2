package memory

import (
	"sync"
	"time"

	"github.com/leadline/leadline/ports"
)

// CooldownTracker records timed hard blocks per key. A global-limiter
// rejection escalates into a cooldown so a clearly abusive client is turned
// away before the limiter is evaluated again.
type CooldownTracker struct {
	clock ports.Clock

	mu       sync.Mutex
	duration time.Duration
	until    map[string]time.Time
}

// NewCooldownTracker creates a tracker applying blocks of the given duration.
func NewCooldownTracker(duration time.Duration, clk ports.Clock) *CooldownTracker {
	return &CooldownTracker{
		clock:    clk,
		duration: duration,
		until:    make(map[string]time.Time),
	}
}

// IsInCooldown reports whether key is blocked. Expired entries are removed
// on access rather than by a background timer.
func (c *CooldownTracker) IsInCooldown(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, ok := c.until[key]
	if !ok {
		return false
	}
	if c.clock.Now().Before(expiry) {
		return true
	}
	delete(c.until, key)
	return false
}

// SetCooldown blocks key until now + duration, overwriting any prior expiry.
// Repeated rejections do not stack.
func (c *CooldownTracker) SetCooldown(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[key] = c.clock.Now().Add(c.duration)
}

// SetDuration changes the block length for cooldowns set from now on.
// Already-running cooldowns keep their original expiry.
func (c *CooldownTracker) SetDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = d
}

// Duration returns the configured block length.
func (c *CooldownTracker) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// Len returns the number of tracked keys, expired or not (for tests).
func (c *CooldownTracker) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.until)
}

// Ensure interface compliance.
var _ ports.CooldownTracker = (*CooldownTracker)(nil)
