package memory

import (
	"sync"
	"time"

	"github.com/leadline/leadline/ports"
)

// SessionIntervals remembers the last admitted action per session for the
// minimum-interval debounce in the narrow guards.
type SessionIntervals struct {
	clock ports.Clock

	mu   sync.Mutex
	last map[string]time.Time
}

// NewSessionIntervals creates an empty tracker.
func NewSessionIntervals(clk ports.Clock) *SessionIntervals {
	return &SessionIntervals{
		clock: clk,
		last:  make(map[string]time.Time),
	}
}

// Since returns the elapsed time since the session's last recorded action.
func (s *SessionIntervals) Since(sessionID string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.last[sessionID]
	if !ok {
		return 0, false
	}
	return s.clock.Now().Sub(at), true
}

// Touch records now as the session's last action.
func (s *SessionIntervals) Touch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[sessionID] = s.clock.Now()
}

// Ensure interface compliance.
var _ ports.SessionIntervals = (*SessionIntervals)(nil)
