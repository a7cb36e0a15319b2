// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/leadline/leadline/domain/quota"
	"github.com/leadline/leadline/domain/ratelimit"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Abuse-Control Ports
// -----------------------------------------------------------------------------

// Limiter decides, per key, whether a request may proceed right now.
// Implementations are in-memory and synchronous: no call may suspend between
// reading and writing a bucket's token count.
type Limiter interface {
	Allow(key string) ratelimit.Decision
}

// CooldownTracker records timed hard blocks applied after limiter rejections.
// A key in cooldown is rejected before the limiter is even consulted.
type CooldownTracker interface {
	// IsInCooldown reports whether key is blocked; expired entries are
	// removed lazily on access.
	IsInCooldown(key string) bool

	// SetCooldown blocks key for the configured duration starting now,
	// overwriting any prior expiry.
	SetCooldown(key string)
}

// SessionIntervals tracks the last successful action per session for the
// cheap minimum-interval debounce applied before the narrow limiters.
type SessionIntervals interface {
	// Since returns the elapsed time since the session's last recorded
	// action, and whether one was recorded at all.
	Since(sessionID string) (time.Duration, bool)

	// Touch records now as the session's last action. Called only after
	// the guarded action is admitted.
	Touch(sessionID string)
}

// CaptchaVerifier checks a client-solved challenge token.
type CaptchaVerifier interface {
	// Verify returns true when the token is valid. A verifier that is not
	// configured passes everything.
	Verify(ctx context.Context, token, remoteIP string) bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// QuotaStore persists per-user quota counters and enforces plan ceilings.
type QuotaStore interface {
	// RecordHit prunes stale periods, checks the counter for kind against
	// limit and, when within it, increments and persists. The read-check-
	// increment cycle is atomic with respect to concurrent hits for the
	// same user. A rejection never increments.
	RecordHit(ctx context.Context, userID string, kind quota.Kind, limit int) (quota.Decision, error)

	// Count returns the stored counter for the current period (0 when no
	// record exists).
	Count(ctx context.Context, userID string, kind quota.Kind) (int, error)
}

// User represents a user account.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	PassHash  []byte    `json:"passHash,omitempty"`
	Role      string    `json:"role"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserStore persists user accounts. Username lookups are case-insensitive.
type UserStore interface {
	// GetByUsername retrieves a user by username. Returns ErrNotFound when
	// no such user exists.
	GetByUsername(ctx context.Context, username string) (User, error)

	// Create stores a new user. Returns ErrExists on a username collision.
	Create(ctx context.Context, u User) error

	// List returns all users with password hashes stripped.
	List(ctx context.Context) ([]User, error)

	// SetRole updates a user's role.
	SetRole(ctx context.Context, username, role string) error

	// SetPlan updates a user's plan tier.
	SetPlan(ctx context.Context, username, planID string) error

	// ResetPassword replaces a user's password hash.
	ResetPassword(ctx context.Context, username string, passHash []byte) error

	// Delete removes a user.
	Delete(ctx context.Context, username string) error
}

// Event is a captured lead event (a contact-form submission or call summary).
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventStore persists lead events.
type EventStore interface {
	// Append stores an event, discarding the oldest entries beyond the
	// retention cap.
	Append(ctx context.Context, e Event) error

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Message is one chat transcript entry.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"` // "visitor" or "assistant"
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageStore persists chat transcripts.
type MessageStore interface {
	Append(ctx context.Context, m Message) error
	BySession(ctx context.Context, sessionID string, limit int) ([]Message, error)
}

// PrefStore persists per-user preference maps.
type PrefStore interface {
	Get(ctx context.Context, userID string) (map[string]string, error)
	Set(ctx context.Context, userID, key, value string) error
}
