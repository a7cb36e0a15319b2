// Package app provides application services that orchestrate domain logic.
package app

import (
	"math"
	"sync"
	"time"

	"github.com/leadline/leadline/adapters/metrics"
	"github.com/leadline/leadline/ports"
	"github.com/rs/zerolog"
)

// Guard outcome reasons, surfaced in rejection bodies.
const (
	ReasonForbidden   = "forbidden"
	ReasonRateLimited = "rate_limited"
)

// Outcome is a guard's admission decision. Rejections are normal control
// flow, never errors.
type Outcome struct {
	Allowed    bool
	Status     int    // HTTP status for rejections (403 or 429)
	Reason     string // Machine-readable rejection reason
	RetryAfter int    // Seconds; 0 when not applicable
}

var admitted = Outcome{Allowed: true}

// GuardService composes IP filtering, cooldowns and the per-concern rate
// limiters into the request-admission policies.
type GuardService struct {
	log zerolog.Logger
	m   *metrics.Collector

	cooldowns ports.CooldownTracker

	global  ports.Limiter
	contact ports.Limiter
	chat    ports.Limiter
	login   ports.Limiter
	signup  ports.Limiter

	sessions ports.SessionIntervals

	// Policy fields can be replaced at runtime via SetPolicy.
	mu                 sync.RWMutex
	allowlist          map[string]struct{}
	denylist           map[string]struct{}
	cooldownHint       int // Retry hint for requests arriving during a cooldown
	contactMinInterval time.Duration
	chatMinInterval    time.Duration
}

// GuardDeps contains dependencies for GuardService.
type GuardDeps struct {
	Cooldowns ports.CooldownTracker
	Global    ports.Limiter
	Contact   ports.Limiter
	Chat      ports.Limiter
	Login     ports.Limiter
	Signup    ports.Limiter
	Sessions  ports.SessionIntervals
	Logger    zerolog.Logger
	Metrics   *metrics.Collector // May be nil
}

// GuardConfig contains policy knobs for GuardService.
type GuardConfig struct {
	Allowlist          []string // Empty = every IP allowed (minus denylist)
	Denylist           []string
	CooldownSeconds    int
	ContactMinInterval time.Duration
	ChatMinInterval    time.Duration
}

// NewGuardService creates a guard service.
func NewGuardService(deps GuardDeps, cfg GuardConfig) *GuardService {
	g := &GuardService{
		log:       deps.Logger,
		m:         deps.Metrics,
		cooldowns: deps.Cooldowns,
		global:    deps.Global,
		contact:   deps.Contact,
		chat:      deps.Chat,
		login:     deps.Login,
		signup:    deps.Signup,
		sessions:  deps.Sessions,
	}
	g.SetPolicy(cfg)
	return g
}

// SetPolicy replaces the mutable guard policy: IP allow/deny lists, the
// cooldown retry hint and the session min-intervals. Limiter instances and
// trackers are not touched; in-flight cooldowns and session timestamps
// survive a policy change.
func (g *GuardService) SetPolicy(cfg GuardConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowlist = toSet(cfg.Allowlist)
	g.denylist = toSet(cfg.Denylist)
	g.cooldownHint = cfg.CooldownSeconds
	g.contactMinInterval = cfg.ContactMinInterval
	g.chatMinInterval = cfg.ChatMinInterval
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// IPAllowed applies the denylist, then the allowlist (when non-empty).
func (g *GuardService) IPAllowed(ip string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, denied := g.denylist[ip]; denied {
		return false
	}
	if len(g.allowlist) > 0 {
		_, ok := g.allowlist[ip]
		return ok
	}
	return true
}

func (g *GuardService) policy() (cooldownHint int, contactMin, chatMin time.Duration) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cooldownHint, g.contactMinInterval, g.chatMinInterval
}

// CheckGlobal is the outermost guard: IP filter, then cooldown, then the
// global limiter. A limiter rejection escalates into a cooldown so the
// key is turned away before the limiter on its next attempts.
func (g *GuardService) CheckGlobal(ip string) Outcome {
	if !g.IPAllowed(ip) {
		g.reject("global", ReasonForbidden)
		return Outcome{Status: 403, Reason: ReasonForbidden}
	}

	if g.cooldowns.IsInCooldown(ip) {
		hint, _, _ := g.policy()
		g.reject("global", ReasonRateLimited)
		return Outcome{Status: 429, Reason: ReasonRateLimited, RetryAfter: hint}
	}

	d := g.global.Allow(ip)
	if !d.OK {
		g.cooldowns.SetCooldown(ip)
		if g.m != nil {
			g.m.CooldownsSet.Inc()
		}
		g.log.Warn().Str("ip", ip).Int("retry_after", d.RetryAfter).
			Msg("global rate limit exceeded, cooldown set")
		g.reject("global", ReasonRateLimited)
		return Outcome{Status: 429, Reason: ReasonRateLimited, RetryAfter: d.RetryAfter}
	}
	return admitted
}

// CheckContact admits a contact-form submission: session debounce first,
// then the contact limiter. The session timestamp moves only on success.
func (g *GuardService) CheckContact(ip, sessionID string) Outcome {
	_, contactMin, _ := g.policy()
	return g.checkNarrow("contact", g.contact, ip, sessionID, contactMin)
}

// CheckChat admits a chat turn.
func (g *GuardService) CheckChat(ip, sessionID string) Outcome {
	_, _, chatMin := g.policy()
	return g.checkNarrow("chat", g.chat, ip, sessionID, chatMin)
}

// CheckLogin admits a login attempt (limiter only, keyed by IP).
func (g *GuardService) CheckLogin(ip string) Outcome {
	return g.checkLimiter("login", g.login, ip)
}

// CheckSignup admits a signup attempt (limiter only, keyed by IP).
func (g *GuardService) CheckSignup(ip string) Outcome {
	return g.checkLimiter("signup", g.signup, ip)
}

func (g *GuardService) checkNarrow(name string, limiter ports.Limiter, ip, sessionID string, minInterval time.Duration) Outcome {
	sessionKey := name + ":" + sessionID
	if sessionID != "" && minInterval > 0 {
		if elapsed, ok := g.sessions.Since(sessionKey); ok && elapsed < minInterval {
			g.reject(name, ReasonRateLimited)
			return Outcome{
				Status:     429,
				Reason:     ReasonRateLimited,
				RetryAfter: ceilSeconds(minInterval - elapsed),
			}
		}
	}

	out := g.checkLimiter(name, limiter, ip)
	if out.Allowed && sessionID != "" {
		g.sessions.Touch(sessionKey)
	}
	return out
}

func (g *GuardService) checkLimiter(name string, limiter ports.Limiter, ip string) Outcome {
	d := limiter.Allow(ip)
	if !d.OK {
		g.reject(name, ReasonRateLimited)
		return Outcome{Status: 429, Reason: ReasonRateLimited, RetryAfter: d.RetryAfter}
	}
	return admitted
}

func (g *GuardService) reject(guard, reason string) {
	if g.m != nil {
		g.m.GuardRejections.WithLabelValues(guard, reason).Inc()
	}
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
