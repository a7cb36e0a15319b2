// Package plan provides plan value types and pure functions.
package plan

import "github.com/leadline/leadline/domain/quota"

// Plan represents a pricing tier (immutable value type).
type Plan struct {
	ID            string
	ContactDaily  int // Contact-form submissions per UTC day
	ChatPerMinute int // Chat turns per clock minute
}

// DefaultID is the tier assigned to users with no or an unknown plan.
const DefaultID = "free"

// Defaults is the built-in tier table. Deployments may override it from
// configuration; the IDs are stable.
func Defaults() []Plan {
	return []Plan{
		{ID: "free", ContactDaily: 6, ChatPerMinute: 20},
		{ID: "pro", ContactDaily: 50, ChatPerMinute: 500},
		{ID: "biz", ContactDaily: 500, ChatPerMinute: 5000},
	}
}

// Find returns the plan with the given ID.
// This is a PURE function.
func Find(plans []Plan, id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// Resolve returns the plan for id, falling back to the default tier for an
// unknown or empty id so a missing plan label throttles rather than rejects.
func Resolve(plans []Plan, id string) Plan {
	if p, ok := Find(plans, id); ok {
		return p
	}
	p, _ := Find(plans, DefaultID)
	return p
}

// Limit returns the ceiling this plan grants for a quota kind.
// This is a PURE function.
func Limit(p Plan, kind quota.Kind) int {
	switch kind {
	case quota.KindChatPerMinute:
		return p.ChatPerMinute
	default:
		return p.ContactDaily
	}
}
