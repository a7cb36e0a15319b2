package app

import (
	"context"

	"github.com/leadline/leadline/adapters/metrics"
	"github.com/leadline/leadline/domain/plan"
	"github.com/leadline/leadline/domain/quota"
	"github.com/leadline/leadline/ports"
	"github.com/rs/zerolog"
)

// QuotaService enforces plan-scoped usage ceilings for authenticated
// mutation endpoints.
type QuotaService struct {
	quotas ports.QuotaStore
	plans  []plan.Plan
	log    zerolog.Logger
	m      *metrics.Collector
	rings  *metrics.Rings

	// failOpen controls the policy when the quota store itself fails:
	// true (the default) admits the hit so an unavailable store cannot
	// block the product outright; false rejects with ErrQuotaUnavailable.
	failOpen bool
}

// QuotaDeps contains dependencies for QuotaService.
type QuotaDeps struct {
	Quotas  ports.QuotaStore
	Plans   []plan.Plan
	Logger  zerolog.Logger
	Metrics *metrics.Collector // May be nil
	Rings   *metrics.Rings     // May be nil
}

// NewQuotaService creates a quota service.
func NewQuotaService(deps QuotaDeps, failOpen bool) *QuotaService {
	plans := deps.Plans
	if len(plans) == 0 {
		plans = plan.Defaults()
	}
	return &QuotaService{
		quotas:   deps.Quotas,
		plans:    plans,
		log:      deps.Logger,
		m:        deps.Metrics,
		rings:    deps.Rings,
		failOpen: failOpen,
	}
}

// ErrQuotaUnavailable is returned in fail-closed mode when the quota store
// cannot be reached; the HTTP layer maps it to 503, not 429.
var ErrQuotaUnavailable = errQuotaUnavailable{}

type errQuotaUnavailable struct{}

func (errQuotaUnavailable) Error() string { return "quota store unavailable" }

// Hit records one metered operation for the user and reports whether it is
// within the user's plan ceiling. An unknown plan label meters at the
// default tier.
func (s *QuotaService) Hit(ctx context.Context, u ports.User, kind quota.Kind) (quota.Decision, error) {
	p := plan.Resolve(s.plans, u.Plan)
	limit := plan.Limit(p, kind)

	d, err := s.quotas.RecordHit(ctx, u.ID, kind, limit)
	if err != nil {
		s.log.Error().Err(err).Str("user", u.ID).Str("kind", string(kind)).
			Bool("fail_open", s.failOpen).Msg("quota store failure")
		if s.m != nil {
			s.m.StoreWriteErrors.WithLabelValues("quotas").Inc()
		}
		if s.rings != nil {
			s.rings.RecordError("quota_store_error:" + err.Error())
		}
		if s.failOpen {
			return quota.Decision{Allowed: true}, nil
		}
		return quota.Decision{}, ErrQuotaUnavailable
	}

	if !d.Allowed && s.m != nil {
		s.m.QuotaRejections.WithLabelValues(string(kind), p.ID).Inc()
	}
	return d, nil
}
