// Package metrics provides Prometheus metrics and the in-memory stats rings
// feeding the owner console.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for LeadLine.
type Collector struct {
	Registry *prometheus.Registry

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Guard metrics
	GuardRejections *prometheus.CounterVec
	CooldownsSet    prometheus.Counter
	QuotaRejections *prometheus.CounterVec

	// Store metrics
	StoreWriteErrors *prometheus.CounterVec
}

// New creates a collector with its own registry, so tests can build
// isolated instances without duplicate-registration panics.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		Registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "leadline",
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "leadline",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),

		GuardRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "leadline",
				Name:      "guard_rejections_total",
				Help:      "Requests rejected before reaching their handler",
			},
			[]string{"guard", "reason"},
		),
		CooldownsSet: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "leadline",
				Name:      "cooldowns_set_total",
				Help:      "Rate-limit rejections escalated into cooldowns",
			},
		),
		QuotaRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "leadline",
				Name:      "quota_rejections_total",
				Help:      "Hits rejected by the quota ledger",
			},
			[]string{"kind", "plan"},
		),

		StoreWriteErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "leadline",
				Name:      "store_write_errors_total",
				Help:      "Failed durable store mutations",
			},
			[]string{"store"},
		),
	}
}
