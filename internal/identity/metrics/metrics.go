package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module: bootstrap and
// promotion volumes plus critical path durations.
type Metrics struct {
	VisitorsResolved prometheus.Counter
	VisitorsCreated  prometheus.Counter
	Promotions       prometheus.Counter
	PromoteConflicts *prometheus.CounterVec
	ResolveDuration  prometheus.Histogram
	PromoteDuration  prometheus.Histogram
}

// New creates a Metrics instance with all identity module metrics registered.
func New() *Metrics {
	return &Metrics{
		VisitorsResolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "visitid_visitors_resolved_total",
			Help: "Total visitor resolutions that matched an existing record",
		}),
		VisitorsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "visitid_visitors_created_total",
			Help: "Total fresh anonymous identities created",
		}),
		Promotions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "visitid_promotions_total",
			Help: "Total successful visitor-to-user promotions",
		}),
		PromoteConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "visitid_promote_conflicts_total",
			Help: "Promotions rejected by a uniqueness conflict, by attribute",
		}, []string{"attribute"}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "visitid_resolve_visitor_duration_seconds",
			Help:    "Duration of ResolveVisitor operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		PromoteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "visitid_promote_duration_seconds",
			Help:    "Duration of Promote operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveResolve records the duration of a ResolveVisitor operation. Call
// with time.Now() captured at the start of the operation.
func (m *Metrics) ObserveResolve(start time.Time) {
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}

// ObservePromote records the duration of a Promote operation.
func (m *Metrics) ObservePromote(start time.Time) {
	m.PromoteDuration.Observe(time.Since(start).Seconds())
}

// IncPromoteConflict records a promotion rejected on the given attribute.
func (m *Metrics) IncPromoteConflict(attribute string) {
	m.PromoteConflicts.WithLabelValues(attribute).Inc()
}
