package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the domain counters of the reputation service.
type Metrics struct {
	submitted  *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	recompute  prometheus.Histogram
	moderation *prometheus.CounterVec
}

// NewMetrics registers the domain metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reputation_evaluations_submitted_total",
			Help: "Evaluations stored, by kind",
		}, []string{"kind"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reputation_evaluation_rejections_total",
			Help: "Submissions refused by the eligibility gate, by reason",
		}, []string{"reason"}),
		recompute: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reputation_summary_recompute_seconds",
			Help:    "Duration of transactions that recompute a user summary",
			Buckets: prometheus.DefBuckets,
		}),
		moderation: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reputation_moderation_increments_total",
			Help: "Review moderation counter increments, by counter",
		}, []string{"counter"}),
	}
}

// The helpers below tolerate a nil *Metrics so tests can skip registration.

func (m *Metrics) evaluationSubmitted(kind string) {
	if m != nil {
		m.submitted.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) evaluationRejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) summaryRecomputed(d time.Duration) {
	if m != nil {
		m.recompute.Observe(d.Seconds())
	}
}

func (m *Metrics) moderationIncremented(counter string) {
	if m != nil {
		m.moderation.WithLabelValues(counter).Inc()
	}
}
