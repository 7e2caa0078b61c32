package gating

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcomes reported in metrics.
const (
	outcomeVerified          = "verified"
	outcomeNotMet            = "requirement_not_met"
	outcomeProviderError     = "provider_error"
	outcomeChallengeMismatch = "challenge_mismatch"
	outcomeRateLimited       = "rate_limited"
	outcomeRejected          = "rejected"
)

// Metrics contains Prometheus metrics for the gating service. A nil
// *Metrics records nothing.
type Metrics struct {
	verificationsTotal  *prometheus.CounterVec
	providerErrorsTotal *prometheus.CounterVec
	evaluationDuration  *prometheus.HistogramVec
	decisionsTotal      *prometheus.CounterVec
	challengesTotal     prometheus.Counter
	staleWritesTotal    prometheus.Counter

	collectors []prometheus.Collector
}

// NewMetrics creates gating metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		verificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gating_verifications_total",
				Help: "Verification submissions by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		providerErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gating_provider_errors_total",
				Help: "Evaluations that failed because a chain or profile provider was unavailable",
			},
			[]string{"category"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gating_evaluation_duration_seconds",
				Help:    "Time taken by verifier evaluations",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"category"},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gating_access_decisions_total",
				Help: "Access decisions by result",
			},
			[]string{"result"},
		),
		challengesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gating_challenges_issued_total",
			Help: "Challenges issued",
		}),
		staleWritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gating_stale_grant_writes_total",
			Help: "Verified grants not written because a fresher grant already existed",
		}),
	}
	m.collectors = []prometheus.Collector{
		m.verificationsTotal,
		m.providerErrorsTotal,
		m.evaluationDuration,
		m.decisionsTotal,
		m.challengesTotal,
		m.staleWritesTotal,
	}
	if registry != nil {
		if err := registry.Register(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

func (m *Metrics) recordVerification(category, outcome string) {
	if m == nil {
		return
	}
	m.verificationsTotal.WithLabelValues(category, outcome).Inc()
	if outcome == outcomeProviderError {
		m.providerErrorsTotal.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) observeEvaluation(category string, d time.Duration) {
	if m == nil {
		return
	}
	m.evaluationDuration.WithLabelValues(category).Observe(d.Seconds())
}

func (m *Metrics) recordDecision(granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.decisionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) recordChallenge() {
	if m == nil {
		return
	}
	m.challengesTotal.Inc()
}

func (m *Metrics) recordStaleWrite() {
	if m == nil {
		return
	}
	m.staleWritesTotal.Inc()
}
