package ratelimiter

import "github.com/prometheus/client_golang/prometheus"

const (
	decisionAllowed  = "allowed"
	decisionDenied   = "denied"
	decisionDegraded = "degraded"
	decisionRejected = "rejected"
)

type Metrics struct {
	decisions     *prometheus.CounterVec
	backendErrors *prometheus.CounterVec
}

// NewMetrics registers the limiter collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "picforge",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by policy and outcome.",
		}, []string{"policy", "decision"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "picforge",
			Subsystem: "ratelimit",
			Name:      "backend_errors_total",
			Help:      "Rate limit backend failures by policy.",
		}, []string{"policy"}),
	}

	for _, c := range []prometheus.Collector{m.decisions, m.backendErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeDecision(policy, decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(policy, decision).Inc()
}

func (m *Metrics) observeBackendError(policy string) {
	if m == nil {
		return
	}
	m.backendErrors.WithLabelValues(policy).Inc()
}
