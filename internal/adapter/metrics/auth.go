package metrics

import "github.com/prometheus/client_golang/prometheus"

// AuthMetrics counts token verification outcomes.
type AuthMetrics struct {
	Verifications *prometheus.CounterVec
}

// NewAuthMetrics creates and registers auth metrics on reg.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "verifications_total",
			Help:      "Total number of token verifications, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Verifications)
	return m
}
