package zauth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the handler's prometheus instruments
type Metrics struct {
	// Requests counts decided authentication requests by status code
	Requests *prometheus.CounterVec

	// ProtocolErrors counts malformed or version-mismatched requests
	ProtocolErrors prometheus.Counter
}

// NewMetrics registers the handler metrics with the given registerer.
// Pass nil for the default registerer; pass a fresh registry in tests
// to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zauth",
			Name:      "requests_total",
			Help:      "Authentication requests decided, by ZAP status code.",
		}, []string{"status"}),
		ProtocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "zauth",
			Name:      "protocol_errors_total",
			Help:      "Requests rejected before validation: bad framing or version.",
		}),
	}
}
