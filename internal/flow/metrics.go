package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
	Latency   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riskgate_decisions_total",
			Help: "Concluded decisions by outcome.",
		}, []string{"outcome"}),
		Latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskgate_decision_latency_seconds",
			Help:    "End-to-end decision pipeline latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observe(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome).Inc()
	m.Latency.Observe(elapsed.Seconds())
}
