package router

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Latency  *prometheus.HistogramVec
	Outcomes *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "riskgate_agent_latency_seconds",
			Help:    "Per-capability evaluation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent"}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riskgate_agent_signals_total",
			Help: "Capability results by agent and status.",
		}, []string{"agent", "status"}),
	}
}

func (m *Metrics) observe(agent string, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Latency.WithLabelValues(agent).Observe(elapsed.Seconds())
	m.Outcomes.WithLabelValues(agent, status).Inc()
}
