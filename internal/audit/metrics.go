package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit pipeline.
type Metrics struct {
	QueueDepth      prometheus.Gauge
	RecordsWritten  prometheus.Counter
	EnqueueFailures prometheus.Counter
	PersistRetries  prometheus.Counter
	PersistAlerts   prometheus.Counter
	VerifyFailures  prometheus.Counter
	FlushLatency    prometheus.Histogram
}

// NewMetrics registers all audit pipeline metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "riskgate_audit_queue_depth",
			Help: "Current number of decisions waiting for audit persistence",
		}),
		RecordsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "riskgate_audit_records_written_total",
			Help: "Total audit records persisted to the configured backends",
		}),
		EnqueueFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "riskgate_audit_enqueue_failures_total",
			Help: "Total audit appends rejected because the queue stayed full past the wait bound",
		}),
		PersistRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "riskgate_audit_persist_retries_total",
			Help: "Total retried audit batch persist attempts",
		}),
		PersistAlerts: factory.NewCounter(prometheus.CounterOpts{
			Name: "riskgate_audit_persist_alerts_total",
			Help: "Total operational alerts raised after exhausting the persist retry budget",
		}),
		VerifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "riskgate_audit_verify_failures_total",
			Help: "Total integrity verification failures",
		}),
		FlushLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskgate_audit_flush_duration_seconds",
			Help:    "Duration of audit batch persist operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

func (m *Metrics) addWritten(n int) {
	if m != nil {
		m.RecordsWritten.Add(float64(n))
	}
}

func (m *Metrics) incEnqueueFailure() {
	if m != nil {
		m.EnqueueFailures.Inc()
	}
}

func (m *Metrics) incRetry() {
	if m != nil {
		m.PersistRetries.Inc()
	}
}

func (m *Metrics) incAlert() {
	if m != nil {
		m.PersistAlerts.Inc()
	}
}

func (m *Metrics) incVerifyFailure() {
	if m != nil {
		m.VerifyFailures.Inc()
	}
}
