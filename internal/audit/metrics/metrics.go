package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the audit write path.
type Metrics struct {
	EventsWritten   *prometheus.CounterVec
	WriteFailures   prometheus.Counter
	PayloadFailures prometheus.Counter
}

// New creates and registers the audit metrics.
func New() *Metrics {
	return build(promauto.With(prometheus.DefaultRegisterer))
}

// NewForTest creates metrics on a private registry so parallel test packages
// don't collide on the default registerer.
func NewForTest() *Metrics {
	return build(promauto.With(prometheus.NewRegistry()))
}

func build(factory promauto.Factory) *Metrics {
	return &Metrics{
		EventsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "panelmerge_audit_events_written_total",
			Help: "Total number of audit events written, by action kind",
		}, []string{"action"}),
		WriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "panelmerge_audit_write_failures_total",
			Help: "Total number of audit events dropped due to store failures",
		}),
		PayloadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "panelmerge_audit_payload_failures_total",
			Help: "Total number of structured payloads dropped due to serialization failures",
		}),
	}
}
