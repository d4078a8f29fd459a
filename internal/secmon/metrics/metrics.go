package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the security monitor.
type Metrics struct {
	RequestsBlocked    *prometheus.CounterVec
	ViolationsDetected *prometheus.CounterVec
	SuspiciousActivity *prometheus.CounterVec
	BruteForceBlocks   prometheus.Counter
}

// New creates and registers the security monitor metrics.
func New() *Metrics {
	return build(promauto.With(prometheus.DefaultRegisterer))
}

// NewForTest creates metrics on a private registry.
func NewForTest() *Metrics {
	return build(promauto.With(prometheus.NewRegistry()))
}

func build(factory promauto.Factory) *Metrics {
	return &Metrics{
		RequestsBlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "panelmerge_secmon_requests_blocked_total",
			Help: "Total number of requests rejected before reaching a handler, by reason",
		}, []string{"reason"}),
		ViolationsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "panelmerge_secmon_violations_total",
			Help: "Total number of security violations detected, by type",
		}, []string{"type"}),
		SuspiciousActivity: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "panelmerge_secmon_suspicious_activity_total",
			Help: "Total number of suspicious activity detections, by type",
		}, []string{"type"}),
		BruteForceBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "panelmerge_secmon_brute_force_blocks_total",
			Help: "Total number of IPs blocked for brute-force login attempts",
		}),
	}
}
