// Package metrics holds the Prometheus collectors of the engine. Collectors
// are package level and registered once with InitMetrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// JobSubmissions counts submissions to the worker pool, retries included.
	JobSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "viewgrid",
			Subsystem: "scheduler",
			Name:      "job_submissions_total",
			Help:      "number of job submissions to the worker pool",
		}, []string{"kind"})
	// JobOutcomes counts finished submissions by outcome.
	JobOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "viewgrid",
			Subsystem: "scheduler",
			Name:      "job_outcomes_total",
			Help:      "number of finished job submissions by outcome",
		}, []string{"outcome"})
	// JobDuration observes submission to completion latency.
	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "viewgrid",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "latency from job submission to its result",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		})
	// JobsInFlight is the number of outstanding submissions across cycles.
	JobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "viewgrid",
			Subsystem: "scheduler",
			Name:      "jobs_in_flight",
			Help:      "number of job submissions waiting for a result",
		})
	// NodeOutcomes counts terminal node states by failure reason; successful
	// nodes use reason "none".
	NodeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "viewgrid",
			Subsystem: "scheduler",
			Name:      "node_outcomes_total",
			Help:      "number of dependency nodes reaching a terminal state",
		}, []string{"state", "reason"})
	// CycleDuration observes the wall time of a cycle by kind.
	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "viewgrid",
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "wall time of a view cycle",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 18),
		}, []string{"kind"})
	// CycleNodes observes graph sizes by cycle kind.
	CycleNodes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "viewgrid",
			Subsystem: "cycle",
			Name:      "nodes",
			Help:      "number of dependency nodes executed by a view cycle",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"kind"})
	// CoalescedNotifications counts market data changes merged into an
	// already pending delta cycle.
	CoalescedNotifications = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "viewgrid",
			Subsystem: "live",
			Name:      "coalesced_notifications_total",
			Help:      "number of market data notifications merged into a pending delta cycle",
		})
)

// InitMetrics registers all metrics of the engine.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(JobSubmissions)
	registry.MustRegister(JobOutcomes)
	registry.MustRegister(JobDuration)
	registry.MustRegister(JobsInFlight)
	registry.MustRegister(NodeOutcomes)
	registry.MustRegister(CycleDuration)
	registry.MustRegister(CycleNodes)
	registry.MustRegister(CoalescedNotifications)
}
