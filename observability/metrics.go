package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics exposes Prometheus collectors for the ledger gateway:
// submission outcomes, node failovers, rejections by code, query costs, and
// task processing durations.
type GatewayMetrics struct {
	submissions  *prometheus.CounterVec
	failovers    prometheus.Counter
	rejections   *prometheus.CounterVec
	queryCost    prometheus.Histogram
	taskDuration *prometheus.HistogramVec
}

var (
	gatewayOnce     sync.Once
	gatewayRegistry *GatewayMetrics
)

// Gateway returns the lazily-initialised gateway metrics registry. Collectors
// are registered with the default registerer exactly once.
func Gateway() *GatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledgergate",
				Subsystem: "client",
				Name:      "submissions_total",
				Help:      "Total ledger submissions segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
			failovers: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ledgergate",
				Subsystem: "client",
				Name:      "node_failovers_total",
				Help:      "Total transport failures that advanced to the next candidate node.",
			}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledgergate",
				Subsystem: "client",
				Name:      "rejections_total",
				Help:      "Total well-formed non-OK status codes segmented by code.",
			}, []string{"code"}),
			queryCost: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "ledgergate",
				Subsystem: "client",
				Name:      "query_cost",
				Help:      "Distribution of costs returned by the COST_ANSWER phase.",
				Buckets:   prometheus.ExponentialBuckets(1, 10, 8),
			}),
			taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ledgergate",
				Subsystem: "worker",
				Name:      "task_duration_seconds",
				Help:      "Time spent processing a pending task, by type and outcome.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"type", "outcome"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.submissions,
			gatewayRegistry.failovers,
			gatewayRegistry.rejections,
			gatewayRegistry.queryCost,
			gatewayRegistry.taskDuration,
		)
	})
	return gatewayRegistry
}

// RecordSubmission counts one submission attempt outcome for the given kind
// ("transaction" or "query").
func (m *GatewayMetrics) RecordSubmission(kind, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
}

// RecordFailover counts one advance to the next candidate node.
func (m *GatewayMetrics) RecordFailover() {
	if m == nil {
		return
	}
	m.failovers.Inc()
}

// RecordRejection counts one terminal ledger rejection.
func (m *GatewayMetrics) RecordRejection(code int32) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(strconv.FormatInt(int64(code), 10)).Inc()
}

// ObserveQueryCost records the cost returned by a COST_ANSWER exchange.
func (m *GatewayMetrics) ObserveQueryCost(cost uint64) {
	if m == nil {
		return
	}
	m.queryCost.Observe(float64(cost))
}

// ObserveTaskDuration records the wall time of one task execution.
func (m *GatewayMetrics) ObserveTaskDuration(taskType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.WithLabelValues(taskType, outcome).Observe(d.Seconds())
}
