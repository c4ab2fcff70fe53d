package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RewardMetrics records reward engine activity exposed on /metrics.
type RewardMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

var (
	rewardMetricsOnce sync.Once
	rewardRegistry    *RewardMetrics
)

// Rewards returns the lazily-initialised reward metrics registry.
func Rewards() *RewardMetrics {
	rewardMetricsOnce.Do(func() {
		rewardRegistry = &RewardMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mailbond",
				Subsystem: "rewards",
				Name:      "operations_total",
				Help:      "Total reward operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mailbond",
				Subsystem: "rewards",
				Name:      "failures_total",
				Help:      "Total reward operation rejections segmented by operation and status code.",
			}, []string{"operation", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "mailbond",
				Subsystem: "rewards",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for reward RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			rewardRegistry.operations,
			rewardRegistry.failures,
			rewardRegistry.latency,
		)
	})
	return rewardRegistry
}

// Observe records the outcome of a reward operation. The status code should
// be the HTTP status that was ultimately written to the response writer.
func (m *RewardMetrics) Observe(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.failures.WithLabelValues(operation, fmt.Sprintf("%d", status)).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}
