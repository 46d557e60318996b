package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	laneCreations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensorctl",
			Subsystem: "lanes",
			Name:      "creations_total",
			Help:      "Execution lanes created, by device ordinal and thread group.",
		},
		[]string{"device", "group"},
	)
	reinitializations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tensorctl",
			Subsystem: "runtime",
			Name:      "reinitializations_total",
			Help:      "Pooled-resource reinitializations triggered by mode changes.",
		},
	)
	workspaceBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tensorctl",
			Subsystem: "workspace",
			Name:      "reserved_bytes",
			Help:      "Current scratch-region capacity, by device ordinal and region.",
		},
		[]string{"device", "region"},
	)
	epochGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tensorctl",
			Subsystem: "runtime",
			Name:      "epoch",
			Help:      "Minimum epoch reported across asynchronous workers.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensorctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tensorctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			laneCreations, reinitializations, workspaceBytes, epochGauge,
			httpRequests, httpDuration,
		)
	})
}

func RecordLaneCreation(ordinal, group int) {
	RegisterMetrics()
	laneCreations.WithLabelValues(strconv.Itoa(ordinal), strconv.Itoa(group)).Inc()
}

func RecordReinitialization() {
	RegisterMetrics()
	reinitializations.Inc()
}

func RecordWorkspaceBytes(ordinal int, region string, bytes uint64) {
	RegisterMetrics()
	workspaceBytes.WithLabelValues(strconv.Itoa(ordinal), region).Set(float64(bytes))
}

func RecordEpoch(epoch uint64) {
	RegisterMetrics()
	epochGauge.Set(float64(epoch))
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
