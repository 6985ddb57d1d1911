package utils

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	mu           sync.RWMutex
	requestCount uint64
	errorCount   uint64

	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	errors          *prometheus.CounterVec
	operationTimes  *prometheus.HistogramVec
	relaySignals    *prometheus.CounterVec
	systemStartTime time.Time
}

// MetricsSnapshot is the plain-value view served by the health endpoint.
type MetricsSnapshot struct {
	Requests uint64        `json:"requests"`
	Errors   uint64        `json:"errors"`
	Uptime   time.Duration `json:"uptime"`
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Name:      "requests_total",
			Help:      "Inbox operations started, by operation.",
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Name:      "errors_total",
			Help:      "Inbox operations that failed, by operation and error code.",
		}, []string{"operation", "code"}),
		operationTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inbox",
			Name:      "operation_duration_seconds",
			Help:      "Latency of inbox operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		relaySignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Name:      "relay_signals_total",
			Help:      "New-message signals evaluated by the notification relay, by outcome.",
		}, []string{"outcome"}),
		systemStartTime: time.Now(),
	}
	mc.registry.MustRegister(mc.requests, mc.errors, mc.operationTimes, mc.relaySignals)
	return mc
}

func (mc *MetricsCollector) IncrementRequests(operationName string) {
	mc.mu.Lock()
	mc.requestCount++
	mc.mu.Unlock()
	mc.requests.WithLabelValues(operationName).Inc()
}

func (mc *MetricsCollector) IncrementErrors(operationName string, err error) {
	code := ErrorCode(err)
	if code == "" {
		code = "UNKNOWN"
	}
	mc.mu.Lock()
	mc.errorCount++
	mc.mu.Unlock()
	mc.errors.WithLabelValues(operationName, code).Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operationTimes.WithLabelValues(operationName).Observe(duration.Seconds())
}

// Track records one finished operation. Typical use:
//
//	defer func(start time.Time) { m.Track("list_threads", start, err) }(time.Now())
func (mc *MetricsCollector) Track(operationName string, start time.Time, err error) {
	mc.IncrementRequests(operationName)
	mc.AddOperationLatency(operationName, time.Since(start))
	if err != nil {
		mc.IncrementErrors(operationName, err)
	}
}

func (mc *MetricsCollector) RecordRelaySignal(outcome string) {
	mc.relaySignals.WithLabelValues(outcome).Inc()
}

func (mc *MetricsCollector) Snapshot() MetricsSnapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return MetricsSnapshot{
		Requests: mc.requestCount,
		Errors:   mc.errorCount,
		Uptime:   time.Since(mc.systemStartTime),
	}
}

// Handler exposes the collector in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
