package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector tracks delivery performance across the system.
type MetricsCollector struct {
	registry *prometheus.Registry

	messagesSubmitted prometheus.Counter
	deliveryPushes    prometheus.Counter
	pushFailures      prometheus.Counter
	openConnections   prometheus.Gauge
	operationLatency  *prometheus.HistogramVec

	systemStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()

	mc := &MetricsCollector{
		registry: registry,
		messagesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ripple_messages_submitted_total",
			Help: "Messages accepted and appended to the message store.",
		}),
		deliveryPushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ripple_delivery_pushes_total",
			Help: "Payloads pushed to live recipient connections.",
		}),
		pushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ripple_push_failures_total",
			Help: "Pushes that failed and tore the connection down.",
		}),
		openConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ripple_open_connections",
			Help: "Currently registered websocket connections.",
		}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ripple_operation_latency_seconds",
			Help:    "Latency of core operations by name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		systemStartTime: time.Now(),
	}

	registry.MustRegister(
		mc.messagesSubmitted,
		mc.deliveryPushes,
		mc.pushFailures,
		mc.openConnections,
		mc.operationLatency,
	)

	return mc
}

func (mc *MetricsCollector) IncrementSubmitted() {
	mc.messagesSubmitted.Inc()
}

func (mc *MetricsCollector) IncrementPushes() {
	mc.deliveryPushes.Inc()
}

func (mc *MetricsCollector) IncrementPushFailures() {
	mc.pushFailures.Inc()
}

func (mc *MetricsCollector) ConnectionOpened() {
	mc.openConnections.Inc()
}

func (mc *MetricsCollector) ConnectionClosed() {
	mc.openConnections.Dec()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operationLatency.WithLabelValues(operationName).Observe(duration.Seconds())
}

func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.systemStartTime)
}

// Handler exposes the collector for scraping.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
