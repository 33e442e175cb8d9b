package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors exported on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	OperationTotal    *prometheus.CounterVec
	OperationErrors   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	FallbackTotal     *prometheus.CounterVec
	RefreshTotal      prometheus.Counter
	RealtimeReconnect prometheus.Counter
}

// NewMetrics builds and registers the engine's collectors on a fresh
// registry so tests can construct them repeatedly.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		OperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickerdesk_operations_total",
			Help: "Backend operations executed, by operation and status.",
		}, []string{"operation", "status"}),
		OperationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickerdesk_operation_errors_total",
			Help: "Backend operations that returned an error status.",
		}, []string{"operation"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tickerdesk_operation_duration_seconds",
			Help:    "Backend operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		FallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickerdesk_fallback_total",
			Help: "Operations served by the fallback data source.",
		}, []string{"operation"}),
		RefreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickerdesk_session_refresh_total",
			Help: "Session refresh network calls issued by this process.",
		}),
		RealtimeReconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickerdesk_realtime_reconnects_total",
			Help: "Realtime channel reconnect attempts.",
		}),
	}

	registry.MustRegister(
		m.OperationTotal,
		m.OperationErrors,
		m.OperationDuration,
		m.FallbackTotal,
		m.RefreshTotal,
		m.RealtimeReconnect,
	)
	return m
}

// Handler exposes the registry for the /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
