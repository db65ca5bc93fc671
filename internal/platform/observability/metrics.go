package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry with HTTP and order collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	ordersPlaced   *prometheus.CounterVec
	ordersRejected *prometheus.CounterVec
	orderRevenue   prometheus.Counter
	statusChanges  *prometheus.CounterVec
}

// NewMetrics registers every collector under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "placed_total",
			Help:      "Committed orders by payment method.",
		}, []string{"payment_method"}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "rejected_total",
			Help:      "Order placements that did not commit, by reason.",
		}, []string{"reason"}),
		orderRevenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "revenue_vnd_total",
			Help:      "Revenue fixed at placement, in VND.",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "status_changes_total",
			Help:      "Order status updates; nominal=false marks moves outside the usual lifecycle.",
		}, []string{"to", "nominal"}),
	}
	registry.MustRegister(m.httpRequests, m.httpLatency, m.ordersPlaced, m.ordersRejected, m.orderRevenue, m.statusChanges)
	return m
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// OrderPlaced records a committed order.
func (m *Metrics) OrderPlaced(paymentMethod string, revenue int64) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(paymentMethod).Inc()
	if revenue > 0 {
		m.orderRevenue.Add(float64(revenue))
	}
}

// OrderRejected records a placement that aborted.
func (m *Metrics) OrderRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

// OrderStatusChanged records a status update.
func (m *Metrics) OrderStatusChanged(to string, nominal bool) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(to, strconv.FormatBool(nominal)).Inc()
}
