// Package metrics holds the Prometheus collectors of the exchange.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "papertrade"

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	ordersAdmitted        *prometheus.CounterVec
	ordersRejected        *prometheus.CounterVec
	ordersCancelled       prometheus.Counter
	trades                *prometheus.CounterVec
	tradedShares          *prometheus.CounterVec
	matchDuration         prometheus.Histogram
	consistencyViolations prometheus.Counter
	notificationsFailed   *prometheus.CounterVec
	httpRequests          *prometheus.CounterVec
	httpLatency           *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ordersAdmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_admitted_total",
			Help:      "Orders accepted by admission control.",
		}, []string{"side"}),
		ordersRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Orders rejected before reaching the book.",
		}, []string{"reason"}),
		ordersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Resting orders cancelled by their owner.",
		}),
		trades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Executed trades.",
		}, []string{"symbol"}),
		tradedShares: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_shares_total",
			Help:      "Shares changing hands.",
		}, []string{"symbol"}),
		matchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Time spent matching one incoming order.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		consistencyViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_violations_total",
			Help:      "Internal invariant breaches that aborted a transaction.",
		}),
		notificationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Outbound notifications that could not be delivered.",
		}, []string{"sink"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderAdmitted(side string) {
	if m == nil {
		return
	}
	m.ordersAdmitted.WithLabelValues(side).Inc()
}

func (m *Metrics) OrderRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

func (m *Metrics) TradeExecuted(symbol string, qty int64) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(symbol).Inc()
	m.tradedShares.WithLabelValues(symbol).Add(float64(qty))
}

func (m *Metrics) ObserveMatch(d time.Duration) {
	if m == nil {
		return
	}
	m.matchDuration.Observe(d.Seconds())
}

func (m *Metrics) ConsistencyViolation() {
	if m == nil {
		return
	}
	m.consistencyViolations.Inc()
}

func (m *Metrics) NotificationFailed(sink string) {
	if m == nil {
		return
	}
	m.notificationsFailed.WithLabelValues(sink).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, http.StatusText(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}
