// Package metrics exposes Prometheus instrumentation for the wallet service
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcoot/gamewallet/internal/middleware"
)

const namespace = "gamewallet"

// Metrics holds the service collectors and the registry they are registered on.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ledgerOperations *prometheus.CounterVec
	diamondsMoved    *prometheus.CounterVec
	ledgerDuration   *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	streamClients prometheus.Gauge
}

// New creates a Metrics with its own registry, including Go runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ledgerOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		diamondsMoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "diamonds_total",
				Help:      "Diamonds credited by top-ups and debited by purchases",
			},
			[]string{"direction"},
		),
		ledgerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Duration of ledger operations including lock waits",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		streamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "clients",
				Help:      "Connected balance event stream clients",
			},
		),
	}
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLedgerOperation records one ledger operation and how long it took
func (m *Metrics) ObserveLedgerOperation(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ledgerOperations.WithLabelValues(operation, result).Inc()
	m.ledgerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddDiamonds records an applied balance delta; negative amounts count as debits
func (m *Metrics) AddDiamonds(amount int64) {
	if m == nil || amount == 0 {
		return
	}
	if amount > 0 {
		m.diamondsMoved.WithLabelValues("credit").Add(float64(amount))
		return
	}
	m.diamondsMoved.WithLabelValues("debit").Add(float64(-amount))
}

// StreamClientConnected adjusts the connected event stream client gauge
func (m *Metrics) StreamClientConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.streamClients.Inc()
		return
	}
	m.streamClients.Dec()
}

// Middleware records request counts and durations labelled by the matched
// route template, so ids in paths do not create new series
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.Status())).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
