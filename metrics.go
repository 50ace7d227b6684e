package main

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry        *prometheus.Registry
	ordersSubmitted *prometheus.CounterVec
	sessionFailures prometheus.Counter
	cartMutations   *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// NewMetrics registers the shop collectors on a private registry so tests can
// build as many as they like.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vendormarket",
			Name:      "orders_submitted_total",
			Help:      "Orders appended to the order log.",
		}, []string{"payment"}),
		sessionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vendormarket",
			Name:      "checkout_session_failures_total",
			Help:      "Card checkouts that fell back to the informational message.",
		}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vendormarket",
			Name:      "cart_mutations_total",
			Help:      "Accepted cart changes.",
		}, []string{"action"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vendormarket",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "status"}),
	}
	m.registry.MustRegister(
		m.ordersSubmitted,
		m.sessionFailures,
		m.cartMutations,
		m.httpRequests,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware counts requests by method and status.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.httpRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

func (m *Metrics) orderSubmitted(payment string) {
	if m != nil {
		m.ordersSubmitted.WithLabelValues(payment).Inc()
	}
}

func (m *Metrics) sessionFailed() {
	if m != nil {
		m.sessionFailures.Inc()
	}
}

func (m *Metrics) cartMutated(action string) {
	if m != nil {
		m.cartMutations.WithLabelValues(action).Inc()
	}
}
