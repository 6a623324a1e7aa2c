package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	escalations *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
}

// NewMetrics creates collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP errors by domain error code.",
		}, []string{"method", "path", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_operations_total",
			Help: "Ticket operations by kind and outcome.",
		}, []string{"operation", "result"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_escalations_total",
			Help: "Automatic priority bumps by risk tier crossed.",
		}, []string{"tier"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_sweeps_total",
			Help: "Escalation sweeps by outcome.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency, m.errors, m.transitions, m.escalations, m.sweeps)
	}
	return m
}

// RecordRequest counts a finished HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError counts an HTTP error by its domain code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

// RecordOperation counts a ticket operation; result is "ok" or an error code.
func (m *Metrics) RecordOperation(operation, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, result).Inc()
}

// RecordEscalation counts an automatic priority bump.
func (m *Metrics) RecordEscalation(tier string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(tier).Inc()
}

// RecordSweep counts an escalation sweep run.
func (m *Metrics) RecordSweep(result string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(result).Inc()
}
