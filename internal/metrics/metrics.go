// Package metrics exposes Prometheus collectors for paste traffic and store
// latency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Access outcomes.
const (
	OutcomeServed      = "served"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	created  prometheus.Counter
	access   *prometheus.CounterVec
	storeOps *prometheus.HistogramVec
	swept    prometheus.Counter
}

// New registers the pastebox collectors plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pastebox",
			Name:      "pastes_created_total",
			Help:      "Pastes successfully created.",
		}),
		access: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pastebox",
			Name:      "paste_access_total",
			Help:      "Paste access attempts by outcome.",
		}, []string{"outcome"}),
		storeOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pastebox",
			Name:      "store_operation_seconds",
			Help:      "Latency of store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pastebox",
			Name:      "janitor_removed_total",
			Help:      "Expired pastes removed by the janitor.",
		}),
	}
	reg.MustRegister(
		m.created,
		m.access,
		m.storeOps,
		m.swept,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Created counts one created paste. Safe on a nil receiver.
func (m *Metrics) Created() {
	if m == nil {
		return
	}
	m.created.Inc()
}

// Access counts one access attempt with the given outcome.
func (m *Metrics) Access(outcome string) {
	if m == nil {
		return
	}
	m.access.WithLabelValues(outcome).Inc()
}

// Swept adds n janitor removals.
func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}

// ObserveStore records how long a store operation took since start.
func (m *Metrics) ObserveStore(op string, start time.Time) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
