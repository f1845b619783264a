// Package metrics holds the Prometheus collectors exported by the engine.
// All Record/Set methods are safe on a nil *Registry, so components can
// treat metrics as optional.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private Prometheus registry and the engine's collectors.
type Registry struct {
	registry *prometheus.Registry

	RecalcBatchesTotal   *prometheus.CounterVec
	RecalcBatchDuration  prometheus.Histogram
	RecalcEntitiesTotal  *prometheus.CounterVec
	RecalcSLABreaches    prometheus.Counter
	EventsConsumedTotal  *prometheus.CounterVec
	GraphCallsTotal      *prometheus.CounterVec
	GraphCallDuration    *prometheus.HistogramVec
	GraphBreakerState    *prometheus.GaugeVec
	AlertsPublishedTotal prometheus.Counter
}

// NewRegistry creates a registry with every collector registered, plus the
// Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r := &Registry{registry: reg}
	r.initRecalcMetrics()
	r.initGraphMetrics()
	return r
}

func (r *Registry) initRecalcMetrics() {
	r.RecalcBatchesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainrisk_recalc_batches_total",
			Help: "Recalculation batches by terminal state",
		},
		[]string{"state"},
	)

	r.RecalcBatchDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chainrisk_recalc_batch_duration_seconds",
			Help:    "Wall-clock duration of recalculation batches",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	r.RecalcEntitiesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainrisk_recalc_entities_total",
			Help: "Entities recomputed during recalculation, by status",
		},
		[]string{"status"},
	)

	r.RecalcSLABreaches = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "chainrisk_recalc_sla_breaches_total",
			Help: "Recalculation batches that exceeded the soft SLA",
		},
	)

	r.EventsConsumedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainrisk_events_consumed_total",
			Help: "Risk events received from the message bus, by outcome",
		},
		[]string{"outcome"},
	)

	r.AlertsPublishedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "chainrisk_alerts_published_total",
			Help: "Prioritized risks published as alerts",
		},
	)
}

func (r *Registry) initGraphMetrics() {
	r.GraphCallsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainrisk_graph_calls_total",
			Help: "Graph port calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	r.GraphCallDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainrisk_graph_call_duration_seconds",
			Help:    "Graph port call latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"op"},
	)

	r.GraphBreakerState = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainrisk_graph_breaker_state",
			Help: "1 for the graph circuit breaker's current state, 0 otherwise",
		},
		[]string{"state"},
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordBatch records a finished recalculation batch.
func (r *Registry) RecordBatch(state string, duration time.Duration, succeeded, failed int, slaExceeded bool) {
	if r == nil {
		return
	}
	r.RecalcBatchesTotal.WithLabelValues(state).Inc()
	r.RecalcBatchDuration.Observe(duration.Seconds())
	r.RecalcEntitiesTotal.WithLabelValues("ok").Add(float64(succeeded))
	r.RecalcEntitiesTotal.WithLabelValues("failed").Add(float64(failed))
	if slaExceeded {
		r.RecalcSLABreaches.Inc()
	}
}

// RecordEvent counts a consumed risk event.
func (r *Registry) RecordEvent(outcome string) {
	if r == nil {
		return
	}
	r.EventsConsumedTotal.WithLabelValues(outcome).Inc()
}

// RecordAlerts counts published alerts.
func (r *Registry) RecordAlerts(n int) {
	if r == nil {
		return
	}
	r.AlertsPublishedTotal.Add(float64(n))
}

// RecordGraphCall records one graph port call.
func (r *Registry) RecordGraphCall(op, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.GraphCallsTotal.WithLabelValues(op, outcome).Inc()
	r.GraphCallDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// SetBreakerState marks state as the graph breaker's current state.
func (r *Registry) SetBreakerState(state string) {
	if r == nil {
		return
	}
	r.GraphBreakerState.WithLabelValues("closed").Set(0)
	r.GraphBreakerState.WithLabelValues("open").Set(0)
	r.GraphBreakerState.WithLabelValues("half-open").Set(0)
	r.GraphBreakerState.WithLabelValues(state).Set(1)
}
