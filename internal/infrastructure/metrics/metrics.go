// Package metrics exports engine instrumentation to Prometheus
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/garyjia/workflow-engine/internal/domain/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "workflow_engine"

// Collector implements the engine's Metrics hook
type Collector struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	guards      *prometheus.CounterVec
	lockWait    prometheus.Histogram
	events      *prometheus.CounterVec
}

// NewCollector registers the engine metrics, plus Go and process collectors,
// on a dedicated registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Transition attempts by machine and outcome code",
			},
			[]string{"machine", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transition_duration_seconds",
				Help:      "Time spent applying a transition",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"machine"},
		),
		guards: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guard_denials_total",
				Help:      "Guard denials by guard type and reason code",
			},
			[]string{"guard", "reason"},
		),
		lockWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting for the per-entity lock",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Published transition events by type",
			},
			[]string{"type"},
		),
	}

	c.registry.MustRegister(
		c.transitions,
		c.duration,
		c.guards,
		c.lockWait,
		c.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveTransition counts an attempt and records its duration
func (c *Collector) ObserveTransition(machine, code string, d time.Duration) {
	c.transitions.WithLabelValues(machine, code).Inc()
	c.duration.WithLabelValues(machine).Observe(d.Seconds())
}

// ObserveGuard counts a guard denial
func (c *Collector) ObserveGuard(guardType, reason string) {
	c.guards.WithLabelValues(guardType, reason).Inc()
}

// ObserveLockWait records lock acquisition latency
func (c *Collector) ObserveLockWait(d time.Duration) {
	c.lockWait.Observe(d.Seconds())
}

// CountEvent is an event bus handler counting published events by type
func (c *Collector) CountEvent(ctx context.Context, evt *event.Event) error {
	c.events.WithLabelValues(evt.Type.String()).Inc()
	return nil
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
