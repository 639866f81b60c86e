// Package metrics exports bridge activity as Prometheus metrics. Counters
// are fed by subscribing Metrics to the event broadcaster; gauges read
// live state through Sources.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sebas/callbridge/services/callbridge/events"
)

const namespace = "callbridge"

// Sources supplies live values. Nil functions are skipped.
type Sources struct {
	ActiveSessions       func() int
	Wakeups              func() int64
	ReachabilityTimeouts func() int64
	Subscribers          func() int
}

// Metrics owns a registry with the bridge collectors.
type Metrics struct {
	registry    *prometheus.Registry
	sessions    *prometheus.CounterVec
	disconnects *prometheus.CounterVec
	events      *prometheus.CounterVec
	failures    prometheus.Counter
}

var _ events.Publisher = (*Metrics)(nil)

func New(src Sources) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Call sessions created, by direction.",
		}, []string{"direction"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Call sessions ended, by disconnect cause.",
		}, []string{"cause"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Outbound events delivered, by type.",
		}, []string{"type"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_failures_total",
			Help:      "Connection requests that did not produce a session.",
		}),
	}

	m.registry.MustRegister(
		m.sessions, m.disconnects, m.events, m.failures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if src.ActiveSessions != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Call sessions currently registered.",
		}, func() float64 { return float64(src.ActiveSessions()) }))
	}
	if src.Wakeups != nil {
		m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wakeups_total",
			Help:      "Times the host application was woken.",
		}, func() float64 { return float64(src.Wakeups()) }))
	}
	if src.ReachabilityTimeouts != nil {
		m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reachability_timeouts_total",
			Help:      "Reachability checks that were not confirmed in time.",
		}, func() float64 { return float64(src.ReachabilityTimeouts()) }))
	}
	if src.Subscribers != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Subscribers attached to the event broadcaster.",
		}, func() float64 { return float64(src.Subscribers()) }))
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observe(ev events.Event) {
	m.events.WithLabelValues(string(ev.Type())).Inc()

	switch e := ev.(type) {
	case *events.CallEvent:
		if e.Type() == events.CallShowIncoming || e.Type() == events.CallStartOutgoing {
			m.sessions.WithLabelValues(e.Direction).Inc()
		}
	case *events.EndedEvent:
		m.disconnects.WithLabelValues(e.Cause).Inc()
	case *events.FailedEvent:
		m.failures.Inc()
	}
}

func (m *Metrics) Publish(ctx context.Context, ev events.Event) error {
	m.observe(ev)
	return nil
}

func (m *Metrics) PublishAsync(ev events.Event) {
	m.observe(ev)
}

func (m *Metrics) Flush(ctx context.Context) error { return nil }
func (m *Metrics) Close() error                    { return nil }
