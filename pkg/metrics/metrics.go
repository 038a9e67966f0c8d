// Package metrics exposes Prometheus counters for poll cycles, change events,
// deliveries and chat commands.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rankbot"

// Cycle results.
const (
	CycleOK       = "ok"
	CycleFetch    = "fetch_error"
	CycleRejected = "rejected"
	CyclePersist  = "persist_error"
)

// Metrics holds every collector, registered on its own registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cycles      *prometheus.CounterVec
	events      *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	commands    *prometheus.CounterVec
	lastSuccess prometheus.Gauge
	subscribers prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Diff cycles by result.",
		}, []string{"result"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_events_total",
			Help:      "Change events produced by the diff, by kind.",
		}, []string{"kind"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Notification deliveries by outcome.",
		}, []string{"outcome"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Chat commands handled, by command.",
		}, []string{"command"}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that replaced the snapshot.",
		}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Known subscribers.",
		}),
	}
}

// Registry is what the /metrics handler gathers from.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) Cycle(result string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
}

func (m *Metrics) CycleSucceeded(at time.Time) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(CycleOK).Inc()
	m.lastSuccess.Set(float64(at.Unix()))
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) Delivery(ok bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name).Inc()
}

func (m *Metrics) Subscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}
