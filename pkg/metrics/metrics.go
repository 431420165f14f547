// Package metrics exposes dashboard sessions as Prometheus metrics.
package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pmicdash/pmicdash/pkg/dashboard"
	"github.com/pmicdash/pmicdash/pkg/notify"
	"github.com/pmicdash/pmicdash/pkg/pmic"
	"github.com/pmicdash/pmicdash/pkg/rail"
)

// Source lists the live sessions.
type Source interface {
	Sessions() []*dashboard.Session
}

// Metrics is a prometheus.Collector over the live sessions. It also
// counts assistant requests and alarm trips, acting as a
// dashboard.Observer and a notify.Notifier.
type Metrics struct {
	mu     sync.Mutex
	source Source

	sessions    prometheus.Gauge
	enabled     *prometheus.GaugeVec
	railMV      *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	current     *prometheus.GaugeVec
	alarmActive *prometheus.GaugeVec

	assistantRequests *prometheus.CounterVec
	alarmTrips        *prometheus.CounterVec
	changeEvents      *prometheus.CounterVec
}

// New creates the metrics. The source can be attached later with
// SetSource.
func New(source Source) *Metrics {
	return &Metrics{
		source: source,
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pmicdash_sessions",
			Help: "Number of live dashboard sessions",
		}),
		enabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pmicdash_pmic_enabled",
				Help: "Whether the PMIC output is enabled (1) or disabled (0)",
			},
			[]string{"session"},
		),
		railMV: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pmicdash_rail_millivolts",
				Help: "Commanded voltage of each rail in millivolts",
			},
			[]string{"session", "rail"},
		),
		temperature: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pmicdash_temperature_celsius",
				Help: "Last simulated die temperature",
			},
			[]string{"session"},
		),
		current: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pmicdash_current_amperes",
				Help: "Last simulated total current",
			},
			[]string{"session"},
		),
		alarmActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pmicdash_alarm_active",
				Help: "Whether an alarm flag is set (1) or clear (0)",
			},
			[]string{"session", "alarm"},
		),
		assistantRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pmicdash_assistant_requests_total",
				Help: "Assistant requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		alarmTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pmicdash_alarm_trips_total",
				Help: "Number of times each alarm tripped",
			},
			[]string{"alarm"},
		),
		changeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pmicdash_change_events_total",
				Help: "Rail model change events by type",
			},
			[]string{"type"},
		),
	}
}

// SetSource attaches the session source.
func (m *Metrics) SetSource(source Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = source
}

// ObserveAssistant implements dashboard.Observer.
func (m *Metrics) ObserveAssistant(kind, outcome string) {
	m.assistantRequests.WithLabelValues(kind, outcome).Inc()
}

// Notify implements notify.Notifier.
func (m *Metrics) Notify(_ context.Context, event notify.Event) error {
	if event.Type != notify.TypeTelemetry {
		m.changeEvents.WithLabelValues(event.Type).Inc()
	}
	if event.Type != notify.TypeAlarm {
		return nil
	}
	tr, ok := event.Data.(pmic.AlarmTransition)
	if !ok {
		return nil
	}
	if tr.OverTemperature == pmic.EdgeTripped {
		m.alarmTrips.WithLabelValues("overTemperature").Inc()
	}
	if tr.OverCurrent == pmic.EdgeTripped {
		m.alarmTrips.WithLabelValues("overCurrent").Inc()
	}
	return nil
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.sessions.Describe(ch)
	m.enabled.Describe(ch)
	m.railMV.Describe(ch)
	m.temperature.Describe(ch)
	m.current.Describe(ch)
	m.alarmActive.Describe(ch)
	m.assistantRequests.Describe(ch)
	m.alarmTrips.Describe(ch)
	m.changeEvents.Describe(ch)
}

// Collect implements prometheus.Collector and refreshes the session gauges.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.mu.Lock()
	m.collectSessions()
	m.mu.Unlock()

	m.sessions.Collect(ch)
	m.enabled.Collect(ch)
	m.railMV.Collect(ch)
	m.temperature.Collect(ch)
	m.current.Collect(ch)
	m.alarmActive.Collect(ch)
	m.assistantRequests.Collect(ch)
	m.alarmTrips.Collect(ch)
	m.changeEvents.Collect(ch)
}

func (m *Metrics) collectSessions() {
	m.enabled.Reset()
	m.railMV.Reset()
	m.temperature.Reset()
	m.current.Reset()
	m.alarmActive.Reset()

	if m.source == nil {
		m.sessions.Set(0)
		return
	}

	sessions := m.source.Sessions()
	m.sessions.Set(float64(len(sessions)))

	for _, s := range sessions {
		id := shortID(s.ID())
		view := s.View()

		m.enabled.WithLabelValues(id).Set(boolValue(view.State.Enabled))
		for _, r := range rail.All {
			m.railMV.WithLabelValues(id, string(r)).Set(float64(view.State.Rails.Get(r)))
		}
		m.alarmActive.WithLabelValues(id, "overTemperature").Set(boolValue(view.State.OverTemperature))
		m.alarmActive.WithLabelValues(id, "overCurrent").Set(boolValue(view.State.OverCurrent))

		if view.Sample != nil {
			m.temperature.WithLabelValues(id).Set(view.Sample.TemperatureC)
			m.current.WithLabelValues(id).Set(view.Sample.CurrentA)
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
