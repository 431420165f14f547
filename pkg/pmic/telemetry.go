package pmic

import (
	"log/slog"
	"time"

	"github.com/pmicdash/pmicdash/pkg/alarm"
	"github.com/pmicdash/pmicdash/pkg/notify"
	"github.com/pmicdash/pmicdash/pkg/rail"
)

// Telemetry model constants.
const (
	baseTemperatureC   = 45.0
	temperatureSpreadC = 5.0
	currentBaseFactor  = 1.5
)

// Sample is one simulated telemetry reading.
type Sample struct {
	TemperatureC float64   `json:"temperatureC"`
	CurrentA     float64   `json:"currentA"`
	Time         time.Time `json:"time"`
}

// Edge describes how an alarm flag changed between ticks.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeTripped
	EdgeCleared
)

func (e Edge) String() string {
	switch e {
	case EdgeTripped:
		return "tripped"
	case EdgeCleared:
		return "cleared"
	default:
		return "none"
	}
}

// AlarmTransition reports which alarm flags flipped on an evaluation.
type AlarmTransition struct {
	OverTemperature Edge `json:"overTemperature"`
	OverCurrent     Edge `json:"overCurrent"`
}

// Changed reports whether any flag flipped.
func (t AlarmTransition) Changed() bool {
	return t.OverTemperature != EdgeNone || t.OverCurrent != EdgeNone
}

// TelemetryUpdate is the payload of a telemetry change event.
type TelemetryUpdate struct {
	State  State   `json:"state"`
	Sample *Sample `json:"sample,omitempty"`
}

// SampleTelemetry draws one simulated reading from the current rails.
// Temperature is uniform in [40, 50) °C. Current is the sum over rails of
// volts × (1.5 + u) with u uniform in [0, 1). It returns false while the
// output is disabled.
func (m *Model) SampleTelemetry() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sampleLocked()
}

func (m *Model) sampleLocked() (Sample, bool) {
	if !m.state.Enabled {
		return Sample{}, false
	}

	temp := baseTemperatureC + (m.rnd.Float64()*2*temperatureSpreadC - temperatureSpreadC)

	var current float64
	for _, id := range rail.All {
		current += rail.Volts(m.state.Rails.Get(id)) * (currentBaseFactor + m.rnd.Float64())
	}

	return Sample{TemperatureC: temp, CurrentA: current, Time: m.clock.Now()}, true
}

// EvaluateAlarms recomputes both alarm flags from sample. Flags are not
// latched: a flag follows its condition on every evaluation, and a reading
// back at or below threshold clears it. An event log line is written only
// when a flag trips. While disabled, evaluation is a no-op.
func (m *Model) EvaluateAlarms(sample Sample) AlarmTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluateLocked(sample)
}

func (m *Model) evaluateLocked(sample Sample) AlarmTransition {
	var tr AlarmTransition
	if !m.state.Enabled {
		return tr
	}

	cond, err := m.evaluator.Evaluate(alarm.Input{
		TemperatureC: sample.TemperatureC,
		CurrentA:     sample.CurrentA,
		Rails:        m.state.Rails,
	})
	if err != nil {
		m.logger.Warn("alarm rule evaluation failed", slog.String("error", err.Error()))
	}

	tr.OverTemperature = edge(m.state.OverTemperature, cond.OverTemperature)
	tr.OverCurrent = edge(m.state.OverCurrent, cond.OverCurrent)
	m.state.OverTemperature = cond.OverTemperature
	m.state.OverCurrent = cond.OverCurrent

	if tr.OverTemperature == EdgeTripped {
		m.log.Append("CRITICAL: Over Temperature event!")
	}
	if tr.OverCurrent == EdgeTripped {
		m.log.Append("CRITICAL: Over Current event!")
	}

	if tr.Changed() {
		m.emit(notify.TypeAlarm, alarmMessage(tr), tr)
		m.logger.Warn("alarm state changed",
			slog.String("over_temperature", tr.OverTemperature.String()),
			slog.String("over_current", tr.OverCurrent.String()),
			slog.Float64("temperature_c", sample.TemperatureC),
			slog.Float64("current_a", sample.CurrentA),
		)
	}

	return tr
}

// Tick runs one telemetry cycle: sample, evaluate alarms, record the sample.
// It returns false while disabled.
func (m *Model) Tick() (Sample, AlarmTransition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sample, ok := m.sampleLocked()
	if !ok {
		m.last = nil
		m.emit(notify.TypeTelemetry, "", TelemetryUpdate{State: m.state})
		return Sample{}, AlarmTransition{}, false
	}

	tr := m.evaluateLocked(sample)
	m.last = &sample
	m.emit(notify.TypeTelemetry, "", TelemetryUpdate{State: m.state, Sample: &sample})
	return sample, tr, true
}

// LastSample returns the sample recorded by the most recent tick. It
// returns false if the output is disabled or no tick has run since enabling.
func (m *Model) LastSample() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Sample{}, false
	}
	return *m.last, true
}

func edge(was, now bool) Edge {
	switch {
	case !was && now:
		return EdgeTripped
	case was && !now:
		return EdgeCleared
	default:
		return EdgeNone
	}
}

func alarmMessage(tr AlarmTransition) string {
	switch {
	case tr.OverTemperature == EdgeTripped:
		return "Over Temperature tripped"
	case tr.OverCurrent == EdgeTripped:
		return "Over Current tripped"
	case tr.OverTemperature == EdgeCleared:
		return "Over Temperature cleared"
	default:
		return "Over Current cleared"
	}
}
