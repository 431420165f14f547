// Package pmic implements the rail control model for the simulated PMIC:
// the enable switch, per-rail voltages, simulated telemetry, and the
// over-temperature and over-current alarms derived from it.
//
// Every mutator runs to completion under the model lock, so a telemetry
// tick never observes a partially applied profile. Each change is written
// to the event log sink and emitted as a notify.Event.
package pmic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pmicdash/pmicdash/pkg/alarm"
	"github.com/pmicdash/pmicdash/pkg/clock"
	"github.com/pmicdash/pmicdash/pkg/eventlog"
	"github.com/pmicdash/pmicdash/pkg/notify"
	"github.com/pmicdash/pmicdash/pkg/rail"
)

// ErrRailOutOfRange is returned by SetRailValueChecked for a value outside
// the rail's control bounds.
var ErrRailOutOfRange = errors.New("rail value out of range")

// State is a snapshot of the system.
type State struct {
	Enabled         bool         `json:"enabled"`
	Rails           rail.Profile `json:"rails"`
	OverTemperature bool         `json:"overTemperature"`
	OverCurrent     bool         `json:"overCurrent"`
}

// Config configures a Model.
type Config struct {
	// Enabled is the initial value of the enable switch.
	Enabled bool

	// Log receives human-readable event lines. Required.
	Log eventlog.Sink

	// Notifier receives structured change events. Optional.
	Notifier notify.Notifier

	// Evaluator decides alarm conditions. If nil, the default thresholds
	// are used.
	Evaluator *alarm.Evaluator

	// Rand drives the telemetry simulation. If nil, a time-seeded source
	// is used.
	Rand *rand.Rand

	// Clock stamps change events. If nil, uses real time.
	Clock clock.Clock

	Logger *slog.Logger
}

// Model holds the SystemState. It is safe for concurrent use. Notifiers
// are invoked with the model lock held and must not call back into it.
type Model struct {
	mu        sync.Mutex
	state     State
	last      *Sample
	log       eventlog.Sink
	notifier  notify.Notifier
	evaluator *alarm.Evaluator
	rnd       *rand.Rand
	clock     clock.Clock
	logger    *slog.Logger
}

// New creates a model with the default profile applied.
func New(cfg Config) (*Model, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("event log is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Evaluator == nil {
		eval, err := alarm.NewEvaluator(alarm.DefaultPolicy())
		if err != nil {
			return nil, fmt.Errorf("build default alarm evaluator: %w", err)
		}
		cfg.Evaluator = eval
	}

	return &Model{
		state: State{
			Enabled: cfg.Enabled,
			Rails:   rail.Default(),
		},
		log:       cfg.Log,
		notifier:  cfg.Notifier,
		evaluator: cfg.Evaluator,
		rnd:       cfg.Rand,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With(slog.String("component", "rail-model")),
	}, nil
}

// State returns a snapshot of the current state.
func (m *Model) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Rail returns the live millivolt value of one rail.
func (m *Model) Rail(id rail.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Rails.Get(id)
}

// SetEnabled switches the PMIC output. Disabling clears both alarms and
// blanks telemetry; enabling re-arms alarm evaluation on the next tick.
func (m *Model) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Enabled = enabled
	if !enabled {
		m.state.OverTemperature = false
		m.state.OverCurrent = false
		m.last = nil
	}

	msg := "PMIC Disabled"
	if enabled {
		msg = "PMIC Enabled"
	}
	m.log.Append(msg)
	m.emit(notify.TypeEnabled, msg, m.state)
	m.logger.Info("pmic output switched", slog.Bool("enabled", enabled))
}

// ApplyProfile overwrites all three rails at once. One log line is written
// for each rail whose value changes. Presets are safe by construction;
// externally sourced profiles must be clamped by the caller first.
func (m *Model) ApplyProfile(profile rail.Profile, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyLocked(profile, label)
}

func (m *Model) applyLocked(profile rail.Profile, label string) {
	prev := m.state.Rails
	m.state.Rails = profile

	for _, id := range rail.All {
		if prev.Get(id) == profile.Get(id) {
			continue
		}
		m.log.Append(railLine(id, profile.Get(id)))
	}

	m.emit(notify.TypeProfile, fmt.Sprintf("Applied '%s' Voltage Profile", displayLabel(label)), m.state)
	m.logger.Info("voltage profile applied",
		slog.String("profile", label),
		slog.Int("cpu_mv", profile.CPU),
		slog.Int("gpu_mv", profile.GPU),
		slog.Int("mem_mv", profile.MEM),
	)
}

// SetRailValue stores mv on a rail without clamping. Input is assumed to be
// bounded by the caller's control; untrusted input should go through
// SetRailValueChecked.
func (m *Model) SetRailValue(id rail.ID, mv int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Rails = m.state.Rails.With(id, mv)
	line := railLine(id, mv)
	m.log.Append(line)
	m.emit(notify.TypeRail, line, m.state)
}

// SetRailValueChecked validates mv against the rail's control bounds before
// storing it.
func (m *Model) SetRailValueChecked(id rail.ID, mv int) error {
	r := rail.SafeRange(id)
	if r == (rail.Range{}) {
		return fmt.Errorf("%w: %q", rail.ErrUnknownRail, id)
	}
	if !r.Contains(mv) {
		return fmt.Errorf("%w: %s = %d mV, allowed [%d, %d]", ErrRailOutOfRange, id.DisplayName(), mv, r.Min, r.Max)
	}
	m.SetRailValue(id, mv)
	return nil
}

// Reset applies the default profile and clears both alarms, whether or not
// the output is enabled.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Append("PMIC Reset Triggered")
	m.applyLocked(rail.Default(), rail.PresetDefault)
	m.state.OverTemperature = false
	m.state.OverCurrent = false
	m.log.Append("Voltage rails reset to default")
	m.emit(notify.TypeReset, "Voltage rails reset to default", m.state)
}

func (m *Model) emit(eventType, message string, data any) {
	if m.notifier == nil {
		return
	}
	event := notify.Event{
		Type:      eventType,
		Message:   message,
		Timestamp: m.clock.Now(),
		Data:      data,
	}
	if err := m.notifier.Notify(context.Background(), event); err != nil {
		m.logger.Warn("failed to deliver change event",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func railLine(id rail.ID, mv int) string {
	return fmt.Sprintf("%s set to %s", id.DisplayName(), rail.FormatVolts(mv))
}

// displayLabel capitalizes a profile label: "powerSaver" -> "PowerSaver".
// An empty label is shown as "Custom".
func displayLabel(label string) string {
	if label == "" {
		return "Custom"
	}
	if c := label[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + label[1:]
	}
	return label
}
