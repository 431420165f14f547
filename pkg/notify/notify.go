// Package notify carries dashboard change events from the rail control model
// to whoever presents them: structured logs, the WebSocket feed, metrics.
package notify

import (
	"context"
	"time"
)

// Event types emitted by the rail control model.
const (
	TypeEnabled   = "enabled"
	TypeRail      = "rail"
	TypeProfile   = "profile"
	TypeReset     = "reset"
	TypeAlarm     = "alarm"
	TypeTelemetry = "telemetry"
	TypeLog       = "log"
)

// Event represents a single state change.
type Event struct {
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Data is a type-specific payload, e.g. the new state snapshot.
	Data any `json:"data,omitempty"`
}

// Notifier receives change events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a plain function to a Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Multi fans an event out to several notifiers. Every notifier is called;
// the first error is returned.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var first error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
