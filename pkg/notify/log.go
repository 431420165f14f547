package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes events using structured logging. Telemetry events are
// logged at debug level since they arrive every tick.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new log notifier.
// If logger is nil, a default logger is used.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify writes the event using structured logging.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	switch event.Type {
	case TypeTelemetry, TypeLog:
		level = slog.LevelDebug
	case TypeAlarm:
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "state change",
		slog.String("type", event.Type),
		slog.String("message", event.Message),
	)
	return nil
}
