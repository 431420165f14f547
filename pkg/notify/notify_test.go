package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestBroadcaster_DeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch1, cancel1 := b.Subscribe(4)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(4)
	defer cancel2()

	b.Notify(context.Background(), Event{Type: TypeEnabled, Message: "PMIC Enabled"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != TypeEnabled {
				t.Errorf("subscriber %d got type %q", i, ev.Type)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}
}

func TestBroadcaster_FullSubscriberDropsEvents(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Notify(context.Background(), Event{Message: "first"})
	b.Notify(context.Background(), Event{Message: "second"})

	ev := <-ch
	if ev.Message != "first" {
		t.Errorf("got %q, want first", ev.Message)
	}
	select {
	case ev := <-ch:
		t.Errorf("expected dropped event, got %q", ev.Message)
	default:
	}
}

func TestBroadcaster_CancelClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
	if b.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d, want 0", b.Subscribers())
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Close()
	if _, ok := <-ch; ok {
		t.Error("expected channel closed by Close")
	}

	late, _ := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscribe after Close should return closed channel")
	}
}

func TestMulti_CallsEveryNotifier(t *testing.T) {
	var calls int
	failing := NotifierFunc(func(ctx context.Context, e Event) error {
		calls++
		return errors.New("boom")
	})
	counting := NotifierFunc(func(ctx context.Context, e Event) error {
		calls++
		return nil
	})

	err := Multi{failing, nil, counting}.Notify(context.Background(), Event{})
	if err == nil {
		t.Error("expected first error to be returned")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	n := NewLogNotifier(logger)

	n.Notify(context.Background(), Event{Type: TypeAlarm, Message: "CRITICAL: Over Temperature event!"})
	n.Notify(context.Background(), Event{Type: TypeTelemetry, Message: "tick"})

	out := buf.String()
	if !strings.Contains(out, "Over Temperature") {
		t.Errorf("expected alarm in output, got %q", out)
	}
	if strings.Contains(out, "tick") {
		t.Errorf("telemetry should be logged at debug level, got %q", out)
	}
}
