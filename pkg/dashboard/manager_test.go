package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pmicdash/pmicdash/pkg/clock"
	"github.com/pmicdash/pmicdash/pkg/kv"
	"github.com/pmicdash/pmicdash/pkg/pmic"
)

func TestManager_CreateIssuesToken(t *testing.T) {
	env := newTestEnv(t, true)

	if _, err := uuid.Parse(env.session.ID()); err != nil {
		t.Errorf("session ID %q is not a uuid: %v", env.session.ID(), err)
	}
	got, ok := env.manager.Get(env.session.ID())
	if !ok || got != env.session {
		t.Error("Get() did not return the created session")
	}

	other, err := env.manager.Create(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	if other.ID() == env.session.ID() {
		t.Error("sessions share a token")
	}
	if env.manager.Len() != 2 {
		t.Errorf("Len() = %d, want 2", env.manager.Len())
	}
	if ss := env.manager.Sessions(); len(ss) != 2 {
		t.Errorf("Sessions() = %d entries", len(ss))
	}
}

func TestManager_Ensure(t *testing.T) {
	m := NewManager(ManagerConfig{Clock: clock.NewFakeClock(time.Unix(0, 0))}, nil)
	defer m.Close()

	a, err := m.Ensure(context.Background(), "cli", "cli")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Ensure(context.Background(), "cli", "cli")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("Ensure() created a second session for the same id")
	}
}

func TestManager_Logout(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	if err := env.store.Set(ctx, kv.KeyUsername, "alice"); err != nil {
		t.Fatal(err)
	}
	events, _ := env.session.Subscribe(8)

	if err := env.manager.Logout(ctx, env.session.ID()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if env.lastLine() != "User logging out." {
		t.Errorf("last line = %q", env.lastLine())
	}
	if _, ok, _ := env.store.Get(ctx, kv.KeyUsername); ok {
		t.Error("remembered username should be removed")
	}
	if _, ok := env.manager.Get(env.session.ID()); ok {
		t.Error("session still registered after logout")
	}

	for range events {
	}

	if err := env.manager.Logout(ctx, env.session.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Logout() error = %v, want ErrSessionNotFound", err)
	}
}

type recordingSink struct {
	ch chan string
}

func (r *recordingSink) Publish(ctx context.Context, sample pmic.Sample, state pmic.State) error {
	r.ch <- "tick"
	return nil
}

func TestManager_TelemetryRunsPerSession(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	sink := &recordingSink{ch: make(chan string, 4)}
	var sinkFor string

	m := NewManager(ManagerConfig{
		InitiallyEnabled:  true,
		TelemetryInterval: time.Second,
		Clock:             clk,
		Sink: func(id string) pmic.TelemetrySink {
			sinkFor = id
			return sink
		},
	}, nil)
	defer m.Close()

	s, err := m.Create(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if sinkFor != s.ID() {
		t.Errorf("sink requested for %q, want %q", sinkFor, s.ID())
	}

	clk.Advance(time.Second)
	select {
	case <-sink.ch:
	case <-time.After(time.Second):
		t.Fatal("expected a telemetry tick")
	}
}
