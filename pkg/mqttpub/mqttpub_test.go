package mqttpub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pmicdash/pmicdash/pkg/pmic"
	"github.com/pmicdash/pmicdash/pkg/rail"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}            { return t.done }
func (t *fakeToken) Error() error                     { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	messages []published
	err      error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newFakeToken(c.err)
}

func testSample() (pmic.Sample, pmic.State) {
	return pmic.Sample{
			TemperatureC: 47.25,
			CurrentA:     6.5,
			Time:         time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		}, pmic.State{
			Enabled: true,
			Rails:   rail.Default(),
		}
}

func TestEncode(t *testing.T) {
	sample, state := testSample()
	data, err := Encode("sess-1", sample, state)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"session", "temperatureC", "currentA", "rails", "timestamp"} {
		if _, ok := got[key]; !ok {
			t.Errorf("payload missing %q: %s", key, data)
		}
	}
	rails := got["rails"].(map[string]any)
	if rails["vdd-cpu"] != float64(1100) {
		t.Errorf("rails = %v", rails)
	}
	if got["timestamp"] != "2026-05-01T12:00:00Z" {
		t.Errorf("timestamp = %v", got["timestamp"])
	}
}

func TestPublisher_ForSession(t *testing.T) {
	client := &fakeClient{}
	p := newPublisher(client, "", slog.Default())
	sample, state := testSample()

	if err := p.ForSession("sess-1").Publish(context.Background(), sample, state); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(client.messages) != 1 {
		t.Fatalf("published %d messages", len(client.messages))
	}
	msg := client.messages[0]
	if msg.topic != "pmic/telemetry" {
		t.Errorf("topic = %q", msg.topic)
	}
	if msg.qos != 0 {
		t.Errorf("qos = %d, want 0", msg.qos)
	}
	var decoded Message
	if err := json.Unmarshal(msg.payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Session != "sess-1" || decoded.TemperatureC != 47.25 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPublisher_Error(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	p := newPublisher(client, "lab/pmic", slog.Default())
	sample, state := testSample()

	err := p.Publish(context.Background(), "s", sample, state)
	if err == nil {
		t.Fatal("expected error")
	}
	if p.Topic() != "lab/pmic" {
		t.Errorf("Topic() = %q", p.Topic())
	}
}

func TestNew_RequiresBroker(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("expected error without broker")
	}
	p, err := New(Config{Broker: "tcp://127.0.0.1:1883", ClientID: "test"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Topic() != "pmic/telemetry" {
		t.Errorf("Topic() = %q", p.Topic())
	}
}
