// Package mqttpub forwards simulated telemetry to an MQTT broker.
package mqttpub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pmicdash/pmicdash/pkg/pmic"
	"github.com/pmicdash/pmicdash/pkg/rail"
)

const (
	defaultTopic   = "pmic/telemetry"
	publishTimeout = 5 * time.Second
	qosAtMostOnce  = 0
)

// Config holds broker settings.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// Message is the JSON payload published for each sample.
type Message struct {
	Session      string       `json:"session"`
	TemperatureC float64      `json:"temperatureC"`
	CurrentA     float64      `json:"currentA"`
	Rails        rail.Profile `json:"rails"`
	Timestamp    time.Time    `json:"timestamp"`
}

// publisher is the subset of mqtt.Client used here.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher publishes telemetry samples. Use ForSession to get a
// pmic.TelemetrySink for one dashboard session.
type Publisher struct {
	client publisher
	conn   mqtt.Client
	topic  string
	logger *slog.Logger
}

// New creates a publisher. Call Connect before publishing.
func New(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("broker is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "mqtt-publisher"))

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", slog.String("error", err.Error()))
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected", slog.String("broker", cfg.Broker))
	})

	conn := mqtt.NewClient(opts)
	p := newPublisher(conn, cfg.Topic, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(client publisher, topic string, logger *slog.Logger) *Publisher {
	if topic == "" {
		topic = defaultTopic
	}
	return &Publisher{client: client, topic: topic, logger: logger}
}

// Connect dials the broker and waits for the first connection.
func (p *Publisher) Connect() error {
	if p.conn == nil {
		return nil
	}
	if token := p.conn.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}

// Topic returns the topic samples are published to.
func (p *Publisher) Topic() string {
	return p.topic
}

// ForSession returns a sink that tags samples with session.
func (p *Publisher) ForSession(session string) pmic.TelemetrySink {
	return &sessionSink{publisher: p, session: session}
}

// Publish sends one sample at QoS 0.
func (p *Publisher) Publish(ctx context.Context, session string, sample pmic.Sample, state pmic.State) error {
	payload, err := Encode(session, sample, state)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, qosAtMostOnce, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("timed out publishing to %s", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

// Encode builds the JSON payload for a sample.
func Encode(session string, sample pmic.Sample, state pmic.State) ([]byte, error) {
	data, err := json.Marshal(Message{
		Session:      session,
		TemperatureC: sample.TemperatureC,
		CurrentA:     sample.CurrentA,
		Rails:        state.Rails,
		Timestamp:    sample.Time,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal telemetry: %w", err)
	}
	return data, nil
}

type sessionSink struct {
	publisher *Publisher
	session   string
}

func (s *sessionSink) Publish(ctx context.Context, sample pmic.Sample, state pmic.State) error {
	return s.publisher.Publish(ctx, s.session, sample, state)
}
