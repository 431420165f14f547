package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pmicdash/pmicdash/pkg/alarm"
)

// Load reads configuration from a file path.
func Load(path string) (*Dashboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes. A file holds exactly one
// Dashboard and any number of AlarmPolicy documents, separated by ---.
// Defaults are applied to the result.
func Parse(data []byte) (*Dashboard, error) {
	var dash *Dashboard
	var policies []AlarmPolicy

	decoder := yaml.NewDecoder(bytes.NewReader(data))

	for {
		var raw map[string]any
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode YAML document: %w", err)
		}

		if raw == nil {
			continue
		}

		kind, _ := raw["kind"].(string)
		apiVersion, _ := raw["apiVersion"].(string)

		if apiVersion != "" && apiVersion != APIVersion {
			return nil, fmt.Errorf("unsupported apiVersion: %s (expected %s)", apiVersion, APIVersion)
		}

		docBytes, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to re-marshal document: %w", err)
		}

		switch kind {
		case KindDashboard:
			var d Dashboard
			if err := yaml.Unmarshal(docBytes, &d); err != nil {
				return nil, fmt.Errorf("failed to parse Dashboard: %w", err)
			}
			if dash != nil {
				return nil, fmt.Errorf("multiple Dashboard resources found")
			}
			dash = &d

		case KindAlarmPolicy:
			var p AlarmPolicy
			if err := yaml.Unmarshal(docBytes, &p); err != nil {
				return nil, fmt.Errorf("failed to parse AlarmPolicy: %w", err)
			}
			policies = append(policies, p)

		case "":
			return nil, fmt.Errorf("document missing 'kind' field")

		default:
			return nil, fmt.Errorf("unknown kind: %s", kind)
		}
	}

	if dash == nil {
		if len(policies) == 0 {
			return nil, fmt.Errorf("no Dashboard resource found")
		}
		dash = &Dashboard{TypeMeta: TypeMeta{APIVersion: APIVersion, Kind: KindDashboard}}
	}
	for _, p := range policies {
		dash.Spec.Alarms = append(dash.Spec.Alarms, p.Spec.Rules...)
	}

	dash.WithDefaults()
	return dash, nil
}

// Default returns a dashboard configuration with every default applied.
func Default() *Dashboard {
	d := &Dashboard{
		TypeMeta: TypeMeta{APIVersion: APIVersion, Kind: KindDashboard},
		Metadata: ObjectMeta{Name: "default"},
	}
	d.WithDefaults()
	return d
}

// WithDefaults fills unset fields and returns d.
func (d *Dashboard) WithDefaults() *Dashboard {
	s := &d.Spec
	if s.Address == "" {
		s.Address = DefaultAddress
	}
	if s.TelemetryInterval == 0 {
		s.TelemetryInterval = Duration(DefaultTelemetryInterval)
	}
	if s.LogCapacity == 0 {
		s.LogCapacity = DefaultLogCapacity
	}
	if s.InitiallyEnabled == nil {
		enabled := true
		s.InitiallyEnabled = &enabled
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.Auth.APIBaseURL == "" {
		s.Auth.APIBaseURL = DefaultAPIBaseURL
	}
	if s.Assistant.Model == "" {
		s.Assistant.Model = DefaultAssistantModel
	}
	if s.Assistant.APIKeyEnv == "" {
		s.Assistant.APIKeyEnv = DefaultAssistantKeyEnv
	}
	if s.Assistant.Timeout == 0 {
		s.Assistant.Timeout = Duration(DefaultAssistantTimeout)
	}
	if s.Store.Driver == "" {
		s.Store.Driver = DefaultStoreDriver
	}
	if s.MQTT != nil {
		if s.MQTT.Topic == "" {
			s.MQTT.Topic = DefaultMQTTTopic
		}
		if s.MQTT.ClientID == "" {
			s.MQTT.ClientID = DefaultMQTTClientID
		}
	}
	return d
}

// Validate checks the configuration for errors.
func (d *Dashboard) Validate() error {
	s := d.Spec

	if s.TelemetryInterval.Duration() < 100*time.Millisecond {
		return fmt.Errorf("telemetryInterval must be at least 100ms, got %s", s.TelemetryInterval.Duration())
	}
	if s.LogCapacity < 1 {
		return fmt.Errorf("logCapacity must be >= 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[s.LogLevel] {
		return fmt.Errorf("invalid logLevel %q", s.LogLevel)
	}

	seen := make(map[string]bool)
	for i, u := range s.Auth.Users {
		if u.Username == "" {
			return fmt.Errorf("auth.users[%d] must have username", i)
		}
		if u.PasswordHash == "" {
			return fmt.Errorf("auth.users[%d] (%s) must have passwordHash", i, u.Username)
		}
		if seen[u.Username] {
			return fmt.Errorf("duplicate auth user %q", u.Username)
		}
		seen[u.Username] = true
	}

	switch s.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if s.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", s.Store.Driver)
	}

	if len(s.Alarms) > 0 {
		if err := (&alarm.Policy{Rules: s.Alarms}).Validate(); err != nil {
			return fmt.Errorf("invalid alarms: %w", err)
		}
	}

	if s.MQTT != nil && s.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is set")
	}

	return nil
}

// AlarmPolicy returns the configured alarm rules, or nil for the defaults.
func (d *Dashboard) AlarmPolicy() *alarm.Policy {
	if len(d.Spec.Alarms) == 0 {
		return nil
	}
	return &alarm.Policy{Rules: d.Spec.Alarms}
}

// UnmarshalYAML implements custom YAML unmarshaling for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements custom YAML marshaling for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	if d == 0 {
		return "", nil
	}
	return time.Duration(d).String(), nil
}
