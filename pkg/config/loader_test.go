package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pmicdash/pmicdash/pkg/alarm"
)

func TestParse_Dashboard(t *testing.T) {
	yaml := `
apiVersion: pmicdash.io/v1alpha1
kind: Dashboard
metadata:
  name: lab
spec:
  address: ":9090"
  telemetryInterval: 500ms
  logCapacity: 50
  initiallyEnabled: false
  logLevel: debug
  auth:
    apiBaseURL: https://login.example.test/api
    tokenEnv: PMICDASH_TOKEN
  assistant:
    model: gemini-2.0-flash
    timeout: 10s
  store:
    driver: sqlite
    path: /var/lib/pmicdash/settings.db
  mqtt:
    broker: tcp://localhost:1883
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	s := cfg.Spec
	if cfg.Metadata.Name != "lab" {
		t.Errorf("name = %q", cfg.Metadata.Name)
	}
	if s.Address != ":9090" {
		t.Errorf("address = %q", s.Address)
	}
	if s.TelemetryInterval.Duration() != 500*time.Millisecond {
		t.Errorf("telemetryInterval = %v", s.TelemetryInterval.Duration())
	}
	if s.LogCapacity != 50 {
		t.Errorf("logCapacity = %d", s.LogCapacity)
	}
	if s.InitiallyEnabled == nil || *s.InitiallyEnabled {
		t.Error("initiallyEnabled should be false")
	}
	if s.Assistant.Model != "gemini-2.0-flash" || s.Assistant.Timeout.Duration() != 10*time.Second {
		t.Errorf("assistant = %+v", s.Assistant)
	}
	if s.Assistant.APIKeyEnv != DefaultAssistantKeyEnv {
		t.Errorf("apiKeyEnv default not applied: %q", s.Assistant.APIKeyEnv)
	}
	if s.MQTT.Topic != DefaultMQTTTopic || s.MQTT.ClientID != DefaultMQTTClientID {
		t.Errorf("mqtt defaults not applied: %+v", s.MQTT)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	s := cfg.Spec
	if s.Address != ":8080" {
		t.Errorf("address = %q", s.Address)
	}
	if s.TelemetryInterval.Duration() != 2*time.Second {
		t.Errorf("telemetryInterval = %v", s.TelemetryInterval.Duration())
	}
	if s.LogCapacity != 100 {
		t.Errorf("logCapacity = %d", s.LogCapacity)
	}
	if !*s.InitiallyEnabled {
		t.Error("initiallyEnabled should default to true")
	}
	if s.Auth.APIBaseURL != DefaultAPIBaseURL {
		t.Errorf("apiBaseURL = %q", s.Auth.APIBaseURL)
	}
	if s.Assistant.Model != "gemini-2.5-flash" {
		t.Errorf("model = %q", s.Assistant.Model)
	}
	if s.Store.Driver != StoreMemory {
		t.Errorf("store driver = %q", s.Store.Driver)
	}
	if s.MQTT != nil {
		t.Error("mqtt should be off by default")
	}
	if cfg.AlarmPolicy() != nil {
		t.Error("expected nil policy for defaults")
	}
}

func TestParse_AlarmPolicyDocuments(t *testing.T) {
	yaml := `
apiVersion: pmicdash.io/v1alpha1
kind: Dashboard
metadata:
  name: lab
spec:
  alarms:
    - name: hot
      flag: overTemperature
      condition: "sample.temperature_c > 70.0"
---
apiVersion: pmicdash.io/v1alpha1
kind: AlarmPolicy
metadata:
  name: strict-current
spec:
  rules:
    - name: current
      flag: overCurrent
      condition: "sample.current_a > 6.5"
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	policy := cfg.AlarmPolicy()
	if policy == nil || len(policy.Rules) != 2 {
		t.Fatalf("policy = %+v", policy)
	}
	if policy.Rules[1].Flag != alarm.FlagOverCurrent {
		t.Errorf("second rule flag = %q", policy.Rules[1].Flag)
	}
	if _, err := alarm.NewEvaluator(policy); err != nil {
		t.Errorf("policy does not compile: %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "wrong api version",
			yaml:    "apiVersion: example.io/v1\nkind: Dashboard\n",
			wantErr: "unsupported apiVersion",
		},
		{
			name:    "missing kind",
			yaml:    "apiVersion: pmicdash.io/v1alpha1\nmetadata:\n  name: x\n",
			wantErr: "missing 'kind'",
		},
		{
			name:    "unknown kind",
			yaml:    "apiVersion: pmicdash.io/v1alpha1\nkind: Pool\n",
			wantErr: "unknown kind",
		},
		{
			name:    "two dashboards",
			yaml:    "kind: Dashboard\n---\nkind: Dashboard\n",
			wantErr: "multiple Dashboard",
		},
		{
			name:    "empty",
			yaml:    "",
			wantErr: "no Dashboard",
		},
		{
			name:    "bad duration",
			yaml:    "kind: Dashboard\nspec:\n  telemetryInterval: soon\n",
			wantErr: "invalid duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *DashboardSpec)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(s *DashboardSpec) {}},
		{
			name:    "interval too short",
			mutate:  func(s *DashboardSpec) { s.TelemetryInterval = Duration(time.Millisecond) },
			wantErr: "telemetryInterval",
		},
		{
			name:    "negative log capacity",
			mutate:  func(s *DashboardSpec) { s.LogCapacity = -1 },
			wantErr: "logCapacity",
		},
		{
			name:    "bad log level",
			mutate:  func(s *DashboardSpec) { s.LogLevel = "verbose" },
			wantErr: "logLevel",
		},
		{
			name:    "sqlite without path",
			mutate:  func(s *DashboardSpec) { s.Store.Driver = StoreSQLite },
			wantErr: "store.path",
		},
		{
			name:    "unknown store",
			mutate:  func(s *DashboardSpec) { s.Store.Driver = "redis" },
			wantErr: "unknown store driver",
		},
		{
			name: "duplicate user",
			mutate: func(s *DashboardSpec) {
				s.Auth.Users = []UserSpec{{Username: "a", PasswordHash: "h"}, {Username: "a", PasswordHash: "h"}}
			},
			wantErr: "duplicate auth user",
		},
		{
			name:    "user without hash",
			mutate:  func(s *DashboardSpec) { s.Auth.Users = []UserSpec{{Username: "a"}} },
			wantErr: "passwordHash",
		},
		{
			name: "bad alarm expression",
			mutate: func(s *DashboardSpec) {
				s.Alarms = []alarm.Rule{{Name: "x", Flag: alarm.FlagOverCurrent, Condition: ""}}
			},
			wantErr: "invalid alarms",
		},
		{
			name:    "mqtt without broker",
			mutate:  func(s *DashboardSpec) { s.MQTT = &MQTTSpec{} },
			wantErr: "mqtt.broker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg.Spec)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	content := "apiVersion: pmicdash.io/v1alpha1\nkind: Dashboard\nspec:\n  address: \":7070\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Spec.Address != ":7070" {
		t.Errorf("address = %q", cfg.Spec.Address)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDuration_RoundTrip(t *testing.T) {
	type wrapper struct {
		D Duration `yaml:"d"`
	}
	in := wrapper{D: Duration(90 * time.Second)}

	data, err := yaml.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "1m30s") {
		t.Errorf("marshaled = %q", data)
	}

	var out wrapper
	if err := yaml.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.D != in.D {
		t.Errorf("round trip = %v, want %v", out.D.Duration(), in.D.Duration())
	}
}
