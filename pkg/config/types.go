package config

import (
	"time"

	"github.com/pmicdash/pmicdash/pkg/alarm"
)

const (
	APIVersion = "pmicdash.io/v1alpha1"

	KindDashboard   = "Dashboard"
	KindAlarmPolicy = "AlarmPolicy"
)

// Defaults applied by WithDefaults.
const (
	DefaultAddress           = ":8080"
	DefaultTelemetryInterval = 2 * time.Second
	DefaultLogCapacity       = 100
	DefaultLogLevel          = "info"
	DefaultAPIBaseURL        = "https://thai-dev-pmic-app.vercel.app/api"
	DefaultAssistantModel    = "gemini-2.5-flash"
	DefaultAssistantKeyEnv   = "GEMINI_API_KEY"
	DefaultAssistantTimeout  = 60 * time.Second
	DefaultStoreDriver       = StoreMemory
	DefaultMQTTTopic         = "pmic/telemetry"
	DefaultMQTTClientID      = "pmicdash"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// TypeMeta describes the API version and kind of a resource.
type TypeMeta struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`
	Kind       string `yaml:"kind" json:"kind"`
}

// ObjectMeta contains metadata that all resources have.
type ObjectMeta struct {
	Name   string            `yaml:"name" json:"name"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Dashboard configures the dashboard server.
type Dashboard struct {
	TypeMeta `yaml:",inline" json:",inline"`
	Metadata ObjectMeta    `yaml:"metadata" json:"metadata"`
	Spec     DashboardSpec `yaml:"spec" json:"spec"`
}

// DashboardSpec defines the dashboard settings.
type DashboardSpec struct {
	Address           string   `yaml:"address,omitempty" json:"address,omitempty"` // Listen address (default: :8080)
	TelemetryInterval Duration `yaml:"telemetryInterval,omitempty" json:"telemetryInterval,omitempty"`
	LogCapacity       int      `yaml:"logCapacity,omitempty" json:"logCapacity,omitempty"`

	// InitiallyEnabled is the PMIC enable switch for new sessions. Nil
	// means enabled.
	InitiallyEnabled *bool  `yaml:"initiallyEnabled,omitempty" json:"initiallyEnabled,omitempty"`
	LogLevel         string `yaml:"logLevel,omitempty" json:"logLevel,omitempty"` // debug, info, warn, error

	Auth      AuthSpec      `yaml:"auth,omitempty" json:"auth,omitempty"`
	Assistant AssistantSpec `yaml:"assistant,omitempty" json:"assistant,omitempty"`
	Store     StoreSpec     `yaml:"store,omitempty" json:"store,omitempty"`
	Alarms    []alarm.Rule  `yaml:"alarms,omitempty" json:"alarms,omitempty"`
	MQTT      *MQTTSpec     `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
}

// AuthSpec configures login and API authentication.
type AuthSpec struct {
	// APIBaseURL is the default login API, used until the operator saves
	// another on the login page.
	APIBaseURL string `yaml:"apiBaseURL,omitempty" json:"apiBaseURL,omitempty"`

	// Token is the pre-shared bearer token for API and CLI clients.
	// Empty disables bearer authentication.
	Token    string `yaml:"token,omitempty" json:"token,omitempty"`
	TokenEnv string `yaml:"tokenEnv,omitempty" json:"tokenEnv,omitempty"`

	// Users, if set, replaces the upstream login API with local bcrypt
	// password hashes.
	Users []UserSpec `yaml:"users,omitempty" json:"users,omitempty"`

	SecureCookies bool `yaml:"secureCookies,omitempty" json:"secureCookies,omitempty"`
}

// UserSpec is one static login.
type UserSpec struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"passwordHash" json:"passwordHash"`
}

// AssistantSpec configures the Gemini backend.
type AssistantSpec struct {
	Model             string   `yaml:"model,omitempty" json:"model,omitempty"`
	BaseURL           string   `yaml:"baseURL,omitempty" json:"baseURL,omitempty"`
	APIKeyEnv         string   `yaml:"apiKeyEnv,omitempty" json:"apiKeyEnv,omitempty"` // Environment variable name
	Timeout           Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	SystemInstruction string   `yaml:"systemInstruction,omitempty" json:"systemInstruction,omitempty"`
	Disabled          bool     `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// StoreSpec selects where login settings are remembered.
type StoreSpec struct {
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"` // memory, sqlite
	Path   string `yaml:"path,omitempty" json:"path,omitempty"`
}

// MQTTSpec enables publishing telemetry to a broker.
type MQTTSpec struct {
	Broker      string `yaml:"broker" json:"broker"` // e.g. tcp://localhost:1883
	Topic       string `yaml:"topic,omitempty" json:"topic,omitempty"`
	ClientID    string `yaml:"clientID,omitempty" json:"clientID,omitempty"`
	Username    string `yaml:"username,omitempty" json:"username,omitempty"`
	PasswordEnv string `yaml:"passwordEnv,omitempty" json:"passwordEnv,omitempty"`
}

// AlarmPolicy is a standalone alarm rule set. Its rules are appended to
// the dashboard's spec.alarms.
type AlarmPolicy struct {
	TypeMeta `yaml:",inline" json:",inline"`
	Metadata ObjectMeta   `yaml:"metadata" json:"metadata"`
	Spec     alarm.Policy `yaml:"spec" json:"spec"`
}

// Duration wraps time.Duration for YAML/JSON marshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
