package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads KEY=value pairs from the given .env files into the process
// environment. Variables already set are not overridden. Missing files
// are skipped.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// AssistantAPIKey returns the Gemini API key from the configured
// environment variable.
func (d *Dashboard) AssistantAPIKey() string {
	return os.Getenv(d.Spec.Assistant.APIKeyEnv)
}

// AuthToken returns the bearer token, preferring the inline value.
func (d *Dashboard) AuthToken() string {
	if d.Spec.Auth.Token != "" {
		return d.Spec.Auth.Token
	}
	if d.Spec.Auth.TokenEnv != "" {
		return os.Getenv(d.Spec.Auth.TokenEnv)
	}
	return ""
}

// MQTTPassword returns the broker password from the environment.
func (d *Dashboard) MQTTPassword() string {
	if d.Spec.MQTT == nil || d.Spec.MQTT.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(d.Spec.MQTT.PasswordEnv)
}
