package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PMICDASH_TEST_KEY=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PMICDASH_TEST_KEY", "")
	os.Unsetenv("PMICDASH_TEST_KEY")

	if err := LoadEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := os.Getenv("PMICDASH_TEST_KEY"); got != "from-file" {
		t.Errorf("PMICDASH_TEST_KEY = %q", got)
	}
}

func TestSecrets(t *testing.T) {
	t.Setenv("PMICDASH_TEST_GEMINI", "gem-key")
	t.Setenv("PMICDASH_TEST_TOKEN", "tok")
	t.Setenv("PMICDASH_TEST_MQTT", "mqtt-pw")

	cfg := Default()
	cfg.Spec.Assistant.APIKeyEnv = "PMICDASH_TEST_GEMINI"
	cfg.Spec.Auth.TokenEnv = "PMICDASH_TEST_TOKEN"
	cfg.Spec.MQTT = &MQTTSpec{Broker: "tcp://b:1883", PasswordEnv: "PMICDASH_TEST_MQTT"}

	if got := cfg.AssistantAPIKey(); got != "gem-key" {
		t.Errorf("AssistantAPIKey() = %q", got)
	}
	if got := cfg.AuthToken(); got != "tok" {
		t.Errorf("AuthToken() = %q", got)
	}
	if got := cfg.MQTTPassword(); got != "mqtt-pw" {
		t.Errorf("MQTTPassword() = %q", got)
	}

	cfg.Spec.Auth.Token = "inline"
	if got := cfg.AuthToken(); got != "inline" {
		t.Errorf("inline token should win, got %q", got)
	}
}
