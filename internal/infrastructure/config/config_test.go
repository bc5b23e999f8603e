package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-fleet"
  timezone: "Europe/Warsaw"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
telemetry:
  offline_threshold: 90
automation:
  circadian_hysteresis: 15
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-fleet" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-fleet")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.Telemetry.OfflineAfter() != 90*time.Second {
		t.Errorf("OfflineAfter() = %v, want 90s", cfg.Telemetry.OfflineAfter())
	}
	// Unset values keep their defaults.
	if cfg.Telemetry.LivenessEvery() != 20*time.Second {
		t.Errorf("LivenessEvery() = %v, want 20s", cfg.Telemetry.LivenessEvery())
	}
	if cfg.Automation.CircadianHysteresis != 15 {
		t.Errorf("CircadianHysteresis = %d, want 15", cfg.Automation.CircadianHysteresis)
	}
	if cfg.Automation.BrightnessHysteresis != 5 {
		t.Errorf("BrightnessHysteresis = %d, want 5", cfg.Automation.BrightnessHysteresis)
	}
	if cfg.Location().String() != "Europe/Warsaw" {
		t.Errorf("Location() = %q, want Europe/Warsaw", cfg.Location())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-fleet"
security:
  jwt:
    secret: "short"
`)

	t.Setenv("LAMPFLEET_JWT_SECRET", validJWTSecret)
	t.Setenv("LAMPFLEET_MQTT_HOST", "mqtt.example")
	t.Setenv("LAMPFLEET_TELEMETRY_OFFLINE_THRESHOLD", "300")
	t.Setenv("LAMPFLEET_API_PORT", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Security.JWT.Secret != validJWTSecret {
		t.Errorf("JWT secret not overridden from environment")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example")
	}
	if cfg.Telemetry.OfflineThreshold != 300 {
		t.Errorf("OfflineThreshold = %d, want 300", cfg.Telemetry.OfflineThreshold)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080 when env value is not numeric", cfg.API.Port)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = validJWTSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site id", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "bad timezone", mutate: func(c *Config) { c.Site.Timezone = "Mars/Olympus" }, wantErr: "site.timezone"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid qos", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "invalid port", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "influx without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: "influxdb.url"},
		{name: "missing jwt secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: "security.jwt.secret"},
		{name: "short jwt secret", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: "at least 32"},
		{name: "zero offline threshold", mutate: func(c *Config) { c.Telemetry.OfflineThreshold = 0 }, wantErr: "offline_threshold"},
		{name: "zero automation interval", mutate: func(c *Config) { c.Automation.Interval = 0 }, wantErr: "automation.interval"},
		{name: "negative hysteresis", mutate: func(c *Config) { c.Automation.BrightnessHysteresis = -1 }, wantErr: "hysteresis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() on empty config should fail")
	}
	if got := strings.Count(err.Error(), ";"); got < 4 {
		t.Errorf("Validate() joined %d errors, want several: %v", got+1, err)
	}
}
