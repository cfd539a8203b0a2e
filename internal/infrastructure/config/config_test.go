package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
cloud:
  base_url: "https://api.example.com/v1/"
  access_token: "token-from-file"
  ignore_locations: ["Holiday Home"]
  ignore_devices: ["Hall Sensor", "Garage Door"]
  discovery:
    max_attempts: 3
    base_delay: 2s
sync:
  poll:
    sensors: 30
  freshness: 10s
  offline_grace: 5m
events:
  enabled: true
  topic: "bus/events"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Cloud.AccessToken != "token-from-file" {
		t.Errorf("Cloud.AccessToken = %q, want %q", cfg.Cloud.AccessToken, "token-from-file")
	}
	if len(cfg.Cloud.IgnoreDevices) != 2 {
		t.Errorf("Cloud.IgnoreDevices = %v, want 2 entries", cfg.Cloud.IgnoreDevices)
	}
	if cfg.Cloud.Discovery.BaseDelay != 2*time.Second {
		t.Errorf("Cloud.Discovery.BaseDelay = %v, want 2s", cfg.Cloud.Discovery.BaseDelay)
	}
	if cfg.Sync.Poll.Sensors != 30 {
		t.Errorf("Sync.Poll.Sensors = %d, want 30", cfg.Sync.Poll.Sensors)
	}
	// Untouched keys keep their defaults.
	if cfg.Sync.Poll.Switches != 10 {
		t.Errorf("Sync.Poll.Switches = %d, want default 10", cfg.Sync.Poll.Switches)
	}
	if cfg.Sync.OfflineGrace != 5*time.Minute {
		t.Errorf("Sync.OfflineGrace = %v, want 5m", cfg.Sync.OfflineGrace)
	}
	if cfg.Sync.FailureThreshold != 5 {
		t.Errorf("Sync.FailureThreshold = %d, want default 5", cfg.Sync.FailureThreshold)
	}
	if !cfg.Events.Enabled || cfg.Events.Topic != "bus/events" {
		t.Errorf("Events = %+v, want enabled on bus/events", cfg.Events)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingTokenFailsValidation(t *testing.T) {
	t.Setenv("GRAYLOGIC_CLOUD_TOKEN", "")

	content := `
site:
  id: "test-site"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for missing access token, got nil")
	}
}

func TestLoad_TokenFromEnvironment(t *testing.T) {
	t.Setenv("GRAYLOGIC_CLOUD_TOKEN", "env-token")

	cfg, err := Load(writeConfig(t, "site:\n  id: \"s\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cloud.AccessToken != "env-token" {
		t.Errorf("Cloud.AccessToken = %q, want %q", cfg.Cloud.AccessToken, "env-token")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Cloud.AccessToken = "token"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing site ID", func(c *Config) { c.Site.ID = "" }, true},
		{"missing bridge ID", func(c *Config) { c.Bridge.ID = "" }, true},
		{"missing token", func(c *Config) { c.Cloud.AccessToken = "" }, true},
		{"missing base URL", func(c *Config) { c.Cloud.BaseURL = "" }, true},
		{"relative base URL", func(c *Config) { c.Cloud.BaseURL = "api/v1" }, true},
		{"zero request timeout", func(c *Config) { c.Cloud.RequestTimeout = 0 }, true},
		{"zero discovery attempts", func(c *Config) { c.Cloud.Discovery.MaxAttempts = 0 }, true},
		{"zero freshness", func(c *Config) { c.Sync.Freshness = 0 }, true},
		{"zero failure threshold", func(c *Config) { c.Sync.FailureThreshold = 0 }, true},
		{"negative cooldown", func(c *Config) { c.Sync.CommandCooldown = -time.Second }, true},
		{"events without topic", func(c *Config) { c.Events.Enabled = true; c.Events.Topic = "" }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"api disabled without secret", func(c *Config) { c.API.Enabled = false }, false},
		{"api without secret", func(c *Config) { c.API.Enabled = true }, true},
		{"api short secret", func(c *Config) { c.API.Enabled = true; c.API.Auth.JWTSecret = "short" }, true},
		{"api valid", func(c *Config) {
			c.API.Enabled = true
			c.API.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
		}, false},
		{"api invalid port", func(c *Config) {
			c.API.Enabled = true
			c.API.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
			c.API.Port = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetRequestTimeout(t *testing.T) {
	cfg := &Config{Cloud: CloudConfig{RequestTimeout: 12}}
	if got := cfg.GetRequestTimeout(); got != 12*time.Second {
		t.Errorf("GetRequestTimeout() = %v, want 12s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_CLOUD_TOKEN", "cloud-token")
	t.Setenv("GRAYLOGIC_CLOUD_BASE_URL", "https://cloud.example.com/")
	t.Setenv("GRAYLOGIC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_API_JWT_SECRET", "api-secret")

	applyEnvOverrides(cfg)

	if cfg.Cloud.AccessToken != "cloud-token" {
		t.Errorf("Cloud.AccessToken = %q, want %q", cfg.Cloud.AccessToken, "cloud-token")
	}
	if cfg.Cloud.BaseURL != "https://cloud.example.com/" {
		t.Errorf("Cloud.BaseURL = %q, want %q", cfg.Cloud.BaseURL, "https://cloud.example.com/")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.API.Auth.JWTSecret != "api-secret" {
		t.Errorf("API.Auth.JWTSecret = %q, want %q", cfg.API.Auth.JWTSecret, "api-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Sync.Freshness != 5*time.Second {
		t.Errorf("defaultConfig Sync.Freshness = %v, want 5s", cfg.Sync.Freshness)
	}
	if cfg.Sync.CommandCooldown != 20*time.Second {
		t.Errorf("defaultConfig Sync.CommandCooldown = %v, want 20s", cfg.Sync.CommandCooldown)
	}
	if cfg.Sync.OfflineGrace != 10*time.Minute {
		t.Errorf("defaultConfig Sync.OfflineGrace = %v, want 10m", cfg.Sync.OfflineGrace)
	}
	if cfg.Cloud.Discovery.MaxAttempts != 20 {
		t.Errorf("defaultConfig Cloud.Discovery.MaxAttempts = %d, want 20", cfg.Cloud.Discovery.MaxAttempts)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}
