package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minJWTSecretLength is the shortest accepted API signing secret.
const minJWTSecretLength = 32

// Config is the root configuration structure for the Gray Logic cloud bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Cloud    CloudConfig    `yaml:"cloud"`
	Sync     SyncConfig     `yaml:"sync"`
	Events   EventsConfig   `yaml:"events"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// BridgeConfig identifies this bridge on the MQTT bus.
type BridgeConfig struct {
	ID             string        `yaml:"id"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// CloudConfig contains the remote device API settings.
type CloudConfig struct {
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`

	// RequestTimeout bounds each REST call, in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// IgnoreLocations lists location names whose devices are skipped.
	// Matching is case-insensitive.
	IgnoreLocations []string `yaml:"ignore_locations"`

	// IgnoreDevices lists device labels that are skipped.
	// Matching is case-insensitive.
	IgnoreDevices []string `yaml:"ignore_devices"`

	// UnregisterAll drops every previously registered accessory on startup
	// before discovery re-registers the current inventory.
	UnregisterAll bool `yaml:"unregister_all"`

	Discovery DiscoveryConfig `yaml:"discovery"`
}

// DiscoveryConfig controls the retry schedule of the startup inventory fetch.
type DiscoveryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// SyncConfig contains device synchronisation timing.
type SyncConfig struct {
	Poll PollConfig `yaml:"poll"`

	// Freshness is how long a successful status read is reused.
	Freshness time.Duration `yaml:"freshness"`

	// FailureThreshold is the number of consecutive status-read failures
	// after which a device is marked offline.
	FailureThreshold int `yaml:"failure_threshold"`

	// OfflineGrace is the minimum offline time before a recovery check.
	OfflineGrace time.Duration `yaml:"offline_grace"`

	// CommandCooldown suppresses poll reads after a command completes.
	CommandCooldown time.Duration `yaml:"command_cooldown"`

	// MaxJitter is the upper bound of the random delay added to each poll period.
	MaxJitter time.Duration `yaml:"max_jitter"`
}

// PollConfig holds poll periods per service family, in seconds.
// Zero disables polling for that family.
type PollConfig struct {
	Sensors      int `yaml:"sensors"`
	Switches     int `yaml:"switches"`
	Locks        int `yaml:"locks"`
	Doors        int `yaml:"doors"`
	WindowShades int `yaml:"window_shades"`
	Thermostats  int `yaml:"thermostats"`
}

// EventsConfig contains push-event channel settings.
// When enabled, device polling is switched off.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the local HTTP API settings.
type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	CORS      CORSConfig      `yaml:"cors"`
	Auth      APIAuthConfig   `yaml:"auth"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// TimeoutConfig contains HTTP timeout settings, in seconds.
type TimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// An empty AllowedOrigins list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APIAuthConfig contains bearer token settings. Tokens are HS256 JWTs
// signed with JWTSecret, normally issued by Gray Logic Core.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// WebSocketConfig contains WebSocket settings.
type WebSocketConfig struct {
	PingInterval   int `yaml:"ping_interval"` // seconds
	PongTimeout    int `yaml:"pong_timeout"`  // seconds
	MaxMessageSize int `yaml:"max_message_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_CLOUD_TOKEN, GRAYLOGIC_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic",
			Timezone: "UTC",
		},
		Bridge: BridgeConfig{
			ID:             "smartthings",
			HealthInterval: 30 * time.Second,
		},
		Cloud: CloudConfig{
			BaseURL:        "https://api.smartthings.com/v1/",
			RequestTimeout: 15,
			Discovery: DiscoveryConfig{
				MaxAttempts: 20,
				BaseDelay:   10 * time.Second,
			},
		},
		Sync: SyncConfig{
			Poll: PollConfig{
				Sensors:      5,
				Switches:     10,
				Locks:        10,
				Doors:        15,
				WindowShades: 10,
				Thermostats:  15,
			},
			Freshness:        5 * time.Second,
			FailureThreshold: 5,
			OfflineGrace:     10 * time.Minute,
			CommandCooldown:  20 * time.Second,
			MaxJitter:        time.Second,
		},
		Events: EventsConfig{
			Topic: "graylogic/events/smartthings",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-cloud.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-cloud",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: TimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  120,
			},
			WebSocket: WebSocketConfig{
				PingInterval:   30,
				PongTimeout:    10,
				MaxMessageSize: 8192,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud
	if v := os.Getenv("GRAYLOGIC_CLOUD_TOKEN"); v != "" {
		cfg.Cloud.AccessToken = v
	}
	if v := os.Getenv("GRAYLOGIC_CLOUD_BASE_URL"); v != "" {
		cfg.Cloud.BaseURL = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	// Cloud validation
	if c.Cloud.BaseURL == "" {
		errs = append(errs, "cloud.base_url is required")
	} else if u, err := url.Parse(c.Cloud.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "cloud.base_url must be an absolute URL")
	}
	if c.Cloud.AccessToken == "" {
		errs = append(errs, "cloud.access_token is required (set GRAYLOGIC_CLOUD_TOKEN environment variable)")
	}
	if c.Cloud.RequestTimeout < 1 {
		errs = append(errs, "cloud.request_timeout must be at least 1 second")
	}
	if c.Cloud.Discovery.MaxAttempts < 1 {
		errs = append(errs, "cloud.discovery.max_attempts must be at least 1")
	}
	if c.Cloud.Discovery.BaseDelay < 0 {
		errs = append(errs, "cloud.discovery.base_delay must not be negative")
	}

	// Sync validation
	if c.Sync.Freshness <= 0 {
		errs = append(errs, "sync.freshness must be positive")
	}
	if c.Sync.FailureThreshold < 1 {
		errs = append(errs, "sync.failure_threshold must be at least 1")
	}
	if c.Sync.OfflineGrace < 0 || c.Sync.CommandCooldown < 0 || c.Sync.MaxJitter < 0 {
		errs = append(errs, "sync durations must not be negative")
	}

	if c.Events.Enabled && c.Events.Topic == "" {
		errs = append(errs, "events.topic is required when events are enabled")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		if len(c.API.Auth.JWTSecret) < minJWTSecretLength {
			errs = append(errs, fmt.Sprintf("api.auth.jwt_secret must be at least %d characters (set GRAYLOGIC_API_JWT_SECRET environment variable)", minJWTSecretLength))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRequestTimeout returns the cloud request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Cloud.RequestTimeout) * time.Second
}
