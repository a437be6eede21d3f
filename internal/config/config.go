package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/baegaepro/pillow-client/pkg/crypto"
	"github.com/baegaepro/pillow-client/pkg/wifi"
)

// Config represents the client configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	API          APIConfig          `yaml:"api"`
	Device       DeviceConfig       `yaml:"device"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Storage      StorageConfig      `yaml:"storage"`
	NATS         NATSConfig         `yaml:"nats"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Sandbox      SandboxConfig      `yaml:"sandbox"`
	JWT          JWTConfig          `yaml:"jwt"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig names the running binary
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents the backend REST endpoint
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DeviceConfig represents the device access point endpoint
type DeviceConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// ServerURL is handed to the device so it knows where to report
	ServerURL string `yaml:"server_url"`
}

// ProvisioningConfig drives the registration flow
type ProvisioningConfig struct {
	DeviceType       string        `yaml:"device_type"`
	Location         string        `yaml:"location"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	PollAttempts     int           `yaml:"poll_attempts"`
	NetworkPrefixes  []string      `yaml:"network_prefixes"`
	RescanAfter      time.Duration `yaml:"rescan_after"`
	SecondaryConnect bool          `yaml:"secondary_connect"` // join the device AP alongside the current network
}

// StorageConfig selects the local session store
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory | sqlite | postgres
	DSN    string `yaml:"dsn"`
	// SealKey is a hex AES key; when set, stored WiFi credentials are encrypted
	SealKey string `yaml:"seal_key"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	ClientName        string        `yaml:"client_name"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
}

// MQTTConfig represents MQTT configuration
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// WebhookConfig represents an HTTP sink for provisioning transitions
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

// SandboxConfig represents the development backend
type SandboxConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// CompletionPolls is how many status polls a pushed code stays "connected"
	CompletionPolls int           `yaml:"completion_polls"`
	CodeTTL         time.Duration `yaml:"code_ttl"`
	// DeviceID is what the simulated device access point reports
	DeviceID string `yaml:"device_id"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration usable without any file
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load loads configuration from file. An empty filename yields defaults.
func Load(filename string) (*Config, error) {
	var data []byte
	if filename != "" {
		var err error
		data, err = os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes, .env and the environment
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	loadDotEnv()
	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv reads .env without overriding variables already set
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env")
	}
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PILLOW_API_URL"); v != "" {
		c.API.BaseURL = v
	}

	if v := os.Getenv("PILLOW_DEVICE_URL"); v != "" {
		c.Device.BaseURL = v
	}

	if v := os.Getenv("PILLOW_STORE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}

	if v := os.Getenv("PILLOW_STORE_DSN"); v != "" {
		c.Storage.DSN = v
	}

	if v := os.Getenv("PILLOW_SEAL_KEY"); v != "" {
		c.Storage.SealKey = v
	}

	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}

	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}

	if v := os.Getenv("PILLOW_WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "pillow-client"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://pillow.jiw.app"
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.Timeout <= 0 {
		c.API.Timeout = 10 * time.Second
	}

	if c.Device.BaseURL == "" {
		c.Device.BaseURL = "http://192.168.4.1"
	}
	c.Device.BaseURL = strings.TrimRight(c.Device.BaseURL, "/")
	if c.Device.Timeout <= 0 {
		c.Device.Timeout = 5 * time.Second
	}
	if c.Device.ServerURL == "" {
		c.Device.ServerURL = c.API.BaseURL
	}

	if c.Provisioning.DeviceType == "" {
		c.Provisioning.DeviceType = "pillow"
	}
	if c.Provisioning.Location == "" {
		c.Provisioning.Location = "bedroom"
	}
	if c.Provisioning.PollInterval <= 0 {
		c.Provisioning.PollInterval = time.Second
	}
	if c.Provisioning.PollAttempts <= 0 {
		c.Provisioning.PollAttempts = 60
	}
	if len(c.Provisioning.NetworkPrefixes) == 0 {
		c.Provisioning.NetworkPrefixes = append([]string(nil), wifi.DefaultPrefixes...)
	}
	if c.Provisioning.RescanAfter <= 0 {
		c.Provisioning.RescanAfter = 15 * time.Second
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	if c.NATS.ClientName == "" {
		c.NATS.ClientName = c.Server.Name
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectInterval <= 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "pillow.provisioning"
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.Server.Name
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "pillow/provisioning"
	}
	if c.MQTT.ConnectTimeout <= 0 {
		c.MQTT.ConnectTimeout = 5 * time.Second
	}

	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = 5 * time.Second
	}

	if c.Sandbox.Host == "" {
		c.Sandbox.Host = "0.0.0.0"
	}
	if c.Sandbox.Port == 0 {
		c.Sandbox.Port = 8080
	}
	if c.Sandbox.CompletionPolls <= 0 {
		c.Sandbox.CompletionPolls = 2
	}
	if c.Sandbox.CodeTTL <= 0 {
		c.Sandbox.CodeTTL = 300 * time.Second
	}
	if c.Sandbox.DeviceID == "" {
		c.Sandbox.DeviceID = "7F2A"
	}

	if c.JWT.Secret == "" {
		c.JWT.Secret = "sandbox-secret"
	}
	if c.JWT.AccessTokenTTL <= 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL <= 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks values that have no sensible default
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver: unsupported driver %q", c.Storage.Driver)
	}

	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn: required for postgres")
	}

	if c.Storage.SealKey != "" {
		if _, err := crypto.ParseKey(c.Storage.SealKey); err != nil {
			return fmt.Errorf("storage.seal_key: %w", err)
		}
	}

	if c.Webhook.URL != "" {
		u, err := url.Parse(c.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook.url: must be an absolute http(s) URL")
		}
	}

	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos: must be 0, 1 or 2")
	}

	for _, p := range c.Provisioning.NetworkPrefixes {
		if p == "" {
			return fmt.Errorf("provisioning.network_prefixes: empty prefix")
		}
	}

	return nil
}

// PrintConfigSummary prints the effective configuration
func (c *Config) PrintConfigSummary() {
	fmt.Printf("=== Pillow Client Configuration ===\n")
	fmt.Printf("Name: %s %s\n", c.Server.Name, c.Server.Version)
	fmt.Printf("API: %s (timeout %s)\n", c.API.BaseURL, c.API.Timeout)
	fmt.Printf("Device AP: %s (timeout %s)\n", c.Device.BaseURL, c.Device.Timeout)
	fmt.Printf("Provisioning: type=%s poll=%s x%d prefixes=%v\n",
		c.Provisioning.DeviceType,
		c.Provisioning.PollInterval,
		c.Provisioning.PollAttempts,
		c.Provisioning.NetworkPrefixes)
	fmt.Printf("Storage: %s\n", c.Storage.Driver)

	if c.NATS.URL != "" {
		fmt.Printf("NATS: %s (%s.*)\n", c.NATS.URL, c.NATS.SubjectPrefix)
	}
	if c.MQTT.Broker != "" {
		fmt.Printf("MQTT: %s (%s/#, qos %d)\n", c.MQTT.Broker, c.MQTT.TopicPrefix, c.MQTT.QoS)
	}
	if c.Webhook.URL != "" {
		fmt.Printf("Webhook: %s\n", c.Webhook.URL)
	}

	fmt.Printf("Log Level: %s\n", c.Log.Level)
	fmt.Printf("===================================\n")
}
