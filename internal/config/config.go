// Package config loads and validates the newssync YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when a field is unset.
const (
	DefaultKeepMonths     = 3
	DefaultSyncInterval   = 15 * time.Minute
	DefaultRequestTimeout = 20 * time.Second
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// ServerURL is the base URL of the Nextcloud instance (e.g. "https://cloud.example.com").
	ServerURL string `yaml:"server_url"`

	// Username is the Nextcloud login name.
	Username string `yaml:"username"`

	// Password is optional. When empty it is read from the OS keyring.
	Password string `yaml:"password,omitempty"`

	// KeepMonths is how long read, unstarred items are kept locally.
	// Defaults to 3 when unset; 0 disables pruning.
	KeepMonths *int `yaml:"keep_months,omitempty"`

	// SyncInterval controls how often the daemon syncs.
	// Minimum 1m, maximum 24h. Defaults to 15m if unset.
	SyncInterval time.Duration `yaml:"sync_interval"`

	// DBPath is the SQLite state database. Defaults to
	// ~/.local/share/newssync/state.db.
	DBPath string `yaml:"db_path,omitempty"`

	// BadgeFile, when set, receives the unread count after every change.
	BadgeFile string `yaml:"badge_file,omitempty"`

	// RequestTimeout bounds each HTTP request. Defaults to 20s.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`

	// Background makes the daemon run pull-only passes after the first one.
	Background bool `yaml:"background,omitempty"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "newssync".
	ServiceName string `yaml:"service_name"`

	// Headers are sent as gRPC metadata on every OTLP request, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Retention returns the effective keep_months. Zero means pruning is off.
func (c *Config) Retention() int {
	if c.KeepMonths == nil {
		return DefaultKeepMonths
	}
	if *c.KeepMonths < 0 {
		return 0
	}
	return *c.KeepMonths
}

// DefaultPath returns the default config file path: ~/.config/newssync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "newssync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Write validates cfg and saves it to path with owner-only permissions,
// creating the parent directory if needed.
func Write(path string, cfg *Config) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// validate checks that all required fields are present and well-formed and
// fills in defaults.
func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	u, err := url.ParseRequestURI(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url %q must be a valid http or https URL", c.ServerURL)
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")

	if c.Username == "" {
		return fmt.Errorf("username is required")
	}

	if c.SyncInterval == 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.SyncInterval < time.Minute {
		return fmt.Errorf("sync_interval %v is too short (minimum 1m)", c.SyncInterval)
	}
	if c.SyncInterval > 24*time.Hour {
		return fmt.Errorf("sync_interval %v is too long (maximum 24h)", c.SyncInterval)
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout %v must be positive", c.RequestTimeout)
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
