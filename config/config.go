// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Portal modes.
const (
	PortalMemory = "memory"
	PortalRemote = "remote"
)

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	Logging       LoggingConfig      `yaml:"logging"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Services      ServicesConfig     `yaml:"services"`
	Portal        PortalConfig       `yaml:"portal"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// APITokenHash is a bcrypt hash of the bearer token required on /api.
	// Empty disables authentication.
	APITokenHash string `yaml:"api_token_hash,omitempty"`
}

// DatabaseConfig configures the SQLite journal.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// ServicesConfig points at an override service document.
type ServicesConfig struct {
	Path  string `yaml:"path"`  // empty uses the built-in document
	Watch bool   `yaml:"watch"` // reload the document when the file changes
}

// PortalConfig selects the portal backend.
type PortalConfig struct {
	Mode            string        `yaml:"mode"`     // "memory" or "remote"
	Fixtures        string        `yaml:"fixtures"` // memory mode: entity fixtures JSON
	Rate            string        `yaml:"rate"`     // memory mode: tariff per unit
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Remote          RemoteConfig  `yaml:"remote,omitempty"`
}

// RemoteConfig configures a remote service endpoint.
type RemoteConfig struct {
	URL     string            `yaml:"url"`
	APIKey  string            `yaml:"api_key,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// NotificationConfig configures persistent notifications.
type NotificationConfig struct {
	Disabled bool `yaml:"disabled"`
}

// TariffRate returns the memory portal rate, or def when unset.
func (p PortalConfig) TariffRate(def decimal.Decimal) decimal.Decimal {
	if p.Rate == "" {
		return def
	}
	rate, err := decimal.NewFromString(p.Rate)
	if err != nil {
		return def
	}
	return rate
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = expandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} references only. Bare $ is kept so bcrypt
// hashes survive.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := envRef.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	MESGATE_SERVER_HOST         - Server host (default: 0.0.0.0)
//	MESGATE_SERVER_PORT         - Server port (default: 8080)
//	MESGATE_API_TOKEN_HASH      - bcrypt hash of the API bearer token
//	MESGATE_DATABASE_DSN        - Database path (default: mesgate.db)
//	MESGATE_LOG_LEVEL           - Log level: debug, info, warn, error (default: info)
//	MESGATE_LOG_FORMAT          - Log format: json or console (default: json)
//	MESGATE_METRICS_ENABLED     - Enable /metrics endpoint
//	MESGATE_SERVICES_PATH       - Override services.yaml
//	MESGATE_SERVICES_WATCH      - Reload services.yaml on change
//	MESGATE_PORTAL_MODE         - memory or remote (default: memory)
//	MESGATE_PORTAL_URL          - Remote portal URL
//	MESGATE_PORTAL_API_KEY      - Remote portal API key
//	MESGATE_NOTIFICATIONS_DISABLED - Suppress persistent notifications
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads from file when it exists, otherwise from the
// environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies MESGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("MESGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("MESGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MESGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("MESGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("MESGATE_API_TOKEN_HASH"); v != "" {
		cfg.Server.APITokenHash = v
	}

	// Database configuration
	if v := os.Getenv("MESGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Logging configuration
	if v := os.Getenv("MESGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MESGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("MESGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("MESGATE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// Services document
	if v := os.Getenv("MESGATE_SERVICES_PATH"); v != "" {
		cfg.Services.Path = v
	}
	if v := os.Getenv("MESGATE_SERVICES_WATCH"); v != "" {
		cfg.Services.Watch = parseBool(v)
	}

	// Portal configuration
	if v := os.Getenv("MESGATE_PORTAL_MODE"); v != "" {
		cfg.Portal.Mode = v
	}
	if v := os.Getenv("MESGATE_PORTAL_FIXTURES"); v != "" {
		cfg.Portal.Fixtures = v
	}
	if v := os.Getenv("MESGATE_PORTAL_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Portal.RefreshInterval = d
		}
	}
	if v := os.Getenv("MESGATE_PORTAL_URL"); v != "" {
		cfg.Portal.Remote.URL = v
	}
	if v := os.Getenv("MESGATE_PORTAL_API_KEY"); v != "" {
		cfg.Portal.Remote.APIKey = v
	}
	if v := os.Getenv("MESGATE_PORTAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Portal.Remote.Timeout = d
		}
	}

	if v := os.Getenv("MESGATE_NOTIFICATIONS_DISABLED"); v != "" {
		cfg.Notifications.Disabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "mesgate.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Portal.Mode == "" {
		cfg.Portal.Mode = PortalMemory
	}
	if cfg.Portal.RefreshInterval == 0 {
		cfg.Portal.RefreshInterval = time.Hour
	}
	if cfg.Portal.Remote.Timeout == 0 {
		cfg.Portal.Remote.Timeout = 30 * time.Second
	}
}

func validate(cfg *Config) error {
	validModes := map[string]bool{PortalMemory: true, PortalRemote: true}
	if !validModes[cfg.Portal.Mode] {
		return fmt.Errorf("portal.mode must be 'memory' or 'remote', got %q", cfg.Portal.Mode)
	}
	if cfg.Portal.Mode == PortalRemote && cfg.Portal.Remote.URL == "" {
		return fmt.Errorf("portal.remote.url is required when portal.mode is 'remote'")
	}
	if cfg.Portal.Rate != "" {
		rate, err := decimal.NewFromString(cfg.Portal.Rate)
		if err != nil || !rate.IsPositive() {
			return fmt.Errorf("portal.rate must be a positive number, got %q", cfg.Portal.Rate)
		}
	}
	if cfg.Portal.RefreshInterval < 0 {
		return fmt.Errorf("portal.refresh_interval must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Server.APITokenHash != "" && !strings.HasPrefix(cfg.Server.APITokenHash, "$2") {
		return fmt.Errorf("server.api_token_hash must be a bcrypt hash")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}

	return nil
}
