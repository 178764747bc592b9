package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/mesgate/config"
	"github.com/shopspring/decimal"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  api_token_hash: "$2a$10$abcdefghijklmnopqrstuv"

database:
  dsn: ":memory:"

services:
  path: "/etc/mesgate/services.yaml"
  watch: true

portal:
  mode: "remote"
  refresh_interval: 15m
  remote:
    url: "http://portal.local"
    api_key: "secret"
    timeout: 5s
    headers:
      X-Account: "1234567890"

notifications:
  disabled: true
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr = %s", cfg.Server.Addr())
	}
	if cfg.Server.APITokenHash != "$2a$10$abcdefghijklmnopqrstuv" {
		t.Errorf("APITokenHash = %q, bare $ must not be expanded", cfg.Server.APITokenHash)
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("DSN = %s", cfg.Database.DSN)
	}
	if cfg.Services.Path != "/etc/mesgate/services.yaml" || !cfg.Services.Watch {
		t.Errorf("Services = %+v", cfg.Services)
	}
	if cfg.Portal.Mode != config.PortalRemote {
		t.Errorf("Portal.Mode = %s", cfg.Portal.Mode)
	}
	if cfg.Portal.RefreshInterval != 15*time.Minute {
		t.Errorf("RefreshInterval = %v", cfg.Portal.RefreshInterval)
	}
	if cfg.Portal.Remote.URL != "http://portal.local" || cfg.Portal.Remote.Timeout != 5*time.Second {
		t.Errorf("Remote = %+v", cfg.Portal.Remote)
	}
	if cfg.Portal.Remote.Headers["X-Account"] != "1234567890" {
		t.Errorf("Headers = %v", cfg.Portal.Remote.Headers)
	}
	if !cfg.Notifications.Disabled {
		t.Error("Notifications.Disabled = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "{}\n")

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second || cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("default timeouts = %v / %v", cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	}
	if cfg.Database.DSN != "mesgate.db" {
		t.Errorf("default DSN = %s", cfg.Database.DSN)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default Logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %s", cfg.Metrics.Path)
	}
	if cfg.Portal.Mode != config.PortalMemory {
		t.Errorf("default Portal.Mode = %s", cfg.Portal.Mode)
	}
	if cfg.Portal.RefreshInterval != time.Hour {
		t.Errorf("default RefreshInterval = %v", cfg.Portal.RefreshInterval)
	}
	if cfg.Server.APITokenHash != "" {
		t.Errorf("default APITokenHash = %q", cfg.Server.APITokenHash)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_PORTAL_KEY", "from-env")

	content := `
portal:
  mode: remote
  remote:
    url: "http://portal.local"
    api_key: "${TEST_PORTAL_KEY}"
`
	cfg := writeAndLoad(t, content)

	if cfg.Portal.Remote.APIKey != "from-env" {
		t.Errorf("APIKey = %s, want from-env", cfg.Portal.Remote.APIKey)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad portal mode", "portal:\n  mode: soap\n", "portal.mode"},
		{"remote without url", "portal:\n  mode: remote\n", "portal.remote.url"},
		{"negative interval", "portal:\n  refresh_interval: -1m\n", "refresh_interval"},
		{"bad rate", "portal:\n  rate: abc\n", "portal.rate"},
		{"zero rate", "portal:\n  rate: \"0\"\n", "portal.rate"},
		{"bad log level", "logging:\n  level: loud\n", "logging.level"},
		{"bad log format", "logging:\n  format: xml\n", "logging.format"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"plain token", "server:\n  api_token_hash: hunter2\n", "api_token_hash"},
		{"relative metrics path", "metrics:\n  path: metrics\n", "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestPortalConfig_TariffRate(t *testing.T) {
	def := decimal.RequireFromString("6.43")

	if got := (config.PortalConfig{}).TariffRate(def); !got.Equal(def) {
		t.Errorf("unset rate = %s, want default", got)
	}
	if got := (config.PortalConfig{Rate: "7.5"}).TariffRate(def); !got.Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("rate = %s, want 7.5", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MESGATE_PORTAL_MODE", "remote")
	t.Setenv("MESGATE_PORTAL_URL", "http://portal.env")
	t.Setenv("MESGATE_PORTAL_API_KEY", "k")
	t.Setenv("MESGATE_PORTAL_TIMEOUT", "3s")
	t.Setenv("MESGATE_PORTAL_REFRESH_INTERVAL", "10m")
	t.Setenv("MESGATE_SERVER_PORT", "9999")
	t.Setenv("MESGATE_DATABASE_DSN", "/tmp/env.db")
	t.Setenv("MESGATE_METRICS_ENABLED", "yes")
	t.Setenv("MESGATE_SERVICES_WATCH", "on")
	t.Setenv("MESGATE_NOTIFICATIONS_DISABLED", "1")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}

	if cfg.Portal.Mode != config.PortalRemote || cfg.Portal.Remote.URL != "http://portal.env" {
		t.Errorf("Portal = %+v", cfg.Portal)
	}
	if cfg.Portal.Remote.APIKey != "k" || cfg.Portal.Remote.Timeout != 3*time.Second {
		t.Errorf("Remote = %+v", cfg.Portal.Remote)
	}
	if cfg.Portal.RefreshInterval != 10*time.Minute {
		t.Errorf("RefreshInterval = %v", cfg.Portal.RefreshInterval)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Database.DSN != "/tmp/env.db" {
		t.Errorf("DSN = %s", cfg.Database.DSN)
	}
	if !cfg.Metrics.Enabled || !cfg.Services.Watch || !cfg.Notifications.Disabled {
		t.Errorf("bool overrides not applied: %+v %+v %+v", cfg.Metrics, cfg.Services, cfg.Notifications)
	}
}

func TestLoadFromEnv_MissingRemoteURL(t *testing.T) {
	t.Setenv("MESGATE_PORTAL_MODE", "remote")

	if _, err := config.LoadFromEnv(); err == nil {
		t.Error("expected error for remote mode without url")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("MESGATE_SERVER_HOST", "10.0.0.1")
	t.Setenv("MESGATE_LOG_LEVEL", "debug")
	t.Setenv("MESGATE_LOG_FORMAT", "console")

	content := `
server:
  host: "127.0.0.1"
logging:
  level: warn
`
	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "10.0.0.1" {
		t.Errorf("Host = %s, env should override file", cfg.Server.Host)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("MESGATE_SERVER_PORT", "not-a-port")
	t.Setenv("MESGATE_SERVER_READ_TIMEOUT", "soon")
	t.Setenv("MESGATE_PORTAL_REFRESH_INTERVAL", "often")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, invalid value should fall back to default", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Portal.RefreshInterval != time.Hour {
		t.Errorf("RefreshInterval = %v", cfg.Portal.RefreshInterval)
	}
}

func TestLoadWithFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesgate.yaml")
	os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0644)

	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback error: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Port = %d, want file value", cfg.Server.Port)
	}

	cfg, err = config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("fallback error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default", cfg.Server.Port)
	}

	if _, err := config.LoadWithFallback(""); err != nil {
		t.Errorf("empty path error: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := writeAndLoadErr(t, "server: [unclosed"); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load("/nonexistent/mesgate.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "mesgate.yaml")

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return config.Load(path)
}
