package bootstrap_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/mesgate/adapters/clock"
	"github.com/artpar/mesgate/adapters/memory"
	"github.com/artpar/mesgate/bootstrap"
	"github.com/artpar/mesgate/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newApp(t *testing.T, configYAML string) *bootstrap.App {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "mesgate.yaml")
	content := strings.ReplaceAll(configYAML, "{{dir}}", dir)
	writeFile(t, path, content)

	a, err := bootstrap.New(bootstrap.Options{
		ConfigPath: path,
		Version:    "test",
		LogOutput:  io.Discard,
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	t.Cleanup(func() { a.Shutdown() })
	return a
}

func get(t *testing.T, a *bootstrap.App, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.HTTPServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func post(t *testing.T, a *bootstrap.App, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.HTTPServer.Handler.ServeHTTP(rec, req)
	return rec
}

func count(t *testing.T, rec *httptest.ResponseRecorder) int {
	t.Helper()
	var body struct {
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.Meta.Count
}

func TestBootstrap_Integration(t *testing.T) {
	a := newApp(t, `
server:
  port: 18080
database:
  dsn: "{{dir}}/mesgate.db"
metrics:
  enabled: true
`)

	if a.DB == nil || a.HTTPServer == nil || a.Dispatcher == nil || a.Schema == nil {
		t.Fatal("components not initialized")
	}
	if a.HTTPServer.Addr != "0.0.0.0:18080" {
		t.Errorf("Addr = %s", a.HTTPServer.Addr)
	}
	if a.Metrics == nil {
		t.Fatal("metrics should be enabled")
	}

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if n := count(t, get(t, a, "/api/entities")); n != 3 {
		t.Errorf("synced entities = %d, want 3", n)
	}
	if n := count(t, get(t, a, "/api/services")); n != 9 {
		t.Errorf("services = %d, want 9", n)
	}

	rec := post(t, a, "/api/services/push_indications", `{"meter_code": "12345678", "indications": "12400, 6800"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("push status = %d: %s", rec.Code, rec.Body.String())
	}
	if n := count(t, get(t, a, "/api/calls")); n != 1 {
		t.Errorf("journal = %d, want 1", n)
	}

	out := get(t, a, "/metrics").Body.String()
	for _, want := range []string{"mesgate_entities 3", "go_goroutines", `mesgate_service_calls_total{service="push_indications",status="ok"} 1`} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %s", want)
		}
	}

	if body := get(t, a, "/version").Body.String(); !strings.Contains(body, `"version":"test"`) {
		t.Errorf("version = %s", body)
	}
}

func TestBootstrap_PersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mesgate.yaml")
	writeFile(t, path, "database:\n  dsn: \""+filepath.Join(dir, "mesgate.db")+"\"\n")

	first, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	first.Start(context.Background())
	post(t, first, "/api/services/calculate_indications",
		`{"meter_code": "12345678", "indications": "12400, 6800", "notification": true}`)
	first.Shutdown()

	second, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("reopen app: %v", err)
	}
	defer second.Shutdown()

	if n := count(t, get(t, second, "/api/calls")); n != 1 {
		t.Errorf("journal after restart = %d, want 1", n)
	}
	if n := count(t, get(t, second, "/api/notifications")); n != 1 {
		t.Errorf("notifications after restart = %d, want 1", n)
	}
	// Entities were stored by the first run's sync.
	if n := count(t, get(t, second, "/api/entities")); n != 3 {
		t.Errorf("entities after restart = %d, want 3", n)
	}
}

func TestBootstrap_FromEnv(t *testing.T) {
	t.Setenv("MESGATE_DATABASE_DSN", filepath.Join(t.TempDir(), "env.db"))
	t.Setenv("MESGATE_LOG_LEVEL", "warn")

	a, err := bootstrap.New(bootstrap.Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
		LogOutput:  io.Discard,
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	defer a.Shutdown()

	if a.Config.Path() != "" {
		t.Errorf("Path = %q, want env-backed holder", a.Config.Path())
	}
	if a.Metrics != nil {
		t.Error("metrics should be disabled by default")
	}
	if a.Config.Get().Logging.Level != "warn" {
		t.Errorf("level = %s", a.Config.Get().Logging.Level)
	}
	if rec := get(t, a, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("metrics endpoint status = %d, want 404", rec.Code)
	}
}

func TestBootstrap_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing services file", "services:\n  path: \"{{dir}}/none.yaml\"\n", "load services"},
		{"missing fixtures", "portal:\n  fixtures: \"{{dir}}/none.json\"\n", "init portal"},
		{"invalid config", "portal:\n  mode: telnet\n", "load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "mesgate.yaml")
			content := strings.ReplaceAll(tt.content, "{{dir}}", dir)
			writeFile(t, path, content+"database:\n  dsn: \""+filepath.Join(dir, "x.db")+"\"\n")

			a, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
			if err == nil {
				a.Shutdown()
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %s", err, tt.wantErr)
			}
		})
	}
}

func TestBootstrap_ReloadDisablesNotifications(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mesgate.yaml")
	dsn := "database:\n  dsn: \"" + filepath.Join(dir, "mesgate.db") + "\"\n"
	writeFile(t, path, dsn)

	a, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	defer a.Shutdown()
	a.Start(context.Background())

	writeFile(t, path, dsn+"notifications:\n  disabled: true\n")
	if err := a.Config.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	rec := post(t, a, "/api/services/push_indications",
		`{"meter_code": "12345678", "indications": "12400, 6800", "notification": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("push status = %d: %s", rec.Code, rec.Body.String())
	}
	if n := count(t, get(t, a, "/api/notifications")); n != 0 {
		t.Errorf("notifications = %d, want none after disabling", n)
	}
}

func TestBootstrap_WatchServices(t *testing.T) {
	dir := t.TempDir()
	services := filepath.Join(dir, "services.yaml")
	writeFile(t, services, `
update:
  target:
    entity:
      integration: mosenergosbyt
update_meter:
  target:
    entity:
      integration: mosenergosbyt
      device_class: meter
`)

	a := newApp(t, `
database:
  dsn: "{{dir}}/mesgate.db"
services:
  path: "`+services+`"
  watch: true
`)
	if got := len(a.Schema.Document().Services); got != 2 {
		t.Fatalf("services = %d, want 2", got)
	}
	a.Start(context.Background())

	writeFile(t, services, `
update:
  target:
    entity:
      integration: mosenergosbyt
`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(a.Schema.Document().Services) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("services document not reloaded, have %v", a.Schema.Document().Names())
}

func TestNewPortal(t *testing.T) {
	c := clock.NewFake(time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC))

	fixtures := filepath.Join(t.TempDir(), "fixtures.json")
	data, _ := json.Marshal(memory.DemoEntities(c.Now())[:1])
	writeFile(t, fixtures, string(data))

	tests := []struct {
		name    string
		cfg     config.PortalConfig
		wantErr bool
	}{
		{"memory default", config.PortalConfig{Mode: config.PortalMemory}, false},
		{"empty mode", config.PortalConfig{}, false},
		{"memory fixtures", config.PortalConfig{Mode: config.PortalMemory, Fixtures: fixtures, Rate: "7.1"}, false},
		{"remote", config.PortalConfig{Mode: config.PortalRemote, Remote: config.RemoteConfig{URL: "http://portal.local"}}, false},
		{"unknown", config.PortalConfig{Mode: "soap"}, true},
		{"bad fixtures", config.PortalConfig{Fixtures: "/nonexistent.json"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := bootstrap.NewPortal(tt.cfg, c)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPortal: %v", err)
			}
			if p == nil {
				t.Error("portal is nil")
			}
		})
	}
}

func TestSetupLogger(t *testing.T) {
	var buf strings.Builder

	logger := bootstrap.SetupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	logger.Debug().Str("meter_code", "12345678").Msg("hello")
	if !strings.Contains(buf.String(), `"meter_code":"12345678"`) {
		t.Errorf("json output = %s", buf.String())
	}

	buf.Reset()
	logger = bootstrap.SetupLogger(config.LoggingConfig{Level: "info", Format: "console"}, &buf)
	logger.Info().Msg("console line")
	if !strings.Contains(buf.String(), "console line") || strings.HasPrefix(buf.String(), "{") {
		t.Errorf("console output = %s", buf.String())
	}
}
