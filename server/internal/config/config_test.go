package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/obsidianstack/repairstack/pkg/compute"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// The planner section of a shared file is ignored.
	p := writeConfig(t, `scenario:
  components: 5
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != DefaultGRPCPort {
		t.Errorf("grpc_port: got %d, want %d", s.GRPCPort, DefaultGRPCPort)
	}
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.Results.TTL != DefaultResultsTTL || s.Results.Capacity != DefaultResultsCapacity {
		t.Errorf("results: got %+v", s.Results)
	}
	if s.Search.NMargin != compute.DefaultNMargin || s.Search.KMargin != compute.DefaultKMargin {
		t.Errorf("search margins: got %+v", s.Search)
	}
	if s.Search.MaxGrid != compute.DefaultMaxGrid {
		t.Errorf("search.max_grid: got %d", s.Search.MaxGrid)
	}
	if s.Engine.CacheSize != compute.DefaultCacheSize {
		t.Errorf("engine.cache_size: got %d", s.Engine.CacheSize)
	}
	if s.Search.MaxComponents != compute.DefaultMaxComponents {
		t.Errorf("search.max_components: got %d", s.Search.MaxComponents)
	}
	if s.SlogLevel() != slog.LevelInfo {
		t.Errorf("log level: got %v", s.SlogLevel())
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  grpc_port: 9090
  http_port: 9091
  log_level: debug
  auth:
    mode: apikey
    key_env: MY_KEY
    header: X-Kofn-Key
  results:
    ttl: 10m
    capacity: 50
  search:
    n_margin: 20
    k_margin: 4
    max_grid: 5000
    max_components: 500
  engine:
    cache_size: 128
  rate_limit:
    rps: 2.5
    burst: 5
  alerts:
    rules:
      - name: low-availability
        condition: "availability < 0.99"
        severity: critical
        cooldown: 1m
    webhooks:
      - type: slack
        url_env: SLACK_URL
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != 9090 {
		t.Errorf("grpc_port: got %d, want 9090", s.GRPCPort)
	}
	if s.Auth.Mode != "apikey" {
		t.Errorf("auth.mode: got %q, want apikey", s.Auth.Mode)
	}
	if s.Auth.EffectiveHeader() != "x-kofn-key" {
		t.Errorf("header: got %q, want x-kofn-key", s.Auth.EffectiveHeader())
	}
	if s.Results.TTL != 10*time.Minute || s.Results.Capacity != 50 {
		t.Errorf("results: got %+v", s.Results)
	}
	if s.Search != (SearchConfig{NMargin: 20, KMargin: 4, MaxGrid: 5000, MaxComponents: 500}) {
		t.Errorf("search: got %+v", s.Search)
	}
	if s.RateLimit.RPS != 2.5 || s.RateLimit.Burst != 5 {
		t.Errorf("rate_limit: got %+v", s.RateLimit)
	}
	if s.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level: got %v", s.SlogLevel())
	}
	if len(s.Alerts.Rules) != 1 || s.Alerts.Rules[0].Cooldown != time.Minute {
		t.Errorf("alerts.rules: got %+v", s.Alerts.Rules)
	}
	if len(s.Alerts.Webhooks) != 1 || s.Alerts.Webhooks[0].Type != "slack" {
		t.Errorf("alerts.webhooks: got %+v", s.Alerts.Webhooks)
	}
}

func TestLoad_DefaultHeader(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h := cfg.Server.Auth.EffectiveHeader(); h != "x-api-key" {
		t.Errorf("EffectiveHeader: got %q, want x-api-key", h)
	}
}

func TestLoad_KeyEnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown auth mode", "server:\n  auth:\n    mode: oauth2\n"},
		{"grpc port range", "server:\n  grpc_port: 70000\n"},
		{"http port negative", "server:\n  http_port: -1\n"},
		{"log level", "server:\n  log_level: chatty\n"},
		{"zero ttl", "server:\n  results:\n    ttl: 0s\n"},
		{"zero capacity", "server:\n  results:\n    capacity: 0\n"},
		{"negative margin", "server:\n  search:\n    n_margin: -1\n"},
		{"negative max grid", "server:\n  search:\n    max_grid: -1\n"},
		{"zero cache", "server:\n  engine:\n    cache_size: 0\n"},
		{"negative rps", "server:\n  rate_limit:\n    rps: -1\n"},
		{"zero burst", "server:\n  rate_limit:\n    rps: 1\n    burst: 0\n"},
		{"negative max components", "server:\n  search:\n    max_components: -3\n"},
		{"rule without name", "server:\n  alerts:\n    rules:\n      - condition: \"availability < 1\"\n"},
		{"rule without condition", "server:\n  alerts:\n    rules:\n      - name: r\n"},
		{"rule severity", "server:\n  alerts:\n    rules:\n      - name: r\n        condition: \"best_n > 3\"\n        severity: loud\n"},
		{"webhook type", "server:\n  alerts:\n    webhooks:\n      - type: carrier-pigeon\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestWatch_Reload(t *testing.T) {
	p := writeConfig(t, "server:\n  http_port: 8081\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go Watch(ctx, p, func(c *Config) { got <- c }) //nolint:errcheck

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(p, []byte("server:\n  http_port: 8082\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-got:
			if c.Server.HTTPPort == 8082 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}
