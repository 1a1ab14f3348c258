package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/repairstack/pkg/compute"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "availability < 0.99",
	// "min_cost > 500", "best_k >= 4", "feasible == false".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | pagerduty | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultGRPCPort        = 50051
	DefaultHTTPPort        = 8080
	DefaultLogLevel        = "info"
	DefaultResultsTTL      = 30 * time.Minute
	DefaultResultsCapacity = 1000
	DefaultRateLimitRPS    = 20
	DefaultRateLimitBurst  = 40
)

// Config holds the server configuration parsed from the `server:` section of
// the config file.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port of the gRPC health service (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API, /metrics and the WebSocket hub
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Auth configures how the server authenticates gRPC and REST clients.
	Auth AuthConfig `yaml:"auth"`

	// Results controls in-memory retention of evaluation records.
	Results ResultsConfig `yaml:"results"`

	// Search holds the optimizer defaults and limits applied to requests.
	Search SearchConfig `yaml:"search"`

	// Engine sizes the shared evaluation cache.
	Engine EngineConfig `yaml:"engine"`

	// RateLimit throttles the POST endpoints.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return strings.ToLower(a.Header)
	}
	return "x-api-key"
}

// ResultsConfig controls in-memory record retention.
type ResultsConfig struct {
	// TTL is how long a record stays readable after it was produced.
	TTL time.Duration `yaml:"ttl"`

	// Capacity caps the number of records held; the oldest is dropped first.
	Capacity int `yaml:"capacity"`
}

// SearchConfig holds the optimizer defaults used when a request omits them.
type SearchConfig struct {
	NMargin int `yaml:"n_margin"`
	KMargin int `yaml:"k_margin"`

	// MaxGrid rejects requests whose grid has more pairs. It is checked
	// before the grid is built; 0 selects the default.
	MaxGrid int `yaml:"max_grid"`

	// MaxComponents rejects requests with a larger n, or a grid reaching
	// past it; 0 selects the default.
	MaxComponents int `yaml:"max_components"`
}

// Limits returns the request size limits.
func (s SearchConfig) Limits() compute.Limits {
	return compute.Limits{MaxGrid: s.MaxGrid, MaxComponents: s.MaxComponents}
}

// EngineConfig sizes the evaluation cache.
type EngineConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// RateLimitConfig is a token bucket shared by all POST endpoints.
type RateLimitConfig struct {
	// RPS is the sustained request rate; 0 disables limiting.
	RPS float64 `yaml:"rps"`

	// Burst is the bucket size.
	Burst int `yaml:"burst"`
}

// SlogLevel returns the configured log level.
func (s ServerConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			LogLevel: DefaultLogLevel,
			Results: ResultsConfig{
				TTL:      DefaultResultsTTL,
				Capacity: DefaultResultsCapacity,
			},
			Search: SearchConfig{
				NMargin:       compute.DefaultNMargin,
				KMargin:       compute.DefaultKMargin,
				MaxGrid:       compute.DefaultMaxGrid,
				MaxComponents: compute.DefaultMaxComponents,
			},
			Engine: EngineConfig{
				CacheSize: compute.DefaultCacheSize,
			},
			RateLimit: RateLimitConfig{
				RPS:   DefaultRateLimitRPS,
				Burst: DefaultRateLimitBurst,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Results.TTL <= 0 {
		return fmt.Errorf("server.results.ttl must be positive")
	}
	if s.Results.Capacity <= 0 {
		return fmt.Errorf("server.results.capacity must be positive")
	}
	if s.Search.NMargin < 0 || s.Search.KMargin < 0 {
		return fmt.Errorf("server.search margins must not be negative")
	}
	if s.Search.MaxGrid < 0 || s.Search.MaxComponents < 0 {
		return fmt.Errorf("server.search limits must not be negative")
	}
	if s.Engine.CacheSize <= 0 {
		return fmt.Errorf("server.engine.cache_size must be positive")
	}
	if s.RateLimit.RPS < 0 {
		return fmt.Errorf("server.rate_limit.rps must not be negative")
	}
	if s.RateLimit.RPS > 0 && s.RateLimit.Burst < 1 {
		return fmt.Errorf("server.rate_limit.burst must be >= 1 when rps is set")
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d] %q: condition is required", i, r.Name)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("server.alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "pagerduty", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}
