// Package config manages the amfgate daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and defaults merged in
// that order of precedence (env over file over defaults).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete amfgate configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Gateway GatewayConfig `koanf:"gateway"`
	Auth    AuthConfig    `koanf:"auth"`
	ACL     ACLConfig     `koanf:"acl"`
}

// HTTPConfig holds the gateway HTTP server configuration.
type HTTPConfig struct {
	// Addr is the gateway listen address (e.g., ":8080").
	Addr string `koanf:"addr"`
	// Path is the URL path serving AMF requests (e.g., "/gateway").
	Path string `koanf:"path"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// GatewayConfig holds the remoting engine configuration.
type GatewayConfig struct {
	// Production strips error descriptions and details from client
	// responses.
	Production bool `koanf:"production"`

	// Aliases maps wire class names onto locally registered type
	// names, applied after code-level registration.
	Aliases map[string]string `koanf:"aliases"`
}

// AuthConfig holds the static credential table.
type AuthConfig struct {
	Users []UserConfig `koanf:"users"`
}

// UserConfig is one static credential entry.
type UserConfig struct {
	ID       string `koanf:"id"`
	Password string `koanf:"password"`
	Role     string `koanf:"role"`
	Token    string `koanf:"token"`
}

// ACLConfig declares roles, resources, and rules applied at startup.
// Roles and resources are added in file order, so parents must be
// declared before children; parent order per role defines inheritance
// priority (last wins).
type ACLConfig struct {
	Roles     []RoleConfig     `koanf:"roles"`
	Resources []ResourceConfig `koanf:"resources"`
	Rules     []RuleConfig     `koanf:"rules"`
}

// RoleConfig is one role declaration.
type RoleConfig struct {
	ID      string   `koanf:"id"`
	Parents []string `koanf:"parents"`
}

// ResourceConfig is one resource declaration.
type ResourceConfig struct {
	ID     string `koanf:"id"`
	Parent string `koanf:"parent"`
}

// RuleConfig is one allow/deny rule. Empty lists select the all-roles,
// all-resources, and all-privileges buckets.
type RuleConfig struct {
	// Effect is "allow" or "deny".
	Effect     string   `koanf:"effect"`
	Roles      []string `koanf:"roles"`
	Resources  []string `koanf:"resources"`
	Privileges []string `koanf:"privileges"`
}

// -------------------------------------------------------------------------
// Validation Errors
// -------------------------------------------------------------------------

var (
	// ErrMissingAddr indicates an empty HTTP listen address.
	ErrMissingAddr = errors.New("http.addr must not be empty")

	// ErrMissingPath indicates an empty gateway path.
	ErrMissingPath = errors.New("http.path must not be empty")

	// ErrBadRuleEffect indicates a rule effect other than allow/deny.
	ErrBadRuleEffect = errors.New("rule effect must be \"allow\" or \"deny\"")

	// ErrUserMissingID indicates a user entry with no id.
	ErrUserMissingID = errors.New("user id must not be empty")
)

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr: ":8080",
			Path: "/gateway",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for amfgate configuration.
// Variables are named AMFGATE_<section>_<key>, e.g., AMFGATE_HTTP_ADDR.
const envPrefix = "AMFGATE_"

// Load reads configuration from a YAML file at path, overlays
// environment variable overrides (AMFGATE_ prefix), and merges on top
// of DefaultConfig(). Missing fields inherit defaults. An empty path
// skips the file layer.
//
// Environment variable mapping:
//
//	AMFGATE_HTTP_ADDR     -> http.addr
//	AMFGATE_HTTP_PATH     -> http.path
//	AMFGATE_METRICS_ADDR  -> metrics.addr
//	AMFGATE_LOG_LEVEL     -> log.level
//	AMFGATE_LOG_FORMAT    -> log.format
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	// AMFGATE_HTTP_ADDR -> http.addr (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms AMFGATE_HTTP_ADDR -> http.addr.
// Strips the AMFGATE_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"http.addr":    defaults.HTTP.Addr,
		"http.path":    defaults.HTTP.Path,
		"metrics.addr": defaults.Metrics.Addr,
		"metrics.path": defaults.Metrics.Path,
		"log.level":    defaults.Log.Level,
		"log.format":   defaults.Log.Format,
	}
	for key, value := range defaultMap {
		if err := k.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects configurations the daemon cannot serve.
func Validate(cfg *Config) error {
	if cfg.HTTP.Addr == "" {
		return ErrMissingAddr
	}
	if cfg.HTTP.Path == "" {
		return ErrMissingPath
	}
	for _, u := range cfg.Auth.Users {
		if u.ID == "" {
			return ErrUserMissingID
		}
	}
	for i, r := range cfg.ACL.Rules {
		if r.Effect != "allow" && r.Effect != "deny" {
			return fmt.Errorf("acl.rules[%d] effect %q: %w", i, r.Effect, ErrBadRuleEffect)
		}
	}
	return nil
}

// ParseLogLevel maps a config string onto a slog.Level, defaulting to
// Info for unknown values.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
