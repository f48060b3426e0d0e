package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hgminh-pk/amfgate/internal/config"
)

// writeConfig drops a YAML config file into a temp dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "amfgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "/gateway", cfg.HTTP.Path)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Gateway.Production)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9999"
  path: /amf
log:
  level: debug
  format: text
gateway:
  production: true
auth:
  users:
    - id: alice
      password: secret
      role: admin
      token: tok
acl:
  roles:
    - id: anonymous
    - id: admin
      parents: [anonymous]
  resources:
    - id: Calc
  rules:
    - effect: allow
      roles: [admin]
      resources: [Calc]
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, "/amf", cfg.HTTP.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Gateway.Production)

	require.Len(t, cfg.Auth.Users, 1)
	assert.Equal(t, "alice", cfg.Auth.Users[0].ID)
	assert.Equal(t, "tok", cfg.Auth.Users[0].Token)

	require.Len(t, cfg.ACL.Roles, 2)
	assert.Equal(t, []string{"anonymous"}, cfg.ACL.Roles[1].Parents)
	require.Len(t, cfg.ACL.Rules, 1)
	assert.Equal(t, "allow", cfg.ACL.Rules[0].Effect)

	// Metrics fall back to defaults when the file omits them.
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

// TestLoadMarshaledFixture authors the file through yaml.Marshal instead
// of a hand-written literal, so the fixture tracks the schema.
func TestLoadMarshaledFixture(t *testing.T) {
	fixture := map[string]any{
		"http": map[string]any{"addr": ":8181", "path": "/amf"},
		"acl": map[string]any{
			"roles": []map[string]any{
				{"id": "anonymous"},
				{"id": "staff", "parents": []string{"anonymous"}},
			},
			"rules": []map[string]any{
				{"effect": "deny", "roles": []string{"anonymous"}},
			},
		},
	}
	data, err := yaml.Marshal(fixture)
	require.NoError(t, err)

	cfg, err := config.Load(writeConfig(t, string(data)))
	require.NoError(t, err)

	assert.Equal(t, ":8181", cfg.HTTP.Addr)
	require.Len(t, cfg.ACL.Roles, 2)
	assert.Equal(t, []string{"anonymous"}, cfg.ACL.Roles[1].Parents)
	assert.Equal(t, "deny", cfg.ACL.Rules[0].Effect)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AMFGATE_HTTP_ADDR", ":7777")
	t.Setenv("AMFGATE_LOG_LEVEL", "warn")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.HTTP.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{"empty addr", func(c *config.Config) { c.HTTP.Addr = "" }, config.ErrMissingAddr},
		{"empty path", func(c *config.Config) { c.HTTP.Path = "" }, config.ErrMissingPath},
		{"user without id", func(c *config.Config) {
			c.Auth.Users = []config.UserConfig{{Password: "x"}}
		}, config.ErrUserMissingID},
		{"bad rule effect", func(c *config.Config) {
			c.ACL.Rules = []config.RuleConfig{{Effect: "maybe"}}
		}, config.ErrBadRuleEffect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, config.Validate(cfg), tt.wantErr)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, config.ParseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, config.ParseLogLevel("WARN"))
	assert.Equal(t, slog.LevelError, config.ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, config.ParseLogLevel("unknown"))
}
