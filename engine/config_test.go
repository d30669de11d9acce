package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/promptforge/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
resource_base: /srv/promptforge/resources
default_framework: ReACT
default_gate_action: skip
max_concurrent: 4
execution_timeout: 30s
session:
  backend: redis
  ttl: 2h
  redis:
    addr: localhost:6379
    db: 3
injection:
  global:
    gate_guidance: true
  categories:
    analysis:
      system_prompt: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/promptforge/resources", cfg.ResourceBase)
	assert.Equal(t, "ReACT", cfg.DefaultFramework)
	assert.Equal(t, types.GateActionSkip, cfg.DefaultGateAction)
	assert.Equal(t, int64(4), cfg.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, SessionBackendRedis, cfg.Session.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "localhost:6379", cfg.Session.Redis.Addr)
	assert.Equal(t, 3, cfg.Session.Redis.DB)

	require.NotNil(t, cfg.Injection.Global["gate_guidance"])
	assert.True(t, *cfg.Injection.Global["gate_guidance"])
	require.NotNil(t, cfg.Injection.Categories["analysis"]["system_prompt"])

	// Untouched fields keep their defaults.
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Scripts.Timeout)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown gate action", func(c *Config) { c.DefaultGateAction = "explode" }},
		{"unknown session backend", func(c *Config) { c.Session.Backend = "dynamo" }},
		{"redis without addr", func(c *Config) { c.Session.Backend = SessionBackendRedis }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPipelineConfigMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultFramework = "5W1H"
	cfg.MaxConcurrent = 8
	cfg.ExecutionTimeout = time.Minute

	pc := cfg.pipelineConfig()
	assert.Equal(t, "5W1H", pc.DefaultFramework)
	assert.Equal(t, types.GateActionAbort, pc.DefaultGateAction)
	assert.Equal(t, int64(8), pc.MaxConcurrent)
	assert.Equal(t, time.Minute, pc.ExecutionTimeout)
}

func TestParseLogLevel(t *testing.T) {
	level, err := parseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	level, err = parseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = parseLogLevel("verbose")
	assert.Error(t, err)
}
