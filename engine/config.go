package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/promptforge/promptforge/pipeline"
	"github.com/promptforge/promptforge/types"
)

// Config is the engine's YAML configuration. Every field has a working
// default so an empty file (or no file at all) boots a memory-backed engine
// with the built-in methodologies.
type Config struct {
	// ResourceBase is the directory holding the prompts/, gates/, styles/,
	// and methodologies/ roots. Empty falls back to the per-kind environment
	// overrides and the anchor-file search.
	ResourceBase string `yaml:"resource_base"`

	// HotReload enables filesystem watching on the resource roots.
	HotReload bool `yaml:"hot_reload"`

	// JournalPath is the change-tracking journal file. Empty disables
	// cross-restart drift detection.
	JournalPath string `yaml:"journal_path"`

	// DefaultFramework applies when a plan requires a methodology and the
	// request names none.
	DefaultFramework string `yaml:"default_framework"`

	// DefaultGateAction applies at gate retry exhaustion when the request is
	// silent: skip, retry, or abort.
	DefaultGateAction types.GateAction `yaml:"default_gate_action"`

	// MaxConcurrent bounds simultaneously executing requests.
	MaxConcurrent int64 `yaml:"max_concurrent"`

	// ExecutionTimeout bounds one request end to end.
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Injection InjectionConfig `yaml:"injection"`
	Session   SessionConfig   `yaml:"session"`
	Scripts   ScriptsConfig   `yaml:"scripts"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InjectionConfig holds the configured levels of the injection hierarchy:
// per-category rules and the global defaults, keyed by injection type
// (system_prompt, gate_guidance, style_guidance).
type InjectionConfig struct {
	Categories map[string]map[string]*bool `yaml:"categories"`
	Global     map[string]*bool            `yaml:"global"`
}

// SessionConfig selects and tunes the chain state backend.
type SessionConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`

	// TTL expires idle chain state. Zero keeps the backend default.
	TTL time.Duration `yaml:"ttl"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis session backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ScriptsConfig tunes script tool execution.
type ScriptsConfig struct {
	// Timeout bounds each script command. Zero relies on the request's
	// execution timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// DefaultConfig returns a memory-backed configuration with engine defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultGateAction: types.GateActionAbort,
		LogLevel:          "info",
		Session:           SessionConfig{Backend: SessionBackendMemory},
		Scripts:           ScriptsConfig{Timeout: 30 * time.Second},
		Metrics:           MetricsConfig{Addr: ":9090"},
	}
}

// LoadConfig reads a YAML config file and merges it over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot act on.
func (c *Config) Validate() error {
	switch c.DefaultGateAction {
	case "", types.GateActionSkip, types.GateActionRetry, types.GateActionAbort:
	default:
		return fmt.Errorf("unknown default_gate_action %q", c.DefaultGateAction)
	}
	switch c.Session.Backend {
	case "", SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Session.Backend == SessionBackendRedis && c.Session.Redis.Addr == "" {
		return fmt.Errorf("redis session backend needs session.redis.addr")
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// pipelineConfig maps the engine configuration onto the stage sequence's
// tuning knobs.
func (c *Config) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		DefaultFramework:  c.DefaultFramework,
		DefaultGateAction: c.DefaultGateAction,
		CategoryInjection: c.Injection.Categories,
		GlobalInjection:   c.Injection.Global,
		MaxConcurrent:     c.MaxConcurrent,
		ExecutionTimeout:  c.ExecutionTimeout,
	}
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log_level %q", level)
}
