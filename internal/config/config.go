// Package config loads and validates the scribe configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full scribe configuration.
type Config struct {
	Provider  ProviderConfig  `json:"provider" yaml:"provider"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Retry     RetryConfig     `json:"retry" yaml:"retry"`
	Memory    MemoryConfig    `json:"memory" yaml:"memory"`
	Search    SearchConfig    `json:"search" yaml:"search"`
	Guard     GuardConfig     `json:"guard" yaml:"guard"`
	Plugins   []PluginConfig  `json:"plugins" yaml:"plugins"`
}

type ProviderConfig struct {
	Type    string `json:"type" yaml:"type"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

type RateLimitConfig struct {
	Capacity      int     `json:"capacity" yaml:"capacity"`
	WindowSeconds float64 `json:"window_seconds" yaml:"window_seconds"`
}

// Window returns the window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return seconds(r.WindowSeconds)
}

type RetryConfig struct {
	MaxAttempts           int     `json:"max_attempts" yaml:"max_attempts"`
	InitialBackoffSeconds float64 `json:"initial_backoff_seconds" yaml:"initial_backoff_seconds"`
	MaxBackoffSeconds     float64 `json:"max_backoff_seconds" yaml:"max_backoff_seconds"`
}

func (r RetryConfig) InitialBackoff() time.Duration { return seconds(r.InitialBackoffSeconds) }
func (r RetryConfig) MaxBackoff() time.Duration     { return seconds(r.MaxBackoffSeconds) }

type MemoryConfig struct {
	Path string `json:"path" yaml:"path"`
}

type SearchConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	CX      string `json:"cx" yaml:"cx"`
}

type GuardConfig struct {
	MaxQueryChars      int      `json:"max_query_chars" yaml:"max_query_chars"`
	AllowedMemoryGlobs []string `json:"allowed_memory_globs" yaml:"allowed_memory_globs"`
}

// PluginConfig replaces the built-in agent for Stage with an external
// plugin binary.
type PluginConfig struct {
	Stage string   `json:"stage" yaml:"stage"`
	Path  string   `json:"path" yaml:"path"`
	Args  []string `json:"args" yaml:"args"`
}

// ValidationResult represents the outcome of a validation pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// Dir returns the scribe state directory, ~/.scribe.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scribe"
	}
	return filepath.Join(home, ".scribe")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{Type: "mock"},
		RateLimit: RateLimitConfig{
			Capacity:      10,
			WindowSeconds: 60,
		},
		Retry: RetryConfig{
			MaxAttempts:           5,
			InitialBackoffSeconds: 1,
			MaxBackoffSeconds:     120,
		},
		Memory: MemoryConfig{Path: filepath.Join(Dir(), "memory_store.json")},
		Search: SearchConfig{Enabled: true},
		Guard:  GuardConfig{MaxQueryChars: 4000},
	}
}

// Load reads a configuration file (JSON or YAML) on top of the defaults.
// Fields missing from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s (use .json or .yaml)", ext)
	}

	cfg.Memory.Path = expandHome(cfg.Memory.Path)
	for i := range cfg.Plugins {
		cfg.Plugins[i].Path = expandHome(cfg.Plugins[i].Path)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is set and exists, and returns the
// defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(Dir(), "config.yaml")
		if _, err := os.Stat(path); err != nil {
			return Default(), nil
		}
	}
	return Load(path)
}

var knownProviders = map[string]bool{
	"mock": true, "stub": true, "gemini": true, "openai": true,
	"anthropic": true, "ollama": true, "cli": true,
}

var knownStages = map[string]bool{
	"research": true, "summarize": true, "critique": true, "write": true,
}

// Validate checks the configuration for errors and questionable values.
func (c *Config) Validate() ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}
	fail := func(format string, args ...any) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}

	if !knownProviders[c.Provider.Type] {
		fail("unknown provider type %q", c.Provider.Type)
	}

	if c.RateLimit.Capacity <= 0 {
		res.Warnings = append(res.Warnings, "rate_limit.capacity is not positive; model calls are not rate limited")
	} else if c.RateLimit.WindowSeconds <= 0 {
		fail("rate_limit.window_seconds must be positive")
	}

	if c.Retry.MaxAttempts < 1 {
		fail("retry.max_attempts must be at least 1")
	}
	if c.Retry.InitialBackoffSeconds <= 0 {
		fail("retry.initial_backoff_seconds must be positive")
	}
	if c.Retry.MaxBackoffSeconds < c.Retry.InitialBackoffSeconds {
		fail("retry.max_backoff_seconds must not be below initial_backoff_seconds")
	}
	if c.Retry.MaxAttempts > 10 {
		res.Warnings = append(res.Warnings, "retry.max_attempts above 10 can stall a run for a long time")
	}

	if c.Memory.Path == "" {
		fail("memory.path is required")
	}

	if c.Guard.MaxQueryChars < 0 {
		fail("guard.max_query_chars must not be negative")
	}

	seen := map[string]bool{}
	for i, p := range c.Plugins {
		switch {
		case !knownStages[p.Stage]:
			fail("plugins[%d]: unknown stage %q", i, p.Stage)
		case p.Path == "":
			fail("plugins[%d]: path is required", i)
		case seen[p.Stage]:
			fail("plugins[%d]: stage %q already has a plugin", i, p.Stage)
		}
		seen[p.Stage] = true
	}

	return res
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
