// Package config loads contractcheck settings from a TOML file, applying
// defaults first and environment overrides last. Command-line flags are
// applied by the caller on top of the returned Config.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Output   OutputConfig   `toml:"output"`
	Batch    BatchConfig    `toml:"batch"`
	Generate GenerateConfig `toml:"generate"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type OutputConfig struct {
	Format string `toml:"format"`
}

type BatchConfig struct {
	Concurrency int `toml:"concurrency"`
}

type GenerateConfig struct {
	Provider    string  `toml:"provider"`
	Model       string  `toml:"model"`
	Profile     string  `toml:"profile"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "warn"},
		Output: OutputConfig{Format: "json"},
		Batch:  BatchConfig{Concurrency: 4},
		Generate: GenerateConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-6",
			Profile:     "general",
			MaxTokens:   4096,
			Temperature: 0.2,
		},
	}
}

// Load reads path, or the first existing default location when path is empty.
// A missing default file is not an error; a missing explicit path is.
func Load(path string, environ []string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, c := range candidates() {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: %s: unknown key %q", path, undecoded[0].String())
		}
	}

	applyEnv(cfg, environ)

	if cfg.Batch.Concurrency < 1 {
		return nil, fmt.Errorf("config: batch.concurrency must be at least 1, got %d", cfg.Batch.Concurrency)
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

func candidates() []string {
	return []string{
		expandHome("~/.config/contractcheck/config.toml"),
		"./contractcheck.toml",
	}
}

// applyEnv overrides settings from CONTRACTCHECK_* variables.
func applyEnv(cfg *Config, environ []string) {
	if v, ok := lookup(environ, "CONTRACTCHECK_LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup(environ, "CONTRACTCHECK_FORMAT"); ok {
		cfg.Output.Format = v
	}
}

func lookup(environ []string, name string) (string, bool) {
	prefix := name + "="
	for _, env := range environ {
		if strings.HasPrefix(env, prefix) {
			return strings.TrimPrefix(env, prefix), true
		}
	}
	return "", false
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown log level %q (available: debug, info, warn, error)", s)
}

func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
