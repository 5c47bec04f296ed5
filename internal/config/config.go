package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/roach88/statewire/internal/state"
)

// Config is the statewire runtime configuration.
type Config struct {
	LogLevel slog.Level

	// Resource defaults apply to resource states that leave a tunable unset.
	Resource ResourceDefaults

	SQLitePath  string
	BoltPath    string
	MetricsAddr string
}

// ResourceDefaults holds the resource tunables and connector limits.
type ResourceDefaults struct {
	Timing       state.Timing
	PollInterval time.Duration
	MaxRequests  float64
	Burst        int
}

const (
	defaultConfigPath  = "~/.config/statewire/config.toml"
	defaultDataDir     = "~/.local/share/statewire"
	defaultMetricsAddr = "127.0.0.1:9464"
	defaultPoll        = time.Second
	defaultMaxRequests = 10
	defaultBurst       = 5
)

// Default returns the configuration used when no file exists.
func Default() Config {
	dataDir := mustExpand(defaultDataDir)
	return Config{
		LogLevel: slog.LevelInfo,
		Resource: ResourceDefaults{
			PollInterval: defaultPoll,
			MaxRequests:  defaultMaxRequests,
			Burst:        defaultBurst,
		},
		SQLitePath:  filepath.Join(dataDir, "cells.db"),
		BoltPath:    filepath.Join(dataDir, "vars.bolt"),
		MetricsAddr: defaultMetricsAddr,
	}
}

type rawConfig struct {
	LogLevel string `toml:"log_level"`
	Resource struct {
		Debounce     string  `toml:"debounce"`
		Timeout      string  `toml:"timeout"`
		Retention    string  `toml:"retention"`
		WriteBounce  string  `toml:"writebounce"`
		PollInterval string  `toml:"poll_interval"`
		MaxRequests  float64 `toml:"max_requests_per_second"`
		Burst        int     `toml:"burst"`
	} `toml:"resource"`
	Store struct {
		SQLite string `toml:"sqlite"`
		Bolt   string `toml:"bolt"`
	} `toml:"store"`
	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`
}

// Load locates and parses the config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.NewDecoder(strings.NewReader(string(data))).DisallowUnknownFields().Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if lvl := strings.TrimSpace(raw.LogLevel); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return Config{}, fmt.Errorf("log_level: %w", err)
		}
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"resource.debounce", raw.Resource.Debounce, &cfg.Resource.Timing.Debounce},
		{"resource.timeout", raw.Resource.Timeout, &cfg.Resource.Timing.Timeout},
		{"resource.retention", raw.Resource.Retention, &cfg.Resource.Timing.Retention},
		{"resource.writebounce", raw.Resource.WriteBounce, &cfg.Resource.Timing.WriteBounce},
		{"resource.poll_interval", raw.Resource.PollInterval, &cfg.Resource.PollInterval},
	}
	for _, d := range durations {
		if err := parseDuration(d.field, d.raw, d.dst); err != nil {
			return Config{}, err
		}
	}

	if raw.Resource.MaxRequests < 0 {
		return Config{}, fmt.Errorf("resource.max_requests_per_second: must not be negative")
	}
	if raw.Resource.MaxRequests > 0 {
		cfg.Resource.MaxRequests = raw.Resource.MaxRequests
	}
	if raw.Resource.Burst > 0 {
		cfg.Resource.Burst = raw.Resource.Burst
	}

	if p := strings.TrimSpace(raw.Store.SQLite); p != "" {
		cfg.SQLitePath = mustExpand(p)
	}
	if p := strings.TrimSpace(raw.Store.Bolt); p != "" {
		cfg.BoltPath = mustExpand(p)
	}
	if addr := strings.TrimSpace(raw.Metrics.Listen); addr != "" {
		cfg.MetricsAddr = addr
	}

	return cfg, nil
}

func parseDuration(field, raw string, dst *time.Duration) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s: must not be negative", field)
	}
	*dst = d
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
