// Package config resolves pipegraph settings from layered sources.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/ritzau/pipegraph/pkg/history"
	"github.com/ritzau/pipegraph/pkg/model"
)

// FileName is the optional config file read from the working directory
const FileName = "pipegraph.toml"

const envPrefix = "PIPEGRAPH_"

// Config holds all configuration for the application
type Config struct {
	Platform  string `koanf:"platform"`
	Rows      int64  `koanf:"rows"`
	History   int    `koanf:"history"`
	Simulate  bool   `koanf:"simulate"`
	Preview   bool   `koanf:"preview"`
	Web       bool   `koanf:"web"`
	Port      int    `koanf:"port"`
	Watch     bool   `koanf:"watch"`
	State     string `koanf:"state"`
	JSONLogs  bool   `koanf:"json-logs"`
	Verbosity string `koanf:"verbosity"`
	Verbose   int    `koanf:"verbose"`
}

// Defaults returns the lowest configuration layer
func Defaults() map[string]any {
	return map[string]any{
		"platform":  string(model.PlatformSSIS),
		"rows":      1_000_000,
		"history":   history.DefaultCapacity,
		"simulate":  false,
		"preview":   false,
		"web":       false,
		"port":      8080,
		"watch":     false,
		"state":     "",
		"json-logs": false,
		"verbosity": "",
		"verbose":   0,
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return load(f, FileName)
}

func load(f *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// The file is optional, but one that exists must parse
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	// PIPEGRAPH_JSON_LOGS=true -> json-logs
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := model.ParsePlatform(c.Platform); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Rows <= 0 {
		return fmt.Errorf("invalid config: rows must be positive, got %d", c.Rows)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid config: port %d out of range", c.Port)
	}
	return nil
}

// PlatformTag returns the configured platform, already checked by Load
func (c *Config) PlatformTag() model.Platform {
	p, _ := model.ParsePlatform(c.Platform)
	return p
}

// mapProvider serves an in-memory map as a koanf layer
type mapProvider map[string]any

func (p mapProvider) Read() (map[string]any, error) {
	return p, nil
}

func (p mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
