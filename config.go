// config.go: Loader configuration with JSON/YAML loading and env overrides
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/argus"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding LoaderConfig.
const EnvPrefix = "MODLOADER_"

// maxConfigSize bounds the loader configuration file.
const maxConfigSize = 1 << 20

// LoaderConfig configures a Loader.
//
// Example YAML:
//
//	modules_dir: /opt/host/modules
//	save_dir: /var/lib/host/modules
//	temp_dir: /tmp/host-modules
//	disabled:
//	  - dev.example.overlay
//	watch_settings: true
//	settings_poll_interval: 2s
type LoaderConfig struct {
	// ModulesDir is scanned for package archives by InstallAll
	ModulesDir string `json:"modules_dir,omitempty" yaml:"modules_dir,omitempty"`

	// SaveDir holds one private directory per module for persisted data
	SaveDir string `json:"save_dir" yaml:"save_dir"`

	// TempDir is the root of the per-module staging directories
	TempDir string `json:"temp_dir,omitempty" yaml:"temp_dir,omitempty"`

	// Disabled lists module ids that are registered without load intent
	Disabled []string `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// MaxResolutionRounds bounds the passes of one resolution sweep
	MaxResolutionRounds int `json:"max_resolution_rounds,omitempty" yaml:"max_resolution_rounds,omitempty"`

	// WatchSettings enables hot reload of module settings documents
	WatchSettings bool `json:"watch_settings,omitempty" yaml:"watch_settings,omitempty"`

	// SettingsPollInterval is a duration string such as "1s"
	SettingsPollInterval string `json:"settings_poll_interval,omitempty" yaml:"settings_poll_interval,omitempty"`

	// LogLevel builds a zap logger at this level when no logger is supplied
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// DefaultLoaderConfig returns a configuration rooted at dir.
func DefaultLoaderConfig(dir string) LoaderConfig {
	cfg := LoaderConfig{
		ModulesDir: filepath.Join(dir, "modules"),
		SaveDir:    filepath.Join(dir, "save"),
		TempDir:    filepath.Join(dir, "temp"),
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in unset optional fields.
func (c *LoaderConfig) ApplyDefaults() {
	if c.TempDir == "" {
		c.TempDir = filepath.Join(os.TempDir(), "modloader")
	}
	if c.MaxResolutionRounds <= 0 {
		c.MaxResolutionRounds = 16
	}
	if c.SettingsPollInterval == "" {
		c.SettingsPollInterval = "1s"
	}
}

// Validate checks the configuration.
func (c *LoaderConfig) Validate() error {
	if c.SaveDir == "" {
		return NewConfigError("", "save_dir is required", nil)
	}
	d, err := time.ParseDuration(c.SettingsPollInterval)
	if err != nil {
		return NewConfigError("", "invalid settings_poll_interval", err)
	}
	if d <= 0 {
		return NewConfigError("", "settings_poll_interval must be positive", nil)
	}
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return NewConfigError("", "invalid log_level", err)
		}
	}
	for _, id := range c.Disabled {
		if err := validateModuleID(id); err != nil {
			return NewConfigError("", "invalid module id in disabled list", err)
		}
	}
	return nil
}

// PollInterval returns the parsed settings poll interval.
func (c *LoaderConfig) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.SettingsPollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// IsDisabled reports whether id is in the disabled list.
func (c *LoaderConfig) IsDisabled(id string) bool {
	for _, d := range c.Disabled {
		if d == id {
			return true
		}
	}
	return false
}

// LoadLoaderConfig reads a JSON or YAML configuration file, applies the
// environment overrides and defaults, and validates the result.
func LoadLoaderConfig(path string) (LoaderConfig, error) {
	var cfg LoaderConfig

	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, NewConfigError(path, "config file not accessible", err)
	}
	if !info.Mode().IsRegular() || info.Size() > maxConfigSize {
		return cfg, NewConfigError(path, "config file invalid or too large", nil)
	}
	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path validated above
	if err != nil {
		return cfg, NewConfigError(path, "failed to read config file", err)
	}

	format := argus.DetectFormat(cleanPath)
	switch format {
	case argus.FormatJSON:
		err = json.Unmarshal(data, &cfg)
	case argus.FormatYAML:
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, NewConfigError(path, "unsupported config format: "+format.String(), nil)
	}
	if err != nil {
		return cfg, NewConfigError(path, "failed to parse config file", err)
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return cfg, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overrides fields from MODLOADER_* environment variables.
func (c *LoaderConfig) ApplyEnvOverrides() error {
	if v, ok := os.LookupEnv(EnvPrefix + "MODULES_DIR"); ok && v != "" {
		c.ModulesDir = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "SAVE_DIR"); ok && v != "" {
		c.SaveDir = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "TEMP_DIR"); ok && v != "" {
		c.TempDir = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "DISABLED"); ok {
		c.Disabled = nil
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				c.Disabled = append(c.Disabled, id)
			}
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "WATCH_SETTINGS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return NewConfigError(EnvPrefix+"WATCH_SETTINGS", "invalid boolean", err)
		}
		c.WatchSettings = b
	}
	if v, ok := os.LookupEnv(EnvPrefix + "MAX_RESOLUTION_ROUNDS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewConfigError(EnvPrefix+"MAX_RESOLUTION_ROUNDS", "invalid integer", err)
		}
		c.MaxResolutionRounds = n
	}
	return nil
}
