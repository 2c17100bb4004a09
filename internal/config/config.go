package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Moret84/rumble/internal/ble"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Scan     ScanConfig   `yaml:"scan"`
	Device   DeviceConfig `yaml:"device"`
}

// ScanConfig holds discovery settings.
type ScanConfig struct {
	Active           bool          `yaml:"active"`
	FilterDuplicates bool          `yaml:"filter_duplicates"`
	Duration         time.Duration `yaml:"duration"`
}

// DeviceConfig names the peripheral explored when none is given on the
// command line.
type DeviceConfig struct {
	Address        string        `yaml:"address"` // "AA:BB:CC:DD:EE:FF"
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "rumble")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Scan: ScanConfig{
			Active:           true,
			FilterDuplicates: true,
			Duration:         10 * time.Second,
		},
		Device: DeviceConfig{
			ConnectTimeout: 15 * time.Second,
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. A leading ~ in the path is expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Device.Address = strings.TrimSpace(cfg.Device.Address)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Scan.Duration <= 0 {
		return fmt.Errorf("scan.duration must be > 0")
	}

	if c.Device.Address != "" {
		if _, err := ble.ParseAddress(c.Device.Address); err != nil {
			return fmt.Errorf("device.address: %w", err)
		}
	}

	if c.Device.ConnectTimeout <= 0 {
		return fmt.Errorf("device.connect_timeout must be > 0")
	}

	return nil
}

// SlogLevel returns the slog level named by LogLevel.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

const defaultHeader = `# rumble configuration
# log_level: debug, info, warn or error
# scan.duration and device.connect_timeout take Go durations ("10s", "1m")
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the path written, or "" if a config file already exists there.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
