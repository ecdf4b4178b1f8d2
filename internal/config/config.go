package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	minMaxLineLength        = 16
	maxMaxLineLength        = 4096
	minBufferSize           = 1
	maxBufferSize           = 1 << 20
	minStatsIntervalSeconds = 1
	maxStatsIntervalSeconds = 86400
	minRetentionDays        = 1
	maxRetentionDays        = 3650
	minCleanupIntervalHours = 1
	maxCleanupIntervalHours = 720
)

const (
	BackendSysfs = "sysfs"
	BackendDBus  = "dbus"
)

type Config struct {
	Storage StorageConfig `toml:"storage"`
	Wakeup  WakeupConfig  `toml:"wakeup"`
	Stats   StatsConfig   `toml:"stats"`
	HAL     HALConfig     `toml:"hal"`
	Cleanup CleanupConfig `toml:"cleanup"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

type WakeupConfig struct {
	ReasonPath    string `toml:"reason_path"`
	MaxLineLength int    `toml:"max_line_length"`
	BufferSize    int    `toml:"buffer_size"`
}

type StatsConfig struct {
	BufferSize      int `toml:"buffer_size"`
	IntervalSeconds int `toml:"interval_seconds"`
}

type HALConfig struct {
	Backend   string `toml:"backend"`
	SysfsRoot string `toml:"sysfs_root"`
	DBusName  string `toml:"dbus_name"`
	DBusPath  string `toml:"dbus_path"`
}

type CleanupConfig struct {
	RetentionDays int `toml:"retention_days"`
	IntervalHours int `toml:"interval_hours"`
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath: "/var/lib/lowpower-stats/data.db",
		},
		Wakeup: WakeupConfig{
			ReasonPath:    "/sys/kernel/wakeup_reasons/last_resume_reason",
			MaxLineLength: 128,
			BufferSize:    512,
		},
		Stats: StatsConfig{
			BufferSize:      4096,
			IntervalSeconds: 60,
		},
		HAL: HALConfig{
			Backend:   BackendSysfs,
			SysfsRoot: "/sys",
			DBusName:  "org.gnome.LowPowerStats",
			DBusPath:  "/org/gnome/LowPowerStats",
		},
		Cleanup: CleanupConfig{
			RetentionDays: 30,
			IntervalHours: 24,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return NormalizeAndValidate(cfg)
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	var err error
	sanitized.Storage.DBPath, err = sanitizePath("storage.db_path", sanitized.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	sanitized.Wakeup.ReasonPath, err = sanitizePath("wakeup.reason_path", sanitized.Wakeup.ReasonPath)
	if err != nil {
		return nil, err
	}
	sanitized.HAL.SysfsRoot, err = sanitizePath("hal.sysfs_root", sanitized.HAL.SysfsRoot)
	if err != nil {
		return nil, err
	}

	sanitized.HAL.Backend = strings.ToLower(strings.TrimSpace(sanitized.HAL.Backend))
	switch sanitized.HAL.Backend {
	case BackendSysfs, BackendDBus:
	default:
		return nil, fmt.Errorf("hal.backend must be %q or %q, got %q", BackendSysfs, BackendDBus, cfg.HAL.Backend)
	}

	sanitized.HAL.DBusName = strings.TrimSpace(sanitized.HAL.DBusName)
	if sanitized.HAL.DBusName == "" {
		return nil, fmt.Errorf("hal.dbus_name must not be empty")
	}
	sanitized.HAL.DBusPath, err = sanitizePath("hal.dbus_path", sanitized.HAL.DBusPath)
	if err != nil {
		return nil, err
	}

	if err := validateRange("wakeup.max_line_length", sanitized.Wakeup.MaxLineLength, minMaxLineLength, maxMaxLineLength); err != nil {
		return nil, err
	}
	if err := validateRange("wakeup.buffer_size", sanitized.Wakeup.BufferSize, minBufferSize, maxBufferSize); err != nil {
		return nil, err
	}
	if err := validateRange("stats.buffer_size", sanitized.Stats.BufferSize, minBufferSize, maxBufferSize); err != nil {
		return nil, err
	}
	if err := validateRange("stats.interval_seconds", sanitized.Stats.IntervalSeconds, minStatsIntervalSeconds, maxStatsIntervalSeconds); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.retention_days", sanitized.Cleanup.RetentionDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.interval_hours", sanitized.Cleanup.IntervalHours, minCleanupIntervalHours, maxCleanupIntervalHours); err != nil {
		return nil, err
	}

	return &sanitized, nil
}

// Save validates cfg and writes it to path as TOML, replacing any existing
// file atomically.
func Save(path string, cfg *Config) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := toml.NewEncoder(&data).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}
	return writeFileAtomic(path, data.Bytes())
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}

	return nil
}
