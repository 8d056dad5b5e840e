package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configDirName  = "labtree"
	configFileName = "config.yaml"
)

func DefaultConfig() Config {
	return Config{
		Host:       "https://gitlab.com",
		Ref:        "main",
		Timeout:    20 * time.Second,
		PageSize:   100,
		MaxWorkers: 8,
		Theme:      "dark",
		LogLevel:   "info",
		LogFormat:  "json",
	}
}

func ConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, configDirName, configFileName), nil
}

func LoadConfig() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadFrom(path)
}

// LoadFrom merges the YAML file at path over the defaults; a missing file is not an error.
func LoadFrom(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, err
	}
	var stored fileConfig
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return config, fmt.Errorf("parse %s: %w", path, err)
	}
	return mergeConfig(config, stored), nil
}

func SaveConfig(config Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, config)
}

func SaveTo(path string, config Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeConfig(base Config, stored fileConfig) Config {
	merged := base
	if stored.Host != nil && strings.TrimSpace(*stored.Host) != "" {
		merged.Host = strings.TrimSpace(*stored.Host)
	}
	if stored.Ref != nil && *stored.Ref != "" {
		merged.Ref = *stored.Ref
	}
	if stored.CacheDir != nil {
		merged.CacheDir = *stored.CacheDir
	}
	if stored.DownloadDir != nil {
		merged.DownloadDir = *stored.DownloadDir
	}
	if stored.Timeout != nil && *stored.Timeout > 0 {
		merged.Timeout = *stored.Timeout
	}
	if stored.PageSize != nil && *stored.PageSize > 0 && *stored.PageSize <= 100 {
		merged.PageSize = *stored.PageSize
	}
	if stored.MaxWorkers != nil && *stored.MaxWorkers > 0 {
		merged.MaxWorkers = *stored.MaxWorkers
	}
	if stored.Theme != nil {
		merged.Theme = normalizeTheme(*stored.Theme, base.Theme)
	}
	if stored.LogLevel != nil {
		merged.LogLevel = *stored.LogLevel
	}
	if stored.LogFormat != nil {
		merged.LogFormat = *stored.LogFormat
	}
	if stored.LogFile != nil {
		merged.LogFile = *stored.LogFile
	}
	if stored.MetricsAddr != nil {
		merged.MetricsAddr = *stored.MetricsAddr
	}
	if stored.Demo != nil {
		merged.Demo = *stored.Demo
	}
	if stored.LastSearch != nil {
		merged.LastSearch = *stored.LastSearch
	}
	return merged
}

func normalizeTheme(value, fallback string) string {
	switch strings.ToLower(value) {
	case "dark", "light":
		return strings.ToLower(value)
	default:
		return fallback
	}
}
