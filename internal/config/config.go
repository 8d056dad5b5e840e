package config

import "time"

type Config struct {
	Host        string        `yaml:"host"`
	Ref         string        `yaml:"ref"`
	CacheDir    string        `yaml:"cacheDir,omitempty"`
	DownloadDir string        `yaml:"downloadDir,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
	PageSize    int           `yaml:"pageSize"`
	MaxWorkers  int           `yaml:"maxWorkers"`
	Theme       string        `yaml:"theme"`
	LogLevel    string        `yaml:"logLevel"`
	LogFormat   string        `yaml:"logFormat"`
	LogFile     string        `yaml:"logFile,omitempty"`
	MetricsAddr string        `yaml:"metricsAddr,omitempty"`
	Demo        bool          `yaml:"demo"`
	LastSearch  string        `yaml:"lastSearch,omitempty"`

	// Refresh discards the cached tree at start; it is never persisted.
	Refresh bool `yaml:"-"`
}

type fileConfig struct {
	Host        *string        `yaml:"host"`
	Ref         *string        `yaml:"ref"`
	CacheDir    *string        `yaml:"cacheDir"`
	DownloadDir *string        `yaml:"downloadDir"`
	Timeout     *time.Duration `yaml:"timeout"`
	PageSize    *int           `yaml:"pageSize"`
	MaxWorkers  *int           `yaml:"maxWorkers"`
	Theme       *string        `yaml:"theme"`
	LogLevel    *string        `yaml:"logLevel"`
	LogFormat   *string        `yaml:"logFormat"`
	LogFile     *string        `yaml:"logFile"`
	MetricsAddr *string        `yaml:"metricsAddr"`
	Demo        *bool          `yaml:"demo"`
	LastSearch  *string        `yaml:"lastSearch"`
}
