// Package logging builds the zap logger used across labtree.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // file path, "-" for stderr
}

// DefaultPath is the log file under the labtree cache directory.
func DefaultPath(cacheDir string) string {
	return filepath.Join(cacheDir, "labtree.log")
}

// New builds a logger. The terminal belongs to the TUI, so output goes to a
// file unless OutputPath is "-".
func New(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}
	atomic := zap.NewAtomicLevelAt(level)

	var config zap.Config
	if cfg.Format == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = atomic
	config.DisableStacktrace = true

	switch cfg.OutputPath {
	case "", "-":
		config.OutputPaths = []string{"stderr"}
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
			return zap.NewNop(), atomic, err
		}
		config.OutputPaths = []string{cfg.OutputPath}
	}
	config.ErrorOutputPaths = config.OutputPaths

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop(), atomic, err
	}
	return logger, atomic, nil
}
