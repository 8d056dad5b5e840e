package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexflint/go-arg"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"labtree/internal/config"
	"labtree/internal/explorer"
	"labtree/internal/logging"
	"labtree/internal/metrics"
	"labtree/internal/services"
	"labtree/internal/state"
	"labtree/internal/ui"
)

const demoHost = "https://demo.labtree.local"

// Run parses argv (without the program name), wires the explorer and runs the
// terminal UI until the user quits.
func Run(argv []string) error {
	saved, loadErr := config.LoadConfig()
	cfg, err := config.ParseFlags(saved, argv, os.Stdout, os.Stderr)
	if err != nil {
		if errors.Is(err, arg.ErrHelp) {
			return nil
		}
		return err
	}
	if cfg.Demo {
		cfg.Host = demoHost
	}

	cacheDir := resolveCacheDir(cfg.CacheDir)
	logPath := cfg.LogFile
	if logPath == "" {
		logPath = logging.DefaultPath(cacheDir)
	}
	logger, _, err := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: logPath,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "labtree: logging disabled:", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	if loadErr != nil {
		logger.Warn("config load failed, using defaults", zap.Error(loadErr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recorder := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, recorder, logger.Named("metrics")); err != nil {
				logger.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	remote := newRemote(cfg, logger, recorder)
	tree := explorer.New(remote, services.NewFileStore(cacheDir), explorer.Options{
		Logger:     logger.Named("explorer"),
		Metrics:    recorder,
		DefaultRef: cfg.Ref,
		MaxWorkers: cfg.MaxWorkers,
	})
	defer tree.Teardown()
	actions := services.NewFileActions(remote, logger.Named("actions"), recorder)

	logger.Info("starting",
		zap.String("host", cfg.Host),
		zap.Bool("demo", cfg.Demo),
		zap.String("cache_dir", cacheDir),
		zap.Bool("refresh", cfg.Refresh),
	)
	model := ui.NewModel(state.NewState(cfg), ui.Deps{
		Explorer: tree,
		Actions:  actions,
		Remote:   remote,
		Logger:   logger.Named("ui"),
		Saved:    saved,
		Refresh:  cfg.Refresh,
	})
	if loadErr != nil {
		model = model.WithStatus("Config warning: using defaults")
	}
	program := tea.NewProgram(model, tea.WithAltScreen())
	finalModel, err := program.Run()
	if err != nil {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	if loadErr != nil {
		return nil
	}
	if provider, ok := finalModel.(ui.ConfigProvider); ok {
		if err := config.SaveConfig(provider.ConfigSnapshot()); err != nil {
			logger.Warn("config save failed", zap.Error(err))
		}
	}
	return nil
}

func resolveCacheDir(configured string) string {
	if configured != "" {
		return configured
	}
	dir, err := services.DefaultCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "labtree")
	}
	return dir
}

func newRemote(cfg config.Config, logger *zap.Logger, recorder *metrics.Recorder) services.RemoteClient {
	if cfg.Demo {
		return services.NewDemoRemote()
	}
	return services.NewGitLabClient(services.GitLabConfig{
		BaseURL:  cfg.Host,
		Tokens:   services.NewEnvTokenProvider(),
		Timeout:  cfg.Timeout,
		PageSize: cfg.PageSize,
		Logger:   logger.Named("gitlab"),
		Metrics:  recorder,
	})
}
