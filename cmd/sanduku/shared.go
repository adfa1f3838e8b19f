package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/sanduku/internal/config"
	"github.com/jkaninda/sanduku/internal/executor"
	"github.com/jkaninda/sanduku/internal/observability"
	"github.com/jkaninda/sanduku/internal/storage"
	"github.com/jkaninda/sanduku/internal/toolloader"
	"github.com/jkaninda/sanduku/internal/workspace"
)

// SharedComponents holds all initialized subsystems that both server and
// one-shot modes require. Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config    *config.Config
	Logger    *slog.Logger
	Workspace *workspace.Workspace
	Loader    *toolloader.Loader
	Executor  *executor.Executor
	Store     *storage.Manager
	Obs       *observability.Observability

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// newLogger builds the process-wide structured logger.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// loadConfig reads the config file, falling back to built-in defaults
// when the default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	resolved := goutils.Env("SANDUKU_CONFIG", path)

	cfg, err := config.Load(resolved)
	if err != nil {
		// A missing file at the default location is not an error; an
		// explicitly named file must exist.
		if errors.Is(err, fs.ErrNotExist) && resolved == config.DefaultConfigPath() {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// initShared performs all common initialization shared between server and
// one-shot modes. Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Workspace.
	ws, err := initWorkspace(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	if err := ws.EnsureAll(); err != nil {
		return nil, fmt.Errorf("creating workspace directories: %w", err)
	}
	sc.Workspace = ws
	logger.Debug("workspace initialized", slog.String("root", ws.Root))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})

	// Tool catalog.
	toolsDir := cfg.ToolsDir
	if toolsDir == "" {
		toolsDir = ws.ToolsDir()
	}
	loader := toolloader.NewLoader(toolsDir, logger)
	result, err := loader.Load()
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("loading tool catalog: %w", err)
	}
	sc.Loader = loader
	logger.Info("tool catalog loaded",
		slog.String("dir", toolsDir),
		slog.Int("loaded", result.Loaded),
		slog.Int("errors", len(result.Errors)),
	)

	// Session storage.
	sc.Store = storage.NewManager(ws, cfg.Sessions.TTL(), logger)

	// Executor over the Docker CLI runtime.
	seccompPath := cfg.Sandbox.SeccompPath
	if seccompPath == "" {
		seccompPath = ws.SeccompProfilePath()
	}
	sc.Executor = executor.New(executor.Config{
		DefaultImage: cfg.Sandbox.Image(),
		PIDsLimit:    cfg.Sandbox.PIDs(),
		SeccompPath:  seccompPath,
	}, executor.NewDockerRuntime(logger), ws, logger)
	if m := obs.MetricsOrNil(); m != nil {
		sc.Executor.WithMetrics(m)
	}

	// Readiness checks.
	if obs != nil && obs.Health != nil && cfg.Observability.Health != nil {
		if cfg.Observability.Health.IncludeDocker {
			obs.Health.AddDockerCheck()
		}
		if cfg.Observability.Health.IncludeSessions {
			store := sc.Store
			obs.Health.AddCheck("sessions", func(context.Context) error {
				_ = store.Count()
				return nil
			})
		}
	}

	return sc, nil
}

// initWorkspace resolves the workspace root from config or falls back to
// the default location under the user's home directory.
func initWorkspace(cfg *config.Config) (*workspace.Workspace, error) {
	if cfg.Workspace != "" {
		return workspace.New(cfg.Workspace)
	}
	return workspace.Default()
}
