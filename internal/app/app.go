package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/vk/detflow/internal/config"
	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/framestore"
	"github.com/vk/detflow/internal/graph"
	"github.com/vk/detflow/internal/hclgraph"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
	"github.com/vk/detflow/internal/remote"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	logFile *os.File
	cfg     *config.Config

	registry *registry.Registry
	types    *porttype.Registry
	openers  *lao.Openers
	format   config.GraphFormat

	progress   atomic.Pointer[graph.Progress]
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App with its own isolated logger, registries and openers. The
// built-in node palette is always registered; modules are added to it.
func NewApp(outW io.Writer, cfg *config.Config, modules ...registry.Module) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{outW: outW, cfg: cfg, format: hclgraph.Format{}}

	var fileW io.Writer
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		a.logFile = f
		fileW = f
	}
	a.logger = newLogger(cfg.Log.Level, cfg.Log.Format, outW, fileW)
	ctx := ctxlog.WithLogger(context.Background(), a.logger)
	a.logger.Debug("Logger configured successfully.", "logFile", cfg.Log.File)

	a.openers = lao.NewOpeners()
	a.openers.Register(framestore.Scheme, framestore.Opener())
	a.openers.Register(remote.Scheme, remote.Opener(remoteOptions(cfg.Remote)))
	a.logger.Debug("Array source openers registered.", "schemes", a.openers.Schemes())

	a.types = porttype.NewRegistry()
	a.registry = registry.New()
	all := append(a.coreModules(), modules...)
	for _, mod := range all {
		mod.Register(a.registry)
	}
	a.logger.Debug("All Go modules registered.", "count", len(all))

	if err := a.registry.Validate(ctx, a.types); err != nil {
		a.Close()
		return nil, err
	}
	a.logger.Debug("Registry validation passed.")
	return a, nil
}

// Close releases the log file, if one was opened.
func (a *App) Close() error {
	if a.logFile == nil {
		return nil
	}
	err := a.logFile.Close()
	a.logFile = nil
	return err
}

// Registry returns the application's node registry.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Types lists the registered port types.
func (a *App) Types() []porttype.Type {
	return a.types.Types()
}

// Schemas lists the registered node types sorted by ID.
func (a *App) Schemas() []*node.Schema {
	return a.registry.Schemas()
}

// Openers returns the array source openers shared by every graph the app runs.
func (a *App) Openers() *lao.Openers {
	return a.openers
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}
