package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/specialistvlad/conveyorgo/internal/artifact"
	"github.com/specialistvlad/conveyorgo/internal/ctxlog"
	"github.com/specialistvlad/conveyorgo/internal/loader"
	"github.com/specialistvlad/conveyorgo/internal/model"
	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/secrets"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	workflow *model.Workflow
	registry *registry.Registry
	secrets  secrets.Source
	store    *artifact.Store
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// A workflow that cannot be loaded or validated is a fatal startup error and
// panics; the entrypoint recovers and translates it into an exit code.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	wf, err := loader.Load(ctx, cfg.WorkflowPath)
	if err != nil {
		// A failure to load the definition is a fatal startup error.
		panic(fmt.Errorf("failed to load workflow: %w", err))
	}
	logger.Debug("Workflow definition loaded.", "workflow", wf.Name, "jobs", len(wf.Jobs))

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All runner modules registered.", "runners", reg.Names())

	if err := reg.ValidateWorkflow(wf); err != nil {
		panic(err)
	}
	logger.Debug("Workflow validation passed.")

	src := secrets.Source(secrets.FromEnviron(os.Environ()))
	if cfg.SecretsFile != "" {
		fileSrc, err := secrets.FromFile(cfg.SecretsFile)
		if err != nil {
			panic(fmt.Errorf("failed to load secrets file: %w", err))
		}
		// Values from the file take precedence over the ambient environment.
		src = secrets.Overlay(src, fileSrc)
		logger.Debug("Secrets file overlaid on environment.", "path", cfg.SecretsFile)
	}

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		workflow: wf,
		registry: reg,
		secrets:  src,
		store:    artifact.NewStore(),
	}
}

// Workflow returns the loaded workflow. This is primarily for testing.
func (a *App) Workflow() *model.Workflow {
	return a.workflow
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Artifacts returns the run's artifact store. This is primarily for testing.
func (a *App) Artifacts() *artifact.Store {
	return a.store
}
