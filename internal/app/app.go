package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/hclcfg"
	"github.com/vk/gridci/internal/yamlcfg"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle: a validated pipeline model, the trigger it runs under, and an
// isolated logger.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	cfg     *Config
	model   *config.Model
	trigger config.TriggerContext
}

// NewApp is the constructor for the main application. It loads and validates
// the pipeline definition and returns a fully initialized App instance with
// its own isolated logger. Loading and validation failures come back as
// errors so the CLI can map them to its exit code convention.
func NewApp(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	event, err := config.ParseEvent(cfg.Event)
	if err != nil {
		return nil, err
	}

	loader := config.NewMultiLoader(hclcfg.New(), yamlcfg.New())
	model, err := loader.Load(ctx, cfg.PipelinePath)
	if err != nil {
		// A broken definition is the user's input problem, whatever layer
		// detected it; fold it into the config error exit path.
		return nil, &config.Error{Message: fmt.Sprintf("loading pipeline definition: %v", err)}
	}
	logger.Debug("Pipeline definition translated into unified model.")

	if err := config.Validate(model); err != nil {
		return nil, err
	}
	logger.Debug("Pipeline model validation passed.", "pipeline", model.Pipeline.Name)

	return &App{
		outW:   outW,
		logger: logger,
		cfg:    cfg,
		model:  model,
		trigger: config.TriggerContext{
			Event:    event,
			Metadata: cfg.Meta,
		},
	}, nil
}

// Model returns the loaded pipeline model. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}
