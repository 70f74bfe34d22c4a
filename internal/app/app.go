package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/pipegridgo/internal/compiler"
	"github.com/vk/pipegridgo/internal/ctxlog"
	"github.com/vk/pipegridgo/internal/model"
	"github.com/vk/pipegridgo/internal/workflow"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW   io.Writer
	logW   io.Writer
	logger *slog.Logger
	config *Config
	loader model.Loader
}

// NewApp is the constructor for the main application. Logs go to logW so
// that the compiled document on stdout stays clean.
func NewApp(outW, logW io.Writer, config *Config, loader model.Loader) *App {
	logger := newLogger(config.LogLevel, config.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	return &App{
		outW:   outW,
		logW:   logW,
		logger: logger,
		config: config,
		loader: loader,
	}
}

// Run executes one compilation: load definitions, compile, write the
// document.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	components, err := a.loader.LoadComponents(ctx, a.config.ComponentsPath)
	if err != nil {
		return fmt.Errorf("failed to load component definitions: %w", err)
	}
	a.logger.Debug("Component definitions loaded.", "count", len(components))

	pipeline, err := a.loader.LoadPipeline(ctx, a.config.PipelinePath)
	if err != nil {
		return fmt.Errorf("failed to load pipeline definition: %w", err)
	}
	a.logger.Debug("Pipeline definition loaded.", "name", pipeline.Name)

	doc, err := compiler.Compile(ctx, components, pipeline, compiler.Options{})
	if err != nil {
		return err
	}

	data, err := workflow.Marshal(doc)
	if err != nil {
		return err
	}

	if a.config.OutputPath != "" {
		if err := os.WriteFile(a.config.OutputPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write workflow document: %w", err)
		}
		a.logger.Info("Workflow document written.", "path", a.config.OutputPath, "bytes", len(data))
		return nil
	}

	if _, err := a.outW.Write(data); err != nil {
		return fmt.Errorf("failed to write workflow document: %w", err)
	}
	return nil
}
