package app

import (
	"io"
	"log/slog"

	"github.com/earthcube-lab/buzzard/internal/pipeline"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW   io.Writer
	logW   io.Writer
	logger *slog.Logger
	config *Config
	loader pipeline.Loader
}

// NewApp constructs the application with its own isolated logger. outW
// receives user-facing output, logW the structured log stream.
func NewApp(outW, logW io.Writer, config *Config, loader pipeline.Loader) *App {
	return &App{
		outW:   outW,
		logW:   logW,
		logger: newLogger(config.LogLevel, config.LogFormat, logW),
		config: config,
		loader: loader,
	}
}
