package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/reviewly/reviewly/internal/app"
	"github.com/reviewly/reviewly/internal/config"
	"github.com/reviewly/reviewly/internal/log"
)

// setupApp loads configuration, builds the logger and wires the application.
func setupApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{
		Level: logLevel(),
		JSON:  false,
	})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, nil
}

// logLevel maps the DEBUG environment variable to a log level. The CLI
// keeps the terminal quiet by default; the transcript is the output.
func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}
