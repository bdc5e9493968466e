package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/patetisho1/rabotim-com-sub003/internal/app"
	"github.com/patetisho1/rabotim-com-sub003/internal/config"
	pkgconfig "github.com/patetisho1/rabotim-com-sub003/pkg/config"
	"github.com/patetisho1/rabotim-com-sub003/pkg/logger"
)

func main() {
	// Local development reads a .env file; real environment variables win.
	if err := pkgconfig.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize structured logger.
	log := logger.New("reputation-service", cfg.LogLevel)
	log.Info("starting reputation service",
		slog.String("environment", cfg.Tracing.Environment),
		slog.Int("http_port", cfg.HTTPPort),
	)

	// Create the application with all dependencies wired.
	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Run the application. This blocks until shutdown.
	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("reputation service stopped")
}
