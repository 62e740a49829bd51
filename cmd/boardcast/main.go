package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/boardcast/boardcast/internal/auth"
	"github.com/boardcast/boardcast/internal/authz"
	"github.com/boardcast/boardcast/internal/board"
	"github.com/boardcast/boardcast/internal/obs"
	"github.com/boardcast/boardcast/internal/server"
	"github.com/boardcast/boardcast/pkg/config"
	"github.com/boardcast/boardcast/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.LogLevel != logging.LevelInfo {
		logger = logging.New(cfg.LogLevel)
		slog.SetDefault(logger)
	}

	obs.Init()

	verifier, err := auth.NewVerifier(cfg.Server.Auth.Secret, cfg.Server.Auth.IssuerBaseURL)
	if err != nil {
		logger.Error("Failed to build token verifier", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Database.DSN == "" {
		logger.Error("database.dsn is required")
		os.Exit(1)
	}
	store, err := board.Open(cfg.Database.DSN)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()
	checker := authz.NewPGChecker(store.DB())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := server.NewApp(logger, ctx, cfg, verifier, checker, store)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
