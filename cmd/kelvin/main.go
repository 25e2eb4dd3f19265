package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/haydenmc/KelvinBot/pkg/app"
	"github.com/haydenmc/KelvinBot/pkg/config"

	// Service adapters register themselves by kind.
	_ "github.com/haydenmc/KelvinBot/pkg/services/console"
	_ "github.com/haydenmc/KelvinBot/pkg/services/discord"
	_ "github.com/haydenmc/KelvinBot/pkg/services/dummy"
	_ "github.com/haydenmc/KelvinBot/pkg/services/slack"
	_ "github.com/haydenmc/KelvinBot/pkg/services/telegram"
	_ "github.com/haydenmc/KelvinBot/pkg/services/websocket"

	// Middleware plugins register themselves by kind.
	_ "github.com/haydenmc/KelvinBot/pkg/middlewares/echo"
	_ "github.com/haydenmc/KelvinBot/pkg/middlewares/history"
	_ "github.com/haydenmc/KelvinBot/pkg/middlewares/invite"
	_ "github.com/haydenmc/KelvinBot/pkg/middlewares/logger"
	_ "github.com/haydenmc/KelvinBot/pkg/middlewares/relay"
	_ "github.com/haydenmc/KelvinBot/pkg/middlewares/showtimes"
)

func main() {
	settings, err := config.LoadSettings()
	if err != nil {
		slog.Error("loading settings failed", "error", err)
		os.Exit(1)
	}
	initLogger(settings.LogLevel)

	if err := os.MkdirAll(settings.DataDirectory, 0o755); err != nil {
		slog.Error("creating data directory failed", "path", settings.DataDirectory, "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(settings.ConfigPath)
	if err != nil {
		slog.Error("loading configuration failed", "path", settings.ConfigPath, "error", err)
		os.Exit(1)
	}

	a, err := app.Build(cfg, settings, slog.Default())
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting", "services", len(cfg.Services), "middlewares", len(cfg.Middlewares))
	if err := a.Run(ctx); err != nil {
		slog.Error("bus exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("goodbye")
}

// initLogger sets up the global slog logger.
func initLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
