package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prismchat/prismchat/pkg/config"
	"github.com/prismchat/prismchat/pkg/utils"
)

// main starts the local prismchat backend: a JSON/WebSocket API plus the
// built web client, bound to localhost. It runs until interrupted.
func main() {
	utils.InitLogger()
	logger := utils.GetLogger()

	if _, err := config.EnsureDefaultConfig(); err != nil {
		logger.Warn("Failed to write default config", "error", err)
	}
	cfg, path, err := config.Load()
	if err != nil {
		logger.Warn("Failed to load config; falling back to defaults", "error", err, "path", path)
		cfg = &config.AppConfig{}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(cfg)
	if err := server.Start(ctx); err != nil {
		logger.Error("Server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
