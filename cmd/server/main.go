// HomeEscrow - escrow lifecycle service for real-estate transactions
package main

import (
	"context"
	"os"

	"github.com/mbd888/homeescrow/internal/config"
	"github.com/mbd888/homeescrow/internal/logging"
	"github.com/mbd888/homeescrow/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting homeescrow",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
		"persistent", cfg.DatabaseURL != "",
		"documents", cfg.DocumentsEnabled(),
	)
	server.Version = Version

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
