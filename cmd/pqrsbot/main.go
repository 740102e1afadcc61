package main

import (
	"os"

	"github.com/boddenberg/pqrs-intake-bot/internal/cli"
	"github.com/boddenberg/pqrs-intake-bot/internal/config"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/observability"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cli.NewRoot(cfg, logger).Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
