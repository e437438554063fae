// Disputes - escrow-backed dispute resolution for the marketplace
package main

import (
	"context"
	"os"

	"github.com/servimarket/disputes/internal/config"
	"github.com/servimarket/disputes/internal/logging"
	"github.com/servimarket/disputes/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting disputes",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"negotiation_window", cfg.NegotiationWindow,
		"mediation_window", cfg.MediationWindow,
		"review_window", cfg.ReviewWindow,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
