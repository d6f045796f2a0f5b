package cmd

import (
	"context"

	"grimm.is/blockd/internal/brand"
	"grimm.is/blockd/internal/config"
	"grimm.is/blockd/internal/daemon"
)

// RunDaemon runs blockd in the foreground until ctx is cancelled or a
// worker fails.
func RunDaemon(ctx context.Context, cfg *config.Config) error {
	logger, closer, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info("Starting "+brand.Name, "version", brand.Version, "listen", cfg.Listen,
		"backend", cfg.Firewall.Backend, "ttl", cfg.TTL, "batch", cfg.BatchSize)

	d, err := daemon.New(daemon.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	if err := d.Run(ctx); err != nil {
		logger.Error("Daemon stopped", "error", err)
		return err
	}
	logger.Info("Daemon stopped")
	return nil
}
