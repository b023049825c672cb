// Command sweeper runs the maintenance jobs of the tracking service: schema
// migration, handoff expiry, completion re-matching and touch retention.
// It is meant to be invoked by cron or a scheduler, one job per run.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/touchpath/server/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Error("sweep failed", "error", err)
		stop()
		os.Exit(1)
	}
}
