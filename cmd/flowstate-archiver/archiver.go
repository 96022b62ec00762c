package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helaix/flowstate/pkg/archive"
	"github.com/helaix/flowstate/pkg/eventbus"
	"github.com/helaix/flowstate/pkg/persistence"
)

// ArchiverService runs the snapshot sweeper as a long-lived daemon: on a cron
// schedule it offloads aged snapshot payloads to the archive backend and
// rewrites their index entries with the archive location.
type ArchiverService struct {
	id           string
	persistence  persistence.Persistence
	archiver     archive.Archiver
	eventBus     eventbus.EventBus
	sweepConfig  archive.SweeperConfig
	logger       *slog.Logger
	restartCount int
}

// NewArchiverService creates a new ArchiverService instance.
func NewArchiverService(
	id string,
	persistence persistence.Persistence,
	archiver archive.Archiver,
	eventBus eventbus.EventBus,
	sweepConfig archive.SweeperConfig,
	logger *slog.Logger,
) *ArchiverService {
	return &ArchiverService{
		id:          id,
		persistence: persistence,
		archiver:    archiver,
		eventBus:    eventBus,
		sweepConfig: sweepConfig,
		logger:      logger.With("module", "archiver"),
	}
}

// Start begins the archiver service.
func (a *ArchiverService) Start(ctx context.Context) {
	aCtx, cancel := context.WithCancel(ctx)

	a.logger.Info("Starting archiver")

	a.handleSignals(aCtx, cancel)
	a.run(aCtx)
}

// handleSignals sets up signal handling for graceful shutdown and restart.
func (a *ArchiverService) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		a.logger.Info("Received signal", "signal", sig)

		switch sig {
		case syscall.SIGHUP:
			a.logger.Info("Reloading configuration...")
			a.restart(ctx, cancel)
		case syscall.SIGINT, syscall.SIGTERM:
			a.logger.Info("Shutting down gracefully...")
			a.stop(cancel)
			os.Exit(0)
		default:
			a.logger.Warn("Unhandled signal received", "signal", sig)
		}
	}()
}

// restart handles service restart with exponential backoff.
func (a *ArchiverService) restart(ctx context.Context, cancel context.CancelFunc) {
	a.restartCount++
	newCtx := context.WithoutCancel(ctx)

	a.stop(cancel)

	if a.restartCount > 5 {
		a.logger.Error("Restart limit reached, exiting...")
		os.Exit(1)
	}

	backoff := time.Duration(a.restartCount) * time.Second
	a.logger.Info("Restarting archiver...", "backoff", backoff)
	time.Sleep(backoff)

	a.Start(newCtx)
}

// run checks the archive backend, runs one sweep so a backlog does not wait
// for the first scheduled tick, and then hands off to the cron schedule.
func (a *ArchiverService) run(ctx context.Context) {
	if err := a.archiver.HealthCheck(ctx); err != nil {
		a.logger.Error("Archive backend is unreachable", "error", err)

		return
	}

	sweeper, err := archive.NewSweeper(a.persistence, a.archiver, a.eventBus, a.sweepConfig, a.logger)
	if err != nil {
		a.logger.Error("Failed to create sweeper", "error", err)

		return
	}

	archived, err := sweeper.Sweep(ctx)
	if err != nil {
		a.logger.Error("Initial archive sweep failed", "error", err)
	} else {
		a.logger.Info("Initial archive sweep finished", "archived", archived)
	}

	if err := sweeper.Start(ctx); err != nil {
		a.logger.Error("Failed to start sweeper", "error", err)

		return
	}

	// Wait for context cancellation - the sweeps run on the cron schedule
	<-ctx.Done()
	a.logger.Info("Archiver context cancelled, stopping...")

	if err := sweeper.Stop(context.WithoutCancel(ctx)); err != nil {
		a.logger.Error("Failed to stop sweeper", "error", err)
	}
}

// stop gracefully shuts down the archiver.
func (a *ArchiverService) stop(cancel context.CancelFunc) {
	a.logger.Info("Stopping archiver")

	if cancel != nil {
		cancel()
	}
}
