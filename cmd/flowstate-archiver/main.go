package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/helaix/flowstate/pkg/cmd"
	"github.com/helaix/flowstate/pkg/config"
	"github.com/helaix/flowstate/pkg/log"
	"github.com/helaix/flowstate/pkg/otelhelper"
)

func main() {
	cmd := &cli.Command{
		Name:                  "flowstate-archiver",
		Usage:                 "Offload aged snapshot payloads to cold storage",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "archiver-id",
				Aliases: []string{"id"},
				Usage:   "Custom archiver ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ARCHIVER_ID"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the flowstate.yaml configuration file",
				Value:   "flowstate.yaml",
				Sources: cli.EnvVars("FLOWSTATE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			archiverID := command.String("archiver-id")
			if archiverID == "" {
				archiverID = fmt.Sprintf("archiver-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("archiver").With("archiver_id", archiverID)

			logger.Info("Initializing Flowstate Archiver", "archiver_id", archiverID)

			if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
				if _, err := otelhelper.NewTracer(ctx, "flowstate-archiver"); err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}
			}

			cfg, err := config.LoadServiceConfig(command.String("config"))
			if err != nil {
				return err
			}

			if err := config.ValidateServiceConfig(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			persistence, err := cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(cfg.EventBus, "flowstate-archiver", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			archiver, err := cmd.NewArchiver(cmd.ArchiverConfig{
				Provider: cfg.Archive.Provider,
				RedisURL: cfg.Archive.RedisURL,
				S3:       cfg.Archive.S3,
			}, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := archiver.Close(); err != nil {
					logger.Error("Failed to close archiver", "error", err)
				}
			}()

			service := NewArchiverService(
				archiverID,
				persistence,
				archiver,
				eventBus,
				cfg.Sweep,
				logger,
			)

			service.Start(ctx)

			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
