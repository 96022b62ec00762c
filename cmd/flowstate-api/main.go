package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/helaix/flowstate/pkg/cmd"
	"github.com/helaix/flowstate/pkg/config"
	"github.com/helaix/flowstate/pkg/log"
	"github.com/helaix/flowstate/pkg/otelhelper"
	"github.com/helaix/flowstate/pkg/statestore"
)

const defaultPort = 9091

func main() {
	cmd := &cli.Command{
		Name:                  "flowstate-api",
		Usage:                 "Store and serve versioned workflow state",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a flowstate.yaml with the snapshot archive settings",
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
			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Flowstate API")

			if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
				if _, err := otelhelper.NewTracer(ctx, "flowstate-api"); err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			// Event bus for state change notifications
			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "flowstate-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			// The archive read side is only needed to restore snapshots whose
			// payloads the sweeper already offloaded, so it stays optional.
			var snapshotArchive statestore.SnapshotArchive

			if path := command.String("config"); path != "" {
				cfg, err := config.LoadServiceConfig(path)
				if err != nil {
					return err
				}

				if cfg.Archive.Provider != "" {
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
							logger.ErrorContext(ctx, "Failed to close archiver", "error", err)
						}
					}()

					snapshotArchive = archiver
				}
			}

			api := NewAPI(
				logger,
				persistence,
				eventBus,
				snapshotArchive,
			)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
