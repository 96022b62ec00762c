// Package main provides the Flowstate API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/helaix/flowstate/pkg/eventbus"
	"github.com/helaix/flowstate/pkg/persistence"
	"github.com/helaix/flowstate/pkg/statestore"
	"github.com/helaix/flowstate/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	archive     statestore.SnapshotArchive
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	archive statestore.SnapshotArchive,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		eventBus:    eventBus,
		archive:     archive,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	store := statestore.NewManager(a.persistence, a.eventBus, a.archive, a.logger)

	handlers := web.NewAPIHandlers(store, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowstate API")
	})

	w := app.Group("/workflows")
	w.Post("/:id/state", handlers.PersistState)
	w.Get("/:id/state", handlers.GetState)
	w.Get("/:id/history", handlers.GetHistory)
	w.Post("/:id/subscriptions", handlers.Subscribe)
	w.Get("/:id/subscriptions", handlers.ListSubscriptions)
	w.Get("/:id/conflicts", handlers.ListConflicts)
	w.Post("/:id/snapshots", handlers.CreateSnapshot)
	w.Get("/:id/snapshots", handlers.ListSnapshots)
	w.Post("/:id/snapshots/:snapshotId/restore", handlers.RestoreSnapshot)

	app.Post("/conflicts/:conflictId/resolve", handlers.ResolveConflict)
	app.Post("/tasks", handlers.ProcessTask)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
