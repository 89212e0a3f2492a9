// Package main provides the Cascata API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/rbarros/cascata/pkg/persistence"
	"github.com/rbarros/cascata/pkg/registry"
	"github.com/rbarros/cascata/pkg/stream"
	"github.com/rbarros/cascata/pkg/web"
	"github.com/rbarros/cascata/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventLog    stream.EventLog
	registry    *registry.Registry
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	eventLog stream.EventLog,
	r *registry.Registry,
) (*API, error) {
	return &API{
		logger:      logger,
		persistence: p,
		eventLog:    eventLog,
		registry:    r,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (a *API) App() (*fiber.App, error) {
	engine := workflow.NewEngine(a.persistence, a.registry, nil, a.logger)

	handlers, err := web.NewAPIHandlers(a.persistence, a.eventLog, engine, a.validate, a.registry, a.logger)
	if err != nil {
		return nil, err
	}

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Cascata API")
	})

	app.Post("/submit", handlers.Submit)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)

	i := app.Group("/instances")
	i.Get("/:id", handlers.GetInstance)
	i.Post("/:id/resume", handlers.ResumeInstance)

	app.Get("/health", handlers.HealthCheck)

	return app, nil
}

func (a *API) Start(port int) error {
	app, err := a.App()
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
