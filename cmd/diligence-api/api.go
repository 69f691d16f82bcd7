// Package main provides the diligence API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/scoutvc/diligence/pkg/eventbus"
	"github.com/scoutvc/diligence/pkg/persistence"
	"github.com/scoutvc/diligence/pkg/services"
	"github.com/scoutvc/diligence/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	runner      services.Runner
	apiKeys     []string
	validate    *validator.Validate

	service *services.Analysis
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	runner services.Runner,
	apiKeys []string,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		runner:      runner,
		apiKeys:     apiKeys,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	a.service = services.NewAnalysis(a.persistence, a.runner, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(a.service, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Diligence API")
	})

	analyses := app.Group("/analyses", web.APIKeyAuth(a.apiKeys))
	analyses.Post("/", handlers.CreateAnalysis)
	analyses.Get("/", handlers.ListAnalyses)
	analyses.Get("/:id", handlers.GetAnalysis)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}

// Drain waits for background analysis runs to settle.
func (a *API) Drain() {
	if a.service != nil {
		a.service.Wait()
	}
}
