package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/students-api/internal/apidocs"
	"github.com/noah-isme/students-api/internal/config"
	"github.com/noah-isme/students-api/internal/graphql"
	"github.com/noah-isme/students-api/internal/handler"
	"github.com/noah-isme/students-api/internal/middleware"
	"github.com/noah-isme/students-api/internal/observability"
	"github.com/noah-isme/students-api/internal/utils"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	StudentHandler  *handler.StudentHandler
	ActivityHandler *handler.ActivityHandler
	GraphQLHandler  *graphql.Handler
	Database        handler.Pinger
	Logger          zerolog.Logger
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	health := handler.HealthCheck(cfg, deps.Database)
	app.Get("/health", health)

	// Common v1 group for health & headers
	v1 := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	v1.Get("/health", health)

	api := app.Group("/api")

	if deps.StudentHandler != nil {
		students := api.Group("/students", middleware.MutatingOnly(
			middleware.RateLimit("students", cfg.RateLimitMax, cfg.RateLimitWindow),
		))
		deps.StudentHandler.Register(students)
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(api.Group("/activity"))
	}

	if deps.GraphQLHandler != nil {
		deps.GraphQLHandler.Register(app.Group("/graphql"))
	}

	app.Get("/api-docs/openapi.json", apidocs.Handler(deps.Logger))
	app.Get("/metrics", observability.MetricsHandler())

	app.Use(func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusNotFound, "route not found")
	})
}
