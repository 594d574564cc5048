package middleware

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Config customises the shared middleware chain.
type Config struct {
	// Logger receives request and panic logs. Nil discards them.
	Logger *zerolog.Logger
	// AccessLog toggles fiber's plain access line logger.
	AccessLog bool
	// AllowOrigins is the CORS origin list; empty allows any origin.
	AllowOrigins string
}

// Register installs, in order: panic recovery, correlation ids, metrics and
// request logging, the optional access log and CORS.
func Register(app *fiber.App, cfg Config) {
	log := zerolog.New(io.Discard)
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			log.Error().
				Str("correlation_id", GetCorrelationID(c)).
				Str("path", c.Path()).
				Interface("panic", e).
				Msg("handler panicked")
		},
	}))
	app.Use(CorrelationID())
	app.Use(Observability(log))
	if cfg.AccessLog {
		app.Use(logger.New())
	}

	origins := strings.TrimSpace(cfg.AllowOrigins)
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  strings.Join([]string{fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, CorrelationHeader}, ", "),
		AllowMethods:  strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodPut, fiber.MethodDelete, fiber.MethodOptions}, ","),
		ExposeHeaders: CorrelationHeader,
	}))
}
