package apidocs

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/students-api/internal/utils"
)

// Handler returns a fiber handler that serves the document as JSON.
func Handler(logger zerolog.Logger) fiber.Handler {
	log := logger.With().Str("component", "apidocs").Logger()

	return func(c *fiber.Ctx) error {
		body, err := JSON(c.UserContext())
		if err != nil {
			log.Error().Err(err).Msg("failed to render OpenAPI document")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to render API documentation")
		}

		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
		return c.Send(body)
	}
}
