package graphql

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/students-api/internal/middleware"
)

// MaxRequestBodySize caps the accepted GraphQL request body.
const MaxRequestBodySize = 1 << 20

// Handler serves GraphQL over HTTP.
type Handler struct {
	executor *Executor
	logger   zerolog.Logger
}

// NewHandler creates a fiber handler around executor.
func NewHandler(executor *Executor, logger zerolog.Logger) *Handler {
	return &Handler{
		executor: executor,
		logger:   logger.With().Str("component", "graphql_handler").Logger(),
	}
}

// Register attaches the GraphQL endpoint and its schema to the router group.
func (h *Handler) Register(router fiber.Router) {
	router.Post("", h.execute)
	router.Get("/schema", h.schema)
}

func (h *Handler) execute(c *fiber.Ctx) error {
	if len(c.Body()) > MaxRequestBodySize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(requestError("request body too large"))
	}

	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(requestError("invalid request body"))
	}

	ctx := middleware.ContextWithCorrelation(c.UserContext(), middleware.GetCorrelationID(c))
	resp := h.executor.Execute(ctx, req)

	status := fiber.StatusOK
	if resp.Data == nil && isRequestError(resp) {
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(resp)
}

func (h *Handler) schema(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "application/graphql; charset=utf-8")
	return c.SendString(SchemaSDL())
}

func isRequestError(resp *Response) bool {
	for _, err := range resp.Errors {
		if code, _ := err.Extensions["code"].(string); code == CodeBadRequest {
			return true
		}
	}
	return false
}
