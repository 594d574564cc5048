package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/students-api/internal/dto"
	"github.com/noah-isme/students-api/internal/repository"
	"github.com/noah-isme/students-api/internal/service"
	"github.com/noah-isme/students-api/internal/utils"
)

// StudentHandler wires the student resource endpoints.
type StudentHandler struct {
	service service.StudentService
	logger  zerolog.Logger
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(service service.StudentService, logger zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		service: service,
		logger:  logger.With().Str("component", "student_handler").Logger(),
	}
}

// Register attaches student routes to the router group.
func (h *StudentHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/:id", h.get)
	router.Put("/:id", h.update)
	router.Delete("/:id", h.delete)
}

func (h *StudentHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryIntDefault(c, "page", repository.DefaultPage)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}

	limit, err := parseQueryIntDefault(c, "limit", repository.DefaultLimit)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	active, err := parseQueryBool(c, "active")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid active flag")
	}

	req := dto.StudentListRequest{
		Page:    page,
		Limit:   limit,
		Search:  c.Query("search"),
		Program: c.Query("program"),
		Active:  active,
	}

	response, err := h.service.List(requestContext(c), req)
	if err != nil {
		return h.sendServiceError(c, err, "list students")
	}

	return utils.SendList(c, "students retrieved", response.Items, response.Total, response.Page, response.Limit)
}

func (h *StudentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	student, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return h.sendServiceError(c, err, "fetch student")
	}

	return utils.SendSuccess(c, "student retrieved", student)
}

func (h *StudentHandler) create(c *fiber.Ctx) error {
	var payload dto.CreateStudentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	student, err := h.service.Create(requestContext(c), payload)
	if err != nil {
		return h.sendServiceError(c, err, "create student")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student created", student)
}

func (h *StudentHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.UpdateStudentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	student, err := h.service.Update(requestContext(c), id, payload)
	if err != nil {
		return h.sendServiceError(c, err, "update student")
	}

	return utils.SendSuccess(c, "student updated", student)
}

func (h *StudentHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(requestContext(c), id); err != nil {
		return h.sendServiceError(c, err, "delete student")
	}

	return utils.SendSuccess(c, "student deleted", nil)
}

func (h *StudentHandler) sendServiceError(c *fiber.Ctx, err error, action string) error {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return utils.SendErrors(c, fiber.StatusBadRequest, "validation failed", validationErr.Fields)
	case errors.Is(err, service.ErrNothingToUpdate):
		return utils.SendErrors(c, fiber.StatusBadRequest, "validation failed", []string{err.Error()})
	case errors.Is(err, service.ErrStudentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "student not found")
	case errors.Is(err, service.ErrStudentConflict):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to " + action)
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to "+action)
	}
}
