package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/pais-staff/mediaflow/internal/model"
	"github.com/pais-staff/mediaflow/internal/service"
	"github.com/pais-staff/mediaflow/pkg/response"
)

type MediaHandler struct {
	service   *service.MediaService
	validator *validator.Validate
}

func NewMediaHandler(svc *service.MediaService, v *validator.Validate) *MediaHandler {
	return &MediaHandler{
		service:   svc,
		validator: v,
	}
}

// Voice handles POST /api/staff/media/voice/:taskId
func (h *MediaHandler) Voice(c *fiber.Ctx) error {
	result, err := h.service.StartVoice(c.UserContext(), c.Params("taskId"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.Accepted(c, result)
}

// Video handles POST /api/staff/media/video
func (h *MediaHandler) Video(c *fiber.Ctx) error {
	var req model.VideoJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Provide exactly one of task_id or audio_path, and an image_path", formatValidationErrors(err))
	}

	result, err := h.service.StartVideo(c.UserContext(), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Accepted(c, result)
}

// Compose handles POST /api/staff/media/compose
func (h *MediaHandler) Compose(c *fiber.Ctx) error {
	var req model.ComposeJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartCompose(c.UserContext(), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Accepted(c, result)
}

// Status handles GET /api/staff/media/status/:taskId
func (h *MediaHandler) Status(c *fiber.Ctx) error {
	result, err := h.service.Status(c.UserContext(), c.Params("taskId"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, result)
}
