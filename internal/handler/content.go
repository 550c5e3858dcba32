package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/pais-staff/mediaflow/internal/middleware"
	"github.com/pais-staff/mediaflow/internal/model"
	"github.com/pais-staff/mediaflow/internal/service"
	"github.com/pais-staff/mediaflow/pkg/response"
)

type ContentHandler struct {
	service   *service.ContentService
	validator *validator.Validate
}

func NewContentHandler(svc *service.ContentService, v *validator.Validate) *ContentHandler {
	return &ContentHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/staff/content/generate
func (h *ContentHandler) Generate(c *fiber.Ctx) error {
	var req model.ContentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if strings.TrimSpace(req.Topic) == "" {
		return response.ValidationError(c, "topic is required", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Generate(c.UserContext(), &req)
	if err != nil {
		return response.AIError(c, err.Error())
	}

	return response.OK(c, result)
}

// List handles GET /api/staff/content/tasks
func (h *ContentHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		return response.ValidationError(c, "limit must be between 1 and 500", nil)
	}

	tasks, err := h.service.List(c.UserContext(), limit)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.TaskListResponse{
		Success: true,
		Tasks:   tasks,
		Total:   len(tasks),
	})
}

// Get handles GET /api/staff/content/task/:taskId
func (h *ContentHandler) Get(c *fiber.Ctx) error {
	task, err := h.service.Get(c.UserContext(), c.Params("taskId"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.TaskResponse{Success: true, Task: task})
}

// Update handles PUT /api/staff/content/task/:taskId
func (h *ContentHandler) Update(c *fiber.Ctx) error {
	var req model.ContentUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if req.Editor == "" {
		req.Editor = middleware.GetUserName(c)
	}

	task, err := h.service.Update(c.UserContext(), c.Params("taskId"), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.TaskResponse{Success: true, Task: task})
}

// Versions handles GET /api/staff/content/task/:taskId/versions
func (h *ContentHandler) Versions(c *fiber.Ctx) error {
	versions, err := h.service.Versions(c.UserContext(), c.Params("taskId"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.VersionListResponse{Success: true, Versions: versions})
}

// Approve handles POST /api/staff/content/task/:taskId/approve
func (h *ContentHandler) Approve(c *fiber.Ctx) error {
	task, err := h.service.Approve(c.UserContext(), c.Params("taskId"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.ApproveResponse{
		Success: true,
		OK:      true,
		TaskID:  task.ID,
		Message: "Task approved",
	})
}
