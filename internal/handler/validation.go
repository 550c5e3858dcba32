package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/pais-staff/mediaflow/internal/service"
	"github.com/pais-staff/mediaflow/pkg/response"
)

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}

// serviceError maps service sentinels onto API error responses
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		return response.NotFound(c, "Task not found")
	case errors.Is(err, service.ErrMediaNotFound):
		return response.NotFound(c, "Media record not found")
	case errors.Is(err, service.ErrTaskNotApproved),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrMissingInput),
		errors.Is(err, service.ErrUnsupportedFile),
		errors.Is(err, service.ErrFileTooLarge):
		return response.ValidationError(c, err.Error(), nil)
	}
	return response.ServiceError(c, err.Error())
}
