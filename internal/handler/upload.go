package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pais-staff/mediaflow/internal/model"
	"github.com/pais-staff/mediaflow/internal/service"
	"github.com/pais-staff/mediaflow/pkg/response"
)

type UploadHandler struct {
	service *service.UploadService
}

func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{service: svc}
}

// Upload handles POST /api/upload/:kind with a multipart "file" field
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	kind := model.AssetKind(c.Params("kind"))
	if kind != model.AssetKindImage && kind != model.AssetKindAudio {
		return response.ValidationError(c, "kind must be image or audio", nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to read uploaded file")
	}
	defer f.Close()

	result, err := h.service.Upload(c.UserContext(), kind, file.Filename, file.Header.Get("Content-Type"), file.Size, f)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Created(c, result)
}
