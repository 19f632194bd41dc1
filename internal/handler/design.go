package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/strandart/api/internal/middleware"
	"github.com/strandart/api/internal/model"
	"github.com/strandart/api/internal/service"
	"github.com/strandart/api/pkg/response"
)

type DesignHandler struct {
	service   *service.DesignService
	validator *validator.Validate
}

func NewDesignHandler(svc *service.DesignService, v *validator.Validate) *DesignHandler {
	return &DesignHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/designs
func (h *DesignHandler) Create(c *fiber.Ctx) error {
	var req model.DesignCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	design, err := h.service.Create(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, design)
}

// List handles GET /api/designs
func (h *DesignHandler) List(c *fiber.Ctx) error {
	result, err := h.service.List(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Get handles GET /api/designs/:designId
func (h *DesignHandler) Get(c *fiber.Ctx) error {
	designID := c.Params("designId")
	if designID == "" {
		return response.ValidationError(c, "Design ID is required", nil)
	}

	design, err := h.service.Get(c.Context(), middleware.GetUserID(c), designID)
	if err != nil {
		if errors.Is(err, service.ErrDesignNotFound) {
			return response.NotFound(c, "Design not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, design)
}

// Update handles PUT /api/designs/:designId
func (h *DesignHandler) Update(c *fiber.Ctx) error {
	designID := c.Params("designId")
	if designID == "" {
		return response.ValidationError(c, "Design ID is required", nil)
	}

	var req model.DesignUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	design, err := h.service.Update(c.Context(), middleware.GetUserID(c), designID, &req)
	if err != nil {
		if errors.Is(err, service.ErrDesignNotFound) {
			return response.NotFound(c, "Design not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, design)
}

// Delete handles DELETE /api/designs/:designId
func (h *DesignHandler) Delete(c *fiber.Ctx) error {
	designID := c.Params("designId")
	if designID == "" {
		return response.ValidationError(c, "Design ID is required", nil)
	}

	if err := h.service.Delete(c.Context(), middleware.GetUserID(c), designID); err != nil {
		if errors.Is(err, service.ErrDesignNotFound) {
			return response.NotFound(c, "Design not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
