package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/strandart/api/internal/gpu"
	"github.com/strandart/api/pkg/response"
)

// GPUHandler exposes the router's counters for operations
type GPUHandler struct {
	router *gpu.Router
}

func NewGPUHandler(router *gpu.Router) *GPUHandler {
	return &GPUHandler{router: router}
}

// Stats handles GET /gpu-stats
func (h *GPUHandler) Stats(c *fiber.Ctx) error {
	return response.OK(c, h.router.GetStats())
}
