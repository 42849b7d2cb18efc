package handlers

import (
	"github.com/gofiber/fiber/v2"

	"aiplatform/internal/llm"
)

// ModelHandler serves the model catalog
type ModelHandler struct {
	registry *llm.Registry
}

func NewModelHandler(registry *llm.Registry) *ModelHandler {
	return &ModelHandler{registry: registry}
}

// List handles GET /api/models
func (h *ModelHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"models":  h.registry.List(),
		"default": h.registry.DefaultModel(),
	})
}
