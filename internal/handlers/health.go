package handlers

import (
	"github.com/gofiber/fiber/v2"

	"aiplatform/internal/database"
	"aiplatform/internal/llm"
)

// HealthHandler serves liveness and readiness checks
type HealthHandler struct {
	db       *database.DB
	registry *llm.Registry
	version  string
}

func NewHealthHandler(db *database.DB, registry *llm.Registry, version string) *HealthHandler {
	return &HealthHandler{db: db, registry: registry, version: version}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	dbStatus := "ok"
	status := fiber.StatusOK
	if err := h.db.Ping(); err != nil {
		dbStatus = "unreachable"
		status = fiber.StatusServiceUnavailable
	}

	loaded := 0
	for _, m := range h.registry.List() {
		if !m.Alias && m.ID != llm.AutoModel && m.Loaded {
			loaded++
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"status":        dbStatus,
		"version":       h.version,
		"models_loaded": loaded,
	})
}
