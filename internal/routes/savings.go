package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_save/internal/savings"
)

// RegisterSavingsRoutes wires saving and challenge endpoints.
func RegisterSavingsRoutes(r fiber.Router, h *savings.Handler) {
	r.Post("/savings", h.Create)
	r.Post("/savings/:savingId/join", h.Join)
	r.Get("/savings/:savingId", h.Get)
}
