package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_save/internal/transfer"
)

// RegisterTransferRoutes wires wallet-to-wallet transfers.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler) {
	r.Post("/transfers", h.Create)
}
