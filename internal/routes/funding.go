package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_save/internal/funding"
)

// RegisterFundingRoutes wires the payment gateway webhook. It is
// authenticated by its body signature rather than a bearer token.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/webhooks/gateway", h.Webhook)
}
