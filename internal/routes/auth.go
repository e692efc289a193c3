package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_save/internal/auth"
	"github.com/congo-pay/congo_save/internal/identity"
)

// RegisterAuthRoutes wires registration and login.
func RegisterAuthRoutes(r fiber.Router, ids *identity.Handler, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/register", ids.Register)
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
}
