package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const userIDLocal = "user_id"

// UserID returns the authenticated user stored by JWTAuth.
func UserID(c *fiber.Ctx) (uuid.UUID, error) {
	raw, _ := c.Locals(userIDLocal).(string)
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fiber.NewError(http.StatusUnauthorized, "unauthenticated")
	}
	return id, nil
}
