package middleware

import (
	"storefront/internal/models"

	"github.com/gofiber/fiber/v2"
)

// RequireRole lets the request through only when the authenticated user is
// active and holds one of roles. It must run after AuthRequired.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Not authenticated",
			})
		}
		if !user.HasRole(roles...) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Permission denied",
			})
		}
		return c.Next()
	}
}
