package middleware

import (
	"strings"

	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const userKey = "user"

// AuthRequired is a Fiber middleware to check for a valid JWT token. The
// token's user is reloaded on every request and stored in the context.
func AuthRequired(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && strings.EqualFold(parts[0], "Bearer")) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		ctx := c.UserContext()
		user, err := authService.Authenticate(ctx, parts[1])
		if err != nil {
			svcErr, ok := services.AsError(err)
			if !ok {
				return err
			}
			logger.FromContext(ctx).Debug("authentication rejected", zap.String("reason", svcErr.Message))
			status := fiber.StatusUnauthorized
			if svcErr.Kind == services.KindForbidden {
				status = fiber.StatusForbidden
			}
			return c.Status(status).JSON(fiber.Map{"message": svcErr.Message})
		}

		c.Locals(userKey, user)
		c.SetUserContext(logger.WithContext(ctx, logger.FromContext(ctx).With(zap.String("user_id", user.ID))))
		return c.Next()
	}
}

// CurrentUser returns the user stored by AuthRequired, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userKey).(*models.User)
	return user
}
