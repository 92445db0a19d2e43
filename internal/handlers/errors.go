package handlers

import (
	"errors"

	"storefront/internal/logger"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindBadRequest:
		return fiber.StatusBadRequest
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindForbidden:
		return fiber.StatusForbidden
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes client-facing errors. Anything else is passed on to
// ErrorHandler.
func respondError(c *fiber.Ctx, err error) error {
	var vErr *validationError
	if errors.As(err, &vErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  vErr.fields,
		})
	}
	if svcErr, ok := services.AsError(err); ok {
		return c.Status(statusFor(svcErr.Kind)).JSON(fiber.Map{"message": svcErr.Message})
	}
	return err
}

// ErrorHandler is the app-wide fiber error handler. Unexpected errors are
// logged with the request's logger and answered without detail.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{"message": fiberErr.Message})
	}
	if svcErr, ok := services.AsError(err); ok {
		return c.Status(statusFor(svcErr.Kind)).JSON(fiber.Map{"message": svcErr.Message})
	}

	logger.FromContext(c.UserContext()).Error("unhandled error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "Internal server error",
	})
}
