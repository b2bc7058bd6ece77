package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/procura/internal/repository"
	"github.com/example/procura/internal/services"
)

// respondServiceError translates service-layer errors into HTTP responses.
func respondServiceError(c *fiber.Ctx, err error) error {
	var validation *services.ValidationError
	if errors.As(err, &validation) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"error":   "cart validation failed",
			"issues":  validation.Issues,
		})
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrInsufficientBalance):
		return fiber.NewError(fiber.StatusPaymentRequired, "insufficient wallet balance")
	case errors.Is(err, repository.ErrInsufficientStock):
		return fiber.NewError(fiber.StatusConflict, "insufficient stock")
	case errors.Is(err, services.ErrInvalidStateTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrValidationFailed):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrPaymentGateway):
		return fiber.NewError(fiber.StatusBadGateway, "payment gateway unavailable")
	}

	return err
}
