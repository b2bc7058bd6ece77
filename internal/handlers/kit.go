package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/procura/internal/repository"
)

// KitHandler serves subscription kit endpoints.
type KitHandler struct {
	kits repository.KitRepository
}

// NewKitHandler constructs KitHandler.
func NewKitHandler(kits repository.KitRepository) *KitHandler {
	return &KitHandler{kits: kits}
}

// ListKits returns active subscription kits.
func (h *KitHandler) ListKits(c *fiber.Ctx) error {
	kits, err := h.kits.List(c.Context(), true)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": kits})
}

// GetKit returns a single kit with its product lines.
func (h *KitHandler) GetKit(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	kit, err := h.kits.GetByID(c.Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": kit})
}
