package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/procura/internal/middleware"
	"github.com/example/procura/internal/services"
)

// CartHandler manages shopping cart endpoints.
type CartHandler struct {
	cart *services.CartService
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(cart *services.CartService) *CartHandler {
	return &CartHandler{cart: cart}
}

// GetCart returns the authenticated user's cart with pricing.
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	cart, err := h.cart.GetCart(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": cart})
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// AddItem adds a product to the cart, merging into an existing line.
func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req addCartItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	item, err := h.cart.AddItem(c.Context(), userID, productID, req.Quantity)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": item})
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateItem changes a cart line's quantity. Zero or negative removes it.
func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	itemID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateCartItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.cart.UpdateQuantity(c.Context(), userID, itemID, req.Quantity); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// RemoveItem deletes a cart line.
func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	itemID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	if err := h.cart.RemoveItem(c.Context(), userID, itemID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// Clear empties the cart.
func (h *CartHandler) Clear(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	if err := h.cart.Clear(c.Context(), userID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// Validate checks cart lines against the live catalog and reports issues.
func (h *CartHandler) Validate(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	result, err := h.cart.Validate(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": result})
}

// Totals prices the cart with partner and bulk discounts applied.
func (h *CartHandler) Totals(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	totals, err := h.cart.CalculateTotals(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": totals})
}
