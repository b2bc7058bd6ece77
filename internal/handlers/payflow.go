package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/procura/internal/services"
)

// PayflowHandler receives gateway callbacks.
type PayflowHandler struct {
	orders *services.OrderService
}

// NewPayflowHandler constructs PayflowHandler.
func NewPayflowHandler(orders *services.OrderService) *PayflowHandler {
	return &PayflowHandler{orders: orders}
}

type payflowCallbackRequest struct {
	Reference string `json:"reference"`
	OrderRef  string `json:"order_ref"`
	State     string `json:"state"`
}

// Callback handles the gateway's settlement notification. The callback is
// a hint only: the order's payment state is always re-verified against the
// gateway, never trusted from the callback body.
func (h *PayflowHandler) Callback(c *fiber.Ctx) error {
	var req payflowCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	orderID, err := uuid.Parse(req.OrderRef)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order reference")
	}

	order, err := h.orders.VerifyPayment(c.Context(), orderID)
	if err != nil {
		log.Printf("[Payflow] callback verification failed for order %s: %v", orderID, err)
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":             order.ID,
			"payment_status": order.PaymentStatus,
		},
	})
}
