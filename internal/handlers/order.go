package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/procura/internal/middleware"
	"github.com/example/procura/internal/models"
	"github.com/example/procura/internal/repository"
	"github.com/example/procura/internal/services"
	"github.com/example/procura/internal/utils"
)

// OrderHandler manages order and delivery tracking endpoints.
type OrderHandler struct {
	orders   *services.OrderService
	tracking *services.TrackingService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService, tracking *services.TrackingService) *OrderHandler {
	return &OrderHandler{orders: orders, tracking: tracking}
}

type createOrderRequest struct {
	PaymentMethod     string `json:"payment_method"`
	DeliveryAddressID string `json:"delivery_address_id"`
	AddressLine       string `json:"address_line"`
	City              string `json:"city"`
	District          string `json:"district"`
	Notes             string `json:"notes"`
	KitID             string `json:"kit_id"`
}

func (r createOrderRequest) toInput() (services.CreateOrderInput, error) {
	in := services.CreateOrderInput{
		Method:      models.PaymentMethod(r.PaymentMethod),
		AddressLine: r.AddressLine,
		City:        r.City,
		District:    r.District,
		Notes:       r.Notes,
	}

	switch in.Method {
	case models.PaymentMethodLedger, models.PaymentMethodPayflow, models.PaymentMethodBankTransfer:
	default:
		return in, fiber.NewError(fiber.StatusBadRequest, "unknown payment method")
	}

	if r.DeliveryAddressID != "" {
		id, err := uuid.Parse(r.DeliveryAddressID)
		if err != nil {
			return in, fiber.NewError(fiber.StatusBadRequest, "invalid delivery address id")
		}
		in.AddressID = &id
	}

	return in, nil
}

// CreateOrder places an order from the authenticated user's cart. When a
// kit_id is supplied the order is built from the kit's locked prices
// instead of the cart.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	in, err := req.toInput()
	if err != nil {
		return err
	}

	var result *services.CreateOrderResult
	if req.KitID != "" {
		kitID, err := uuid.Parse(req.KitID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid kit id")
		}
		result, err = h.orders.CreateKitOrder(c.Context(), userID, kitID, in)
		if err != nil {
			return respondServiceError(c, err)
		}
	} else {
		result, err = h.orders.CreateOrder(c.Context(), userID, in)
		if err != nil {
			return respondServiceError(c, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":             result.Order.ID,
			"order_number":   result.Order.OrderNumber,
			"status":         result.Order.Status,
			"payment_status": result.Order.PaymentStatus,
			"total":          result.Order.TotalAmount,
			"currency":       result.Order.Currency,
			"redirect_url":   result.RedirectURL,
		},
	})
}

// ListOrders returns orders for the authenticated user.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	filter := repository.OrderFilter{
		Status: models.OrderStatus(c.Query("status")),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}

	orders, total, err := h.orders.ListOrders(c.Context(), userID, filter)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOrder returns a single order for the authenticated user.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	order, err := h.orders.GetOrder(c.Context(), userID, id)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder cancels a non-terminal order, releasing stock and refunding
// settled payments.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	if _, err := h.orders.GetOrder(c.Context(), userID, id); err != nil {
		return respondServiceError(c, err)
	}

	var req cancelOrderRequest
	_ = c.BodyParser(&req)

	order, err := h.orders.CancelOrder(c.Context(), id, req.Reason)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus advances the order lifecycle. Operator endpoint.
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.orders.UpdateStatus(c.Context(), id, models.OrderStatus(req.Status))
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

// VerifyPayment re-checks a pending external payment with the gateway.
func (h *OrderHandler) VerifyPayment(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	if _, err := h.orders.GetOrder(c.Context(), userID, id); err != nil {
		return respondServiceError(c, err)
	}

	order, err := h.orders.VerifyPayment(c.Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":             order.ID,
			"status":         order.Status,
			"payment_status": order.PaymentStatus,
		},
	})
}

type confirmSettlementRequest struct {
	ExternalRef string `json:"external_ref"`
}

// ConfirmSettlement marks a bank transfer as received. Operator endpoint.
func (h *OrderHandler) ConfirmSettlement(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req confirmSettlementRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.orders.ConfirmManualSettlement(c.Context(), id, req.ExternalRef)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

// ListTrackingEvents returns the delivery tracking log of an order.
func (h *OrderHandler) ListTrackingEvents(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	if _, err := h.orders.GetOrder(c.Context(), userID, id); err != nil {
		return respondServiceError(c, err)
	}

	events, err := h.tracking.Events(c.Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}

	phase, err := h.tracking.Phase(c.Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"phase":  phase,
			"events": events,
		},
	})
}

type appendTrackingEventRequest struct {
	Status     string   `json:"status"`
	Location   string   `json:"location"`
	Note       string   `json:"note"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	OccurredAt string   `json:"occurred_at"`
}

// AppendTrackingEvent records a delivery milestone. Operator endpoint.
func (h *OrderHandler) AppendTrackingEvent(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req appendTrackingEventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	in := services.AppendEventInput{
		OrderID:   id,
		Status:    models.TrackingStatus(req.Status),
		Location:  req.Location,
		Note:      req.Note,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}

	if req.OccurredAt != "" {
		occurredAt, err := time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid occurred_at")
		}
		in.OccurredAt = occurredAt
	}

	event, err := h.tracking.AppendEvent(c.Context(), in)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": event})
}
