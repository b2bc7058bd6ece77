package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/procura/internal/middleware"
	"github.com/example/procura/internal/models"
	"github.com/example/procura/internal/repository"
	"github.com/example/procura/internal/services"
	"github.com/example/procura/internal/utils"
)

// WalletHandler manages wallet and ledger endpoints.
type WalletHandler struct {
	wallets *services.WalletService
}

// NewWalletHandler constructs WalletHandler.
func NewWalletHandler(wallets *services.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// Balance returns the authenticated user's wallet balance.
func (h *WalletHandler) Balance(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	balance, err := h.wallets.Balance(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"balance":  balance,
			"currency": repository.DefaultCurrency,
		},
	})
}

// Transactions returns the user's ledger entries, newest first.
func (h *WalletHandler) Transactions(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	txns, total, err := h.wallets.Transactions(c.Context(), userID, pg.Limit, pg.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    txns,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

type creditWalletRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// Credit adds partner earnings to a user's wallet. Operator endpoint.
func (h *WalletHandler) Credit(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req creditWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Amount <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "amount must be positive")
	}

	txn, err := h.wallets.Credit(c.Context(), userID, req.Amount, models.WalletTxEarning, req.Description, nil)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": txn})
}

// Reconcile compares the cached balance with the ledger sum.
func (h *WalletHandler) Reconcile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	report, err := h.wallets.Reconcile(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": report})
}
