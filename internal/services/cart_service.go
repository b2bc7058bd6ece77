package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/procura/internal/models"
	"github.com/example/procura/internal/repository"
)

// CartService manages per-user cart lines and prices them against the live
// catalog. It never mutates anything beyond the user's own cart records.
type CartService struct {
	products repository.ProductRepository
	carts    repository.CartRepository
}

// NewCartService constructs CartService.
func NewCartService(products repository.ProductRepository, carts repository.CartRepository) *CartService {
	return &CartService{products: products, carts: carts}
}

// CartLine is a cart item joined with its current catalog state. Product is
// nil and Available false when the catalog no longer serves the product.
type CartLine struct {
	Item      models.CartItem `json:"item"`
	Product   *models.Product `json:"product,omitempty"`
	UnitPrice float64         `json:"unit_price"`
	LineTotal float64         `json:"line_total"`
	Available bool            `json:"available"`
}

// Cart is the live view of a user's cart.
type Cart struct {
	Items      []CartLine `json:"items"`
	TotalItems int        `json:"total_items"`
	TotalPrice float64    `json:"total_price"`
}

// GetCart returns the user's cart priced at current catalog rates.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	items, err := s.carts.ItemsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	cart := &Cart{Items: make([]CartLine, 0, len(items))}
	for _, item := range items {
		line := CartLine{Item: item}
		product, err := s.products.GetByID(ctx, item.ProductID)
		// Catalog lookup gaps degrade to "unavailable" rather than failing
		// the whole cart read.
		if err == nil && product.IsActive {
			line.Product = product
			line.Available = product.Stock > 0
			line.UnitPrice = product.UnitPriceFor(item.Quantity)
			line.LineTotal = line.UnitPrice * float64(item.Quantity)
		}
		cart.Items = append(cart.Items, line)
		cart.TotalItems += item.Quantity
		cart.TotalPrice += line.LineTotal
	}
	return cart, nil
}

// AddItem puts qty units of a product into the cart, merging into the
// existing line when the product is already there.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.CartItem, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidationFailed)
	}

	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}

	existing, err := s.carts.FindByProduct(ctx, userID, productID)
	if err == nil {
		existing.Quantity += qty
		if err := s.carts.UpdateQuantity(ctx, existing.ID, existing.Quantity); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	item := &models.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
		AddedAt:   time.Now(),
	}
	if err := s.carts.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateQuantity sets a line's quantity. A quantity of zero or less removes
// the line.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) error {
	if qty <= 0 {
		return s.RemoveItem(ctx, userID, itemID)
	}
	item, err := s.carts.GetItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	return s.carts.UpdateQuantity(ctx, item.ID, qty)
}

// RemoveItem deletes a line from the user's cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	return s.carts.Delete(ctx, userID, itemID)
}

// Clear empties the user's cart.
func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.carts.Clear(ctx, userID)
}

// CorrectedItem reports a line whose quantity was capped to available
// stock during validation.
type CorrectedItem struct {
	ItemID    uuid.UUID `json:"item_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// ValidationResult is the outcome of a cart validation pass.
type ValidationResult struct {
	IsValid        bool            `json:"is_valid"`
	Errors         []CartIssue     `json:"errors"`
	CorrectedItems []CorrectedItem `json:"corrected_items"`
}

// Validate re-reads the catalog for every line and flags products that no
// longer exist, are inactive, or are out of stock. Lines requesting more
// than the available stock are capped to it and reported as corrected
// rather than rejected.
func (s *CartService) Validate(ctx context.Context, userID uuid.UUID) (*ValidationResult, error) {
	items, err := s.carts.ItemsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Errors:         []CartIssue{},
		CorrectedItems: []CorrectedItem{},
	}
	for _, item := range items {
		product, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			result.Errors = append(result.Errors, CartIssue{
				ItemID:    item.ID,
				ProductID: item.ProductID,
				Reason:    IssueProductNotFound,
			})
			continue
		}
		if !product.IsActive {
			result.Errors = append(result.Errors, CartIssue{
				ItemID:      item.ID,
				ProductID:   item.ProductID,
				ProductName: product.Name,
				Reason:      IssueProductInactive,
			})
			continue
		}
		if product.Stock <= 0 {
			result.Errors = append(result.Errors, CartIssue{
				ItemID:      item.ID,
				ProductID:   item.ProductID,
				ProductName: product.Name,
				Reason:      IssueOutOfStock,
			})
			continue
		}
		if item.Quantity > product.Stock {
			if err := s.carts.UpdateQuantity(ctx, item.ID, product.Stock); err != nil {
				return nil, err
			}
			result.CorrectedItems = append(result.CorrectedItems, CorrectedItem{
				ItemID:    item.ID,
				ProductID: item.ProductID,
				Quantity:  product.Stock,
			})
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result, nil
}

// CartTotals re-prices the cart at current catalog rates. Subtotal is
// measured at market prices, Discount is the saving against them, and
// Total = Subtotal - Discount is what the buyer pays before shipping.
type CartTotals struct {
	Subtotal  float64 `json:"subtotal"`
	Discount  float64 `json:"discount"`
	Total     float64 `json:"total"`
	ItemCount int     `json:"item_count"`
}

// CalculateTotals re-prices every line at current catalog pricing, applying
// the bulk tier where the quantity qualifies. Unavailable lines contribute
// nothing.
func (s *CartService) CalculateTotals(ctx context.Context, userID uuid.UUID) (*CartTotals, error) {
	items, err := s.carts.ItemsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	totals := &CartTotals{}
	for _, item := range items {
		product, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil || !product.IsActive {
			continue
		}
		unit := product.UnitPriceFor(item.Quantity)
		qty := float64(item.Quantity)
		totals.Subtotal += product.MarketPrice * qty
		totals.Discount += (product.MarketPrice - unit) * qty
		totals.ItemCount += item.Quantity
	}
	totals.Total = totals.Subtotal - totals.Discount
	return totals, nil
}
