package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/procura/internal/models"
	"github.com/example/procura/internal/repository"
	"github.com/example/procura/internal/utils"
)

// ProductHandler manages catalog endpoints.
type ProductHandler struct {
	products repository.ProductRepository
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(products repository.ProductRepository) *ProductHandler {
	return &ProductHandler{products: products}
}

// ListProducts returns active catalog products.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	filter := repository.ProductFilter{
		Category:   c.Query("category"),
		ActiveOnly: true,
		Limit:      pg.Limit,
		Offset:     pg.Offset,
	}

	products, total, err := h.products.List(c.Context(), filter)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    products,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetProduct returns a single product by ID.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	product, err := h.products.GetByID(c.Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

type productRequest struct {
	SKU          string   `json:"sku"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Description  string   `json:"description"`
	MarketPrice  float64  `json:"market_price"`
	PartnerPrice float64  `json:"partner_price"`
	BulkPrice    *float64 `json:"bulk_price"`
	Stock        *int     `json:"stock"`
	Unit         string   `json:"unit"`
	ImageURL     string   `json:"image_url"`
	IsActive     *bool    `json:"is_active"`
}

// CreateProduct adds a product to the catalog. Operator endpoint.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.SKU == "" || req.Name == "" || req.MarketPrice <= 0 || req.PartnerPrice <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "missing required fields")
	}

	product := models.Product{
		SKU:          req.SKU,
		Name:         req.Name,
		Category:     req.Category,
		Description:  req.Description,
		MarketPrice:  req.MarketPrice,
		PartnerPrice: req.PartnerPrice,
		BulkPrice:    req.BulkPrice,
		Unit:         req.Unit,
		ImageURL:     req.ImageURL,
		IsActive:     true,
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}

	if err := h.products.Create(c.Context(), &product); err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

// UpdateProduct edits catalog fields of an existing product. Operator endpoint.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	product, err := h.products.GetByID(c.Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}

	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Name != "" {
		product.Name = req.Name
	}
	if req.Category != "" {
		product.Category = req.Category
	}
	if req.Description != "" {
		product.Description = req.Description
	}
	if req.MarketPrice > 0 {
		product.MarketPrice = req.MarketPrice
	}
	if req.PartnerPrice > 0 {
		product.PartnerPrice = req.PartnerPrice
	}
	if req.BulkPrice != nil {
		product.BulkPrice = req.BulkPrice
	}
	if req.Unit != "" {
		product.Unit = req.Unit
	}
	if req.ImageURL != "" {
		product.ImageURL = req.ImageURL
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}

	if err := h.products.Update(c.Context(), product); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}
