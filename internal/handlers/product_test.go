package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/procura/internal/models"
	"github.com/example/procura/internal/repository"
)

func newProductApp(t *testing.T) (*fiber.App, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	h := NewProductHandler(store.Products())

	app := fiber.New()
	app.Post("/api/products", h.CreateProduct)
	app.Put("/api/products/:id", h.UpdateProduct)
	return app, store
}

func seedCatalogProduct(t *testing.T, store *repository.MemoryStore) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:          "TWL-100",
		Name:         "Bath Towels",
		MarketPrice:  25,
		PartnerPrice: 20,
		Stock:        5,
		IsActive:     true,
	}
	require.NoError(t, store.Products().Create(context.Background(), product))
	return product
}

func TestUpdateProductAdjustsStock(t *testing.T) {
	app, store := newProductApp(t)
	product := seedCatalogProduct(t, store)

	req := httptest.NewRequest(http.MethodPut, "/api/products/"+product.ID.String(),
		strings.NewReader(`{"stock": 40}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := store.Products().GetByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Stock)
	assert.Equal(t, "Bath Towels", got.Name)
}

func TestUpdateProductOmittedStockUntouched(t *testing.T) {
	app, store := newProductApp(t)
	product := seedCatalogProduct(t, store)

	req := httptest.NewRequest(http.MethodPut, "/api/products/"+product.ID.String(),
		strings.NewReader(`{"name": "Hand Towels", "market_price": 30}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := store.Products().GetByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
	assert.Equal(t, "Hand Towels", got.Name)
	assert.Equal(t, 30.0, got.MarketPrice)
}

func TestCreateProductAcceptsInitialStock(t *testing.T) {
	app, store := newProductApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/products",
		strings.NewReader(`{"sku": "TWL-200", "name": "Pool Towels", "market_price": 18, "partner_price": 14, "stock": 120}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	products, _, err := store.Products().List(context.Background(), repository.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 120, products[0].Stock)
}
