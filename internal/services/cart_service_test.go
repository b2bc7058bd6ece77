package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/procura/internal/models"
	"github.com/example/procura/internal/repository"
)

func newCartEnv(t *testing.T) (*repository.MemoryStore, *CartService) {
	t.Helper()
	store := repository.NewMemoryStore()
	return store, NewCartService(store.Products(), store.Carts())
}

func seedProduct(t *testing.T, store *repository.MemoryStore, p models.Product) *models.Product {
	t.Helper()
	if p.SKU == "" {
		p.SKU = "SKU-" + uuid.NewString()[:8]
	}
	require.NoError(t, store.Products().Create(context.Background(), &p))
	return &p
}

func TestAddItemMergesExistingLine(t *testing.T) {
	ctx := context.Background()
	store, cart := newCartEnv(t)
	userID := uuid.New()
	product := seedProduct(t, store, models.Product{
		Name: "Shampoo", MarketPrice: 10, PartnerPrice: 8, Stock: 50, IsActive: true,
	})

	_, err := cart.AddItem(ctx, userID, product.ID, 2)
	require.NoError(t, err)
	item, err := cart.AddItem(ctx, userID, product.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity)

	got, err := cart.GetCart(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 5, got.TotalItems)
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	ctx := context.Background()
	store, cart := newCartEnv(t)
	product := seedProduct(t, store, models.Product{
		Name: "Soap", MarketPrice: 3, PartnerPrice: 2, Stock: 10, IsActive: true,
	})

	_, err := cart.AddItem(ctx, uuid.New(), product.ID, 0)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestUpdateQuantityZeroRemovesLine(t *testing.T) {
	ctx := context.Background()
	store, cart := newCartEnv(t)
	userID := uuid.New()
	product := seedProduct(t, store, models.Product{
		Name: "Gloves", MarketPrice: 5, PartnerPrice: 4, Stock: 10, IsActive: true,
	})

	item, err := cart.AddItem(ctx, userID, product.ID, 2)
	require.NoError(t, err)

	require.NoError(t, cart.UpdateQuantity(ctx, userID, item.ID, 0))

	got, err := cart.GetCart(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestValidateFlagsCatalogIssues(t *testing.T) {
	ctx := context.Background()
	store, cart := newCartEnv(t)
	userID := uuid.New()

	inactive := seedProduct(t, store, models.Product{
		Name: "Retired", MarketPrice: 5, PartnerPrice: 4, Stock: 10, IsActive: false,
	})
	outOfStock := seedProduct(t, store, models.Product{
		Name: "Empty", MarketPrice: 5, PartnerPrice: 4, Stock: 0, IsActive: true,
	})

	// Lines are created directly so the cart can reference products the
	// catalog no longer serves.
	require.NoError(t, store.Carts().Create(ctx, &models.CartItem{
		UserID: userID, ProductID: uuid.New(), Quantity: 1,
	}))
	require.NoError(t, store.Carts().Create(ctx, &models.CartItem{
		UserID: userID, ProductID: inactive.ID, Quantity: 1,
	}))
	require.NoError(t, store.Carts().Create(ctx, &models.CartItem{
		UserID: userID, ProductID: outOfStock.ID, Quantity: 1,
	}))

	result, err := cart.Validate(ctx, userID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 3)

	reasons := make([]string, 0, 3)
	for _, issue := range result.Errors {
		reasons = append(reasons, issue.Reason)
	}
	assert.ElementsMatch(t, []string{IssueProductNotFound, IssueProductInactive, IssueOutOfStock}, reasons)
}

func TestValidateCapsOverStockQuantity(t *testing.T) {
	ctx := context.Background()
	store, cart := newCartEnv(t)
	userID := uuid.New()
	product := seedProduct(t, store, models.Product{
		Name: "Limited", MarketPrice: 5, PartnerPrice: 4, Stock: 8, IsActive: true,
	})

	item, err := cart.AddItem(ctx, userID, product.ID, 12)
	require.NoError(t, err)

	result, err := cart.Validate(ctx, userID)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	require.Len(t, result.CorrectedItems, 1)
	assert.Equal(t, 8, result.CorrectedItems[0].Quantity)

	got, err := store.Carts().GetItem(ctx, userID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Quantity)
}

func TestCalculateTotalsAppliesBulkTierAtThreshold(t *testing.T) {
	ctx := context.Background()
	store, cart := newCartEnv(t)
	bulk := 7.0
	product := seedProduct(t, store, models.Product{
		Name: "Detergent", MarketPrice: 10, PartnerPrice: 8, BulkPrice: &bulk,
		Stock: 100, IsActive: true,
	})

	tests := []struct {
		name     string
		qty      int
		subtotal float64
		discount float64
		total    float64
	}{
		{"below threshold uses partner price", 9, 90, 18, 72},
		{"at threshold uses bulk price", 10, 100, 30, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID := uuid.New()
			_, err := cart.AddItem(ctx, userID, product.ID, tt.qty)
			require.NoError(t, err)

			totals, err := cart.CalculateTotals(ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, tt.subtotal, totals.Subtotal)
			assert.Equal(t, tt.discount, totals.Discount)
			assert.Equal(t, tt.total, totals.Total)
			assert.Equal(t, tt.qty, totals.ItemCount)
		})
	}
}

func TestGetCartDegradesMissingProducts(t *testing.T) {
	ctx := context.Background()
	store, cart := newCartEnv(t)
	userID := uuid.New()

	require.NoError(t, store.Carts().Create(ctx, &models.CartItem{
		UserID: userID, ProductID: uuid.New(), Quantity: 2,
	}))

	got, err := cart.GetCart(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.False(t, got.Items[0].Available)
	assert.Nil(t, got.Items[0].Product)
	assert.Zero(t, got.TotalPrice)
}
