package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/procura/internal/models"
	"github.com/example/procura/internal/repository"
)

type orderEnv struct {
	store   *repository.MemoryStore
	cart    *CartService
	wallets *WalletService
	orders  *OrderService
	userID  uuid.UUID
}

func newOrderEnv(t *testing.T, processor processorAPI, shippingFee float64) *orderEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	cart := NewCartService(store.Products(), store.Carts())
	wallets := NewWalletService(store.Wallets())
	payments := NewPaymentService(wallets, processor)
	orders := NewOrderService(OrderServiceConfig{
		Products:         store.Products(),
		Carts:            store.Carts(),
		Orders:           store.Orders(),
		Kits:             store.Kits(),
		Tx:               store,
		Cart:             cart,
		Payments:         payments,
		ShippingFee:      shippingFee,
		DeliveryEstimate: 72 * time.Hour,
	})
	return &orderEnv{
		store:   store,
		cart:    cart,
		wallets: wallets,
		orders:  orders,
		userID:  uuid.New(),
	}
}

// seedCheckout puts one product line into the user's cart: market 25,
// partner 20, stock 50, quantity 10, so the order totals 200.
func (e *orderEnv) seedCheckout(t *testing.T) *models.Product {
	t.Helper()
	ctx := context.Background()
	product := seedProduct(t, e.store, models.Product{
		Name: "Bath Towels", MarketPrice: 25, PartnerPrice: 20, Stock: 50, IsActive: true,
	})
	_, err := e.cart.AddItem(ctx, e.userID, product.ID, 10)
	require.NoError(t, err)
	return product
}

func (e *orderEnv) fund(t *testing.T, amount float64) {
	t.Helper()
	_, err := e.wallets.Credit(context.Background(), e.userID, amount, models.WalletTxEarning, "payout", nil)
	require.NoError(t, err)
}

func TestCreateOrderLedgerConfirmsAndClearsCart(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)
	product := env.seedCheckout(t)
	env.fund(t, 500)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method:      models.PaymentMethodLedger,
		AddressLine: "12 Pier St",
		City:        "Tashkent",
	})
	require.NoError(t, err)

	order := result.Order
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	require.NotNil(t, order.PaidAt)
	assert.Equal(t, 250.0, order.Subtotal)
	assert.Equal(t, 50.0, order.Discount)
	assert.Equal(t, 200.0, order.TotalAmount)

	balance, err := env.wallets.Balance(ctx, env.userID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, balance)

	txns, total, err := env.wallets.Transactions(ctx, env.userID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, -200.0, txns[0].Amount)
	assert.Equal(t, models.WalletTxPurchase, txns[0].Type)

	cart, err := env.cart.GetCart(ctx, env.userID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	got, err := env.store.Products().GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Stock)

	events, err := env.store.Orders().TrackingEvents(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TrackingOrderPlaced, events[0].Status)
}

func TestCreateOrderLedgerInsufficientRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)
	product := env.seedCheckout(t)
	env.fund(t, 50)

	_, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodLedger,
	})
	require.ErrorIs(t, err, repository.ErrInsufficientBalance)

	_, total, err := env.orders.ListOrders(ctx, env.userID, repository.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	cart, err := env.cart.GetCart(ctx, env.userID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	got, err := env.store.Products().GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Stock)

	balance, err := env.wallets.Balance(ctx, env.userID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, balance)
}

func TestCreateOrderPayflowComesBackPendingWithRedirect(t *testing.T) {
	ctx := context.Background()
	processor := &fakeProcessor{}
	env := newOrderEnv(t, processor, 0)
	env.seedCheckout(t)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodPayflow,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RedirectURL)

	order, err := env.store.Orders().GetByID(ctx, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "PF-"+order.ID.String(), order.PaymentRef)

	cart, err := env.cart.GetCart(ctx, env.userID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCreateOrderPayflowFailureKeepsOrderPending(t *testing.T) {
	ctx := context.Background()
	processor := &fakeProcessor{initiateErr: context.DeadlineExceeded}
	env := newOrderEnv(t, processor, 0)
	env.seedCheckout(t)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodPayflow,
	})
	require.NoError(t, err)
	assert.Equal(t, SettlementFailure, result.Settlement.Status)

	order, err := env.store.Orders().GetByID(ctx, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
}

func TestCreateOrderEmptyCartRejected(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)

	_, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodLedger,
	})
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestCreateOrderInvalidCartRejected(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)
	env.fund(t, 500)

	inactive := seedProduct(t, env.store, models.Product{
		Name: "Retired", MarketPrice: 10, PartnerPrice: 8, Stock: 5, IsActive: false,
	})
	require.NoError(t, env.store.Carts().Create(ctx, &models.CartItem{
		UserID: env.userID, ProductID: inactive.ID, Quantity: 1,
	}))

	_, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodLedger,
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Len(t, validation.Issues, 1)
	assert.Equal(t, IssueProductInactive, validation.Issues[0].Reason)
}

func TestCreateOrderAppliesShippingFee(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 15)
	env.seedCheckout(t)
	env.fund(t, 500)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodLedger,
	})
	require.NoError(t, err)
	assert.Equal(t, 15.0, result.Order.ShippingFee)
	assert.Equal(t, 215.0, result.Order.TotalAmount)
}

func TestCancelPendingOrderReleasesStock(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)
	product := env.seedCheckout(t)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)

	got, err := env.store.Products().GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Stock)

	cancelled, err := env.orders.CancelOrder(ctx, result.Order.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)

	got, err = env.store.Products().GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Stock)
}

func TestCancelPaidLedgerOrderRefundsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)
	env.seedCheckout(t)
	env.fund(t, 500)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodLedger,
	})
	require.NoError(t, err)

	cancelled, err := env.orders.CancelOrder(ctx, result.Order.ID, "supplier delay")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, models.PaymentStatusRefunded, cancelled.PaymentStatus)

	balance, err := env.wallets.Balance(ctx, env.userID)
	require.NoError(t, err)
	assert.Equal(t, 500.0, balance)

	txns, total, err := env.wallets.Transactions(ctx, env.userID, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	refunds := 0
	for _, txn := range txns {
		if txn.Type == models.WalletTxRefund {
			refunds++
			assert.Equal(t, 200.0, txn.Amount)
		}
	}
	assert.Equal(t, 1, refunds)
}

func TestCancelTerminalOrderRejected(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)
	env.seedCheckout(t)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)

	_, err = env.orders.UpdateStatus(ctx, result.Order.ID, models.OrderStatusDelivered)
	require.NoError(t, err)

	_, err = env.orders.CancelOrder(ctx, result.Order.ID, "too late")
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestUpdateStatusForwardOnly(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)
	env.seedCheckout(t)
	env.fund(t, 500)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodLedger,
	})
	require.NoError(t, err)

	// Forward jumps are allowed.
	order, err := env.orders.UpdateStatus(ctx, result.Order.ID, models.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, order.Status)

	_, err = env.orders.UpdateStatus(ctx, result.Order.ID, models.OrderStatusProcessing)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = env.orders.UpdateStatus(ctx, result.Order.ID, models.OrderStatusCancelled)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestUpdateStatusDeliveredStampsTimestamp(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)
	env.seedCheckout(t)
	env.fund(t, 500)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodLedger,
	})
	require.NoError(t, err)

	order, err := env.orders.UpdateStatus(ctx, result.Order.ID, models.OrderStatusDelivered)
	require.NoError(t, err)
	require.NotNil(t, order.DeliveredAt)

	events, err := env.store.Orders().TrackingEvents(ctx, order.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, models.TrackingDelivered, last.Status)
}

func TestVerifyPaymentSettlesPendingPayflowOrder(t *testing.T) {
	ctx := context.Background()
	processor := &fakeProcessor{verifyState: PayflowStatePaid}
	env := newOrderEnv(t, processor, 0)
	env.seedCheckout(t)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodPayflow,
	})
	require.NoError(t, err)

	order, err := env.orders.VerifyPayment(ctx, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)

	// Verifying a settled order is a no-op and never duplicates events.
	_, err = env.orders.VerifyPayment(ctx, result.Order.ID)
	require.NoError(t, err)

	events, err := env.store.Orders().TrackingEvents(ctx, result.Order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TrackingOrderPlaced, events[0].Status)
}

func TestVerifyPaymentFailureRecordsFailedStatus(t *testing.T) {
	ctx := context.Background()
	processor := &fakeProcessor{verifyState: PayflowStateFailed}
	env := newOrderEnv(t, processor, 0)
	env.seedCheckout(t)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodPayflow,
	})
	require.NoError(t, err)

	order, err := env.orders.VerifyPayment(ctx, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestVerifyPaymentAfterCancellationRefundsCapture(t *testing.T) {
	ctx := context.Background()
	processor := &fakeProcessor{verifyState: PayflowStatePaid}
	env := newOrderEnv(t, processor, 0)
	env.seedCheckout(t)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodPayflow,
	})
	require.NoError(t, err)

	_, err = env.orders.CancelOrder(ctx, result.Order.ID, "ordered twice")
	require.NoError(t, err)

	// The gateway captured the redirect payment after the cancellation.
	// The capture must be reversed, not dropped on the floor.
	order, err := env.orders.VerifyPayment(ctx, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, models.PaymentStatusRefunded, order.PaymentStatus)

	require.Len(t, processor.refunded, 1)
	assert.Equal(t, result.Order.PaymentRef, processor.refunded[0])

	got, err := env.store.Orders().GetByID(ctx, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	assert.Equal(t, models.PaymentStatusRefunded, got.PaymentStatus)
}

// flakyOrders drops a fixed number of payment updates before recovering.
type flakyOrders struct {
	repository.OrderRepository
	failures int
}

func (f *flakyOrders) UpdatePayment(ctx context.Context, id uuid.UUID, upd repository.PaymentUpdate) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.OrderRepository.UpdatePayment(ctx, id, upd)
}

func TestRefundOutcomeWriteIsRetried(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	flaky := &flakyOrders{OrderRepository: store.Orders()}
	cart := NewCartService(store.Products(), store.Carts())
	wallets := NewWalletService(store.Wallets())
	processor := &fakeProcessor{verifyState: PayflowStatePaid}
	payments := NewPaymentService(wallets, processor)
	orders := NewOrderService(OrderServiceConfig{
		Products: store.Products(),
		Carts:    store.Carts(),
		Orders:   flaky,
		Kits:     store.Kits(),
		Tx:       store,
		Cart:     cart,
		Payments: payments,
	})

	userID := uuid.New()
	product := seedProduct(t, store, models.Product{
		Name: "Bath Towels", MarketPrice: 25, PartnerPrice: 20, Stock: 50, IsActive: true,
	})
	_, err := cart.AddItem(ctx, userID, product.ID, 10)
	require.NoError(t, err)

	result, err := orders.CreateOrder(ctx, userID, CreateOrderInput{
		Method: models.PaymentMethodPayflow,
	})
	require.NoError(t, err)
	_, err = orders.VerifyPayment(ctx, result.Order.ID)
	require.NoError(t, err)

	// The gateway refund succeeds but the first status writes bounce; the
	// outcome must land anyway.
	flaky.failures = 2
	cancelled, err := orders.CancelOrder(ctx, result.Order.ID, "damaged in transit")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, cancelled.PaymentStatus)
	assert.Equal(t, 0, flaky.failures)

	got, err := store.Orders().GetByID(ctx, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, got.PaymentStatus)
}

func TestCreateOrderStampsDeliveryEstimate(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)
	env.seedCheckout(t)
	env.fund(t, 500)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodLedger,
	})
	require.NoError(t, err)

	order := result.Order
	require.NotNil(t, order.EstimatedDeliveryAt)
	assert.WithinDuration(t, order.PlacedAt.Add(72*time.Hour), *order.EstimatedDeliveryAt, time.Second)
}

func TestConfirmManualSettlementIsBankTransferOnly(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)
	env.seedCheckout(t)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)

	order, err := env.orders.ConfirmManualSettlement(ctx, result.Order.ID, "WIRE-778")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)

	// Idempotent on repeat.
	again, err := env.orders.ConfirmManualSettlement(ctx, result.Order.ID, "WIRE-778")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, again.PaymentStatus)

	env2 := newOrderEnv(t, nil, 0)
	env2.seedCheckout(t)
	env2.fund(t, 500)
	ledger, err := env2.orders.CreateOrder(ctx, env2.userID, CreateOrderInput{
		Method: models.PaymentMethodLedger,
	})
	require.NoError(t, err)
	_, err = env2.orders.ConfirmManualSettlement(ctx, ledger.Order.ID, "WIRE-779")
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestOrderPricesImmutableAfterCreation(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)
	product := env.seedCheckout(t)
	env.fund(t, 500)

	result, err := env.orders.CreateOrder(ctx, env.userID, CreateOrderInput{
		Method: models.PaymentMethodLedger,
	})
	require.NoError(t, err)

	product.PartnerPrice = 99
	product.MarketPrice = 120
	require.NoError(t, env.store.Products().Update(ctx, product))

	order, err := env.orders.GetOrder(ctx, env.userID, result.Order.ID)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 20.0, order.Items[0].UnitPrice)
	assert.Equal(t, 200.0, order.TotalAmount)
}

func TestCreateKitOrderUsesLockedPrices(t *testing.T) {
	ctx := context.Background()
	env := newOrderEnv(t, nil, 0)
	env.fund(t, 500)

	towels := seedProduct(t, env.store, models.Product{
		Name: "Towels", MarketPrice: 25, PartnerPrice: 20, Stock: 30, IsActive: true,
	})
	soap := seedProduct(t, env.store, models.Product{
		Name: "Soap", MarketPrice: 5, PartnerPrice: 4, Stock: 30, IsActive: true,
	})

	kit := env.store.AddKit(models.SubscriptionKit{
		Name:        "Housekeeping Starter",
		BundlePrice: 100,
		IsActive:    true,
		Products: []models.KitProduct{
			{ProductID: towels.ID, Quantity: 5, UnitPrice: 18},
			{ProductID: soap.ID, Quantity: 10, UnitPrice: 3},
		},
	})

	result, err := env.orders.CreateKitOrder(ctx, env.userID, kit.ID, CreateOrderInput{
		Method: models.PaymentMethodLedger,
	})
	require.NoError(t, err)

	order := result.Order
	// Locked prices: 5*18 + 10*3 = 120, bundle 100 => discount 20.
	assert.Equal(t, 120.0, order.Subtotal)
	assert.Equal(t, 20.0, order.Discount)
	assert.Equal(t, 100.0, order.TotalAmount)
	require.NotNil(t, order.KitID)
	assert.Equal(t, kit.ID, *order.KitID)

	got, err := env.store.Products().GetByID(ctx, towels.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, got.Stock)

	balance, err := env.wallets.Balance(ctx, env.userID)
	require.NoError(t, err)
	assert.Equal(t, 400.0, balance)
}
