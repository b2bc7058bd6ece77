package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/procura/internal/models"
	"github.com/example/procura/internal/repository"
)

// OrderServiceConfig bundles the collaborators of the order orchestrator.
// Supplier and Telegram may be nil when those integrations are disabled.
type OrderServiceConfig struct {
	Products    repository.ProductRepository
	Carts       repository.CartRepository
	Orders      repository.OrderRepository
	Kits        repository.KitRepository
	Tx          repository.TxManager
	Cart        *CartService
	Payments    *PaymentService
	Supplier    *SupplierService
	Telegram    *TelegramService
	ShippingFee float64

	// DeliveryEstimate is the promised delivery window stamped on new
	// orders. Zero disables the estimate.
	DeliveryEstimate time.Duration
}

// OrderService is the order state machine. It consumes a validated cart,
// freezes a price snapshot, drives payment settlement and owns the order
// status for its whole life.
type OrderService struct {
	products         repository.ProductRepository
	carts            repository.CartRepository
	orders           repository.OrderRepository
	kits             repository.KitRepository
	tx               repository.TxManager
	cart             *CartService
	payments         *PaymentService
	supplier         *SupplierService
	telegram         *TelegramService
	shippingFee      float64
	deliveryEstimate time.Duration
}

// NewOrderService constructs OrderService.
func NewOrderService(cfg OrderServiceConfig) *OrderService {
	return &OrderService{
		products:         cfg.Products,
		carts:            cfg.Carts,
		orders:           cfg.Orders,
		kits:             cfg.Kits,
		tx:               cfg.Tx,
		cart:             cfg.Cart,
		payments:         cfg.Payments,
		supplier:         cfg.Supplier,
		telegram:         cfg.Telegram,
		shippingFee:      cfg.ShippingFee,
		deliveryEstimate: cfg.DeliveryEstimate,
	}
}

// CreateOrderInput carries checkout parameters. Address fields are a
// snapshot; AddressID only links back to the saved address.
type CreateOrderInput struct {
	Method      models.PaymentMethod
	AddressID   *uuid.UUID
	AddressLine string
	City        string
	District    string
	Notes       string
}

// CreateOrderResult is the checkout outcome. RedirectURL is set for
// redirect-based payment methods.
type CreateOrderResult struct {
	Order       *models.Order     `json:"order"`
	Settlement  *SettlementResult `json:"settlement"`
	RedirectURL string            `json:"redirect_url,omitempty"`
}

// CreateOrder turns the user's cart into an order.
//
// The cart must validate with zero errors. Stock is reserved with
// conditional decrements, line prices and totals are snapshotted into the
// order, the order is persisted in pending and the cart cleared — all in
// one transaction. Ledger payments settle inside that transaction, so an
// insufficient balance rolls everything back: no order, untouched cart.
// External methods settle after commit; their failure leaves the order in
// pending with a failed payment status for a retry path to act on.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, in CreateOrderInput) (*CreateOrderResult, error) {
	validation, err := s.cart.Validate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !validation.IsValid {
		return nil, &ValidationError{Issues: validation.Errors}
	}

	items, err := s.carts.ItemsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrValidationFailed)
	}

	order := s.newOrder(userID, in)

	return s.place(ctx, order, func(ctx context.Context) error {
		for _, item := range items {
			product, err := s.products.GetByID(ctx, item.ProductID)
			if err != nil {
				return s.lineIssue(item.ProductID, "", IssueProductNotFound)
			}
			if err := s.reserveLine(ctx, product.ID, product.Name, item.Quantity); err != nil {
				return err
			}

			unit := product.UnitPriceFor(item.Quantity)
			qty := float64(item.Quantity)
			productID := product.ID
			order.Items = append(order.Items, models.OrderItem{
				ProductID:   &productID,
				ProductName: product.Name,
				SKU:         product.SKU,
				Quantity:    item.Quantity,
				UnitPrice:   unit,
				LineTotal:   unit * qty,
			})
			order.Subtotal += product.MarketPrice * qty
			order.Discount += (product.MarketPrice - unit) * qty
		}
		order.TotalAmount = order.Subtotal - order.Discount + order.ShippingFee

		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}
		return s.carts.Clear(ctx, userID)
	})
}

// CreateKitOrder places an order for a subscription kit at its locked unit
// prices and fixed bundle price. Kit orders share the regular lifecycle.
func (s *OrderService) CreateKitOrder(ctx context.Context, userID, kitID uuid.UUID, in CreateOrderInput) (*CreateOrderResult, error) {
	kit, err := s.kits.GetByID(ctx, kitID)
	if err != nil {
		return nil, err
	}
	if !kit.IsActive || len(kit.Products) == 0 {
		return nil, fmt.Errorf("%w: kit is not available", ErrValidationFailed)
	}

	order := s.newOrder(userID, in)
	order.KitID = &kit.ID

	return s.place(ctx, order, func(ctx context.Context) error {
		for _, kp := range kit.Products {
			product, err := s.products.GetByID(ctx, kp.ProductID)
			if err != nil {
				return s.lineIssue(kp.ProductID, "", IssueProductNotFound)
			}
			if err := s.reserveLine(ctx, product.ID, product.Name, kp.Quantity); err != nil {
				return err
			}

			productID := product.ID
			order.Items = append(order.Items, models.OrderItem{
				ProductID:   &productID,
				ProductName: product.Name,
				SKU:         product.SKU,
				Quantity:    kp.Quantity,
				UnitPrice:   kp.UnitPrice,
				LineTotal:   kp.UnitPrice * float64(kp.Quantity),
			})
			order.Subtotal += kp.UnitPrice * float64(kp.Quantity)
		}
		order.Discount = order.Subtotal - kit.BundlePrice
		if order.Discount < 0 {
			order.Discount = 0
		}
		order.TotalAmount = order.Subtotal - order.Discount + order.ShippingFee

		return s.orders.Create(ctx, order)
	})
}

func (s *OrderService) newOrder(userID uuid.UUID, in CreateOrderInput) *models.Order {
	now := time.Now()
	order := &models.Order{
		UserID:              userID,
		OrderNumber:         generateOrderNumber(),
		Status:              models.OrderStatusPending,
		PlacedAt:            now,
		Currency:            repository.DefaultCurrency,
		ShippingFee:         s.shippingFee,
		PaymentMethod:       in.Method,
		PaymentStatus:       models.PaymentStatusUnpaid,
		DeliveryAddressID:   in.AddressID,
		DeliveryAddressLine: in.AddressLine,
		DeliveryCity:        in.City,
		DeliveryDistrict:    in.District,
		Notes:               in.Notes,
	}
	if s.deliveryEstimate > 0 {
		eta := now.Add(s.deliveryEstimate)
		order.EstimatedDeliveryAt = &eta
	}
	return order
}

// place persists the order built by build inside a transaction, settling
// ledger payments within it and external methods after commit.
func (s *OrderService) place(ctx context.Context, order *models.Order, build func(ctx context.Context) error) (*CreateOrderResult, error) {
	result := &CreateOrderResult{Order: order}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := build(ctx); err != nil {
			return err
		}

		if order.PaymentMethod != models.PaymentMethodLedger {
			return nil
		}

		settlement, err := s.payments.Settle(ctx, order)
		if err != nil {
			return err
		}
		result.Settlement = settlement
		return s.settleInTx(ctx, order, settlement.ExternalRef)
	})
	if err != nil {
		return nil, err
	}

	if order.PaymentMethod != models.PaymentMethodLedger {
		settlement, err := s.payments.Settle(ctx, order)
		if err != nil {
			return nil, err
		}
		result.Settlement = settlement
		result.RedirectURL = settlement.RedirectURL

		switch settlement.Status {
		case SettlementPending:
			order.PaymentStatus = models.PaymentStatusPending
			order.PaymentRef = settlement.ExternalRef
			if err := s.orders.UpdatePayment(ctx, order.ID, repository.PaymentUpdate{
				Status: models.PaymentStatusPending,
				Ref:    settlement.ExternalRef,
			}); err != nil {
				return nil, err
			}
		case SettlementFailure:
			// The order stays pending with a failed payment; a human or a
			// retry path must act.
			order.PaymentStatus = models.PaymentStatusFailed
			if err := s.orders.UpdatePayment(ctx, order.ID, repository.PaymentUpdate{
				Status: models.PaymentStatusFailed,
			}); err != nil {
				return nil, err
			}
		case SettlementSuccess:
			if err := s.markSettled(ctx, order, settlement.ExternalRef); err != nil {
				return nil, err
			}
		}
	}

	if order.Status == models.OrderStatusConfirmed {
		s.afterConfirm(order)
	}
	return result, nil
}

// settleInTx records a synchronous settlement and confirms the order
// within the surrounding transaction.
func (s *OrderService) settleInTx(ctx context.Context, order *models.Order, ref string) error {
	now := time.Now()
	if err := s.orders.UpdatePayment(ctx, order.ID, repository.PaymentUpdate{
		Status: models.PaymentStatusPaid,
		Ref:    ref,
		PaidAt: &now,
	}); err != nil {
		return err
	}
	if err := s.orders.TransitionStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusConfirmed); err != nil {
		return err
	}
	order.PaymentStatus = models.PaymentStatusPaid
	order.PaymentRef = ref
	order.PaidAt = &now
	order.Status = models.OrderStatusConfirmed
	return s.appendCanonicalEvent(ctx, order.ID, models.TrackingOrderPlaced, "order confirmed")
}

// markSettled is the idempotent settlement path shared by payment
// verification, webhooks and the manual bank-transfer confirmation.
func (s *OrderService) markSettled(ctx context.Context, order *models.Order, ref string) error {
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return s.settleInTx(ctx, order, ref)
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return s.resolveSettleConflict(ctx, order, ref)
		}
		return err
	}

	if s.telegram != nil && order.PaymentMethod != models.PaymentMethodLedger {
		o := *order
		go func() {
			if err := s.telegram.NotifyPaymentSettled(&o); err != nil {
				log.Printf("[Order] telegram settlement notification failed for order %s: %v", o.OrderNumber, err)
			}
		}()
	}
	s.afterConfirm(order)
	return nil
}

// resolveSettleConflict handles a settlement that lost the status race.
// Losing to a concurrent settle makes this attempt a no-op. Losing to a
// cancellation means the processor captured funds for a dead order, so the
// payment is reversed rather than swallowed.
func (s *OrderService) resolveSettleConflict(ctx context.Context, order *models.Order, ref string) error {
	current, err := s.orders.GetByID(ctx, order.ID)
	if err != nil {
		return err
	}

	if current.Status == models.OrderStatusCancelled {
		switch current.PaymentStatus {
		case models.PaymentStatusRefunded, models.PaymentStatusRefundPending, models.PaymentStatusRefundFailed:
			// Cancellation already reversed it.
		default:
			if current.PaymentRef == "" {
				current.PaymentRef = ref
			}
			log.Printf("[Order] payment for cancelled order %s captured, reversing", current.OrderNumber)
			s.refundExternal(ctx, current, "payment settled after cancellation")
		}
	}

	order.Status = current.Status
	order.PaymentStatus = current.PaymentStatus
	return nil
}

// afterConfirm fans a confirmed order out to the supplier and the
// notification channel. Both are best-effort and run off the request path.
func (s *OrderService) afterConfirm(order *models.Order) {
	if s.supplier != nil {
		go s.dispatchSupplierOrder(order)
	}
	if s.telegram != nil {
		o := *order
		go func() {
			if err := s.telegram.NotifyOrderConfirmed(&o); err != nil {
				log.Printf("[Order] telegram notification failed for order %s: %v", o.OrderNumber, err)
			}
		}()
	}
}

// dispatchSupplierOrder submits the confirmed order to the supplier API and
// records the sync result on the order.
func (s *OrderService) dispatchSupplierOrder(order *models.Order) {
	ctx := context.Background()
	log.Printf("[Order] supplier dispatch started for order %s", order.OrderNumber)

	result, err := s.supplier.SubmitOrder(ctx, order)
	if err != nil {
		log.Printf("[Order] supplier dispatch failed for order %s: %v", order.OrderNumber, err)
		if updErr := s.orders.UpdateSupplierSync(ctx, order.ID, "", truncateSyncError(err)); updErr != nil {
			log.Printf("[Order] failed to record supplier sync error for order %s: %v", order.OrderNumber, updErr)
		}
		return
	}

	if err := s.orders.UpdateSupplierSync(ctx, order.ID, result.Reference, ""); err != nil {
		log.Printf("[Order] failed to record supplier ref for order %s: %v", order.OrderNumber, err)
		return
	}
	if err := s.appendCanonicalEvent(ctx, order.ID, models.TrackingSupplierNotified, "supplier notified"); err != nil {
		log.Printf("[Order] failed to append tracking event for order %s: %v", order.OrderNumber, err)
	}
	log.Printf("[Order] supplier order %s created for order %s", result.Reference, order.OrderNumber)
}

// CancelOrder cancels a non-terminal order, restores its reserved stock
// and reverses a settled payment. Ledger refunds complete synchronously
// before the status flips; external refunds are initiated after the flip
// and may resolve asynchronously.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	var order *models.Order
	var externalRefund bool

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return fmt.Errorf("%w: order is %s", ErrInvalidStateTransition, o.Status)
		}

		if o.PaymentStatus == models.PaymentStatusPaid && o.PaymentMethod == models.PaymentMethodLedger {
			if _, err := s.payments.Refund(ctx, o, o.TotalAmount, reason); err != nil {
				return err
			}
			if err := s.orders.UpdatePayment(ctx, o.ID, repository.PaymentUpdate{
				Status: models.PaymentStatusRefunded,
			}); err != nil {
				return err
			}
			o.PaymentStatus = models.PaymentStatusRefunded
		}

		if err := s.orders.TransitionStatus(ctx, o.ID, o.Status, models.OrderStatusCancelled); err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				return fmt.Errorf("%w: order changed concurrently", ErrInvalidStateTransition)
			}
			return err
		}

		for _, item := range o.Items {
			if item.ProductID == nil {
				continue
			}
			if err := s.products.ReleaseStock(ctx, *item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		externalRefund = o.PaymentStatus == models.PaymentStatusPaid && o.PaymentMethod != models.PaymentMethodLedger
		o.Status = models.OrderStatusCancelled
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if externalRefund {
		s.refundExternal(ctx, order, reason)
	}

	if s.telegram != nil && order.PaymentStatus == models.PaymentStatusRefunded {
		o := *order
		go func() {
			if err := s.telegram.NotifyRefundIssued(&o, o.TotalAmount, reason); err != nil {
				log.Printf("[Order] telegram refund notification failed for order %s: %v", o.OrderNumber, err)
			}
		}()
	}
	return order, nil
}

// refundRecordAttempts bounds the writes of a refund outcome. The refund
// may already have left the building at the gateway, so the status write
// is retried before falling back to manual reconciliation.
const refundRecordAttempts = 3

// refundExternal initiates an external-processor refund after the order is
// already cancelled. A failing refund leaves the order cancelled with a
// refund_failed payment status for manual reconciliation.
func (s *OrderService) refundExternal(ctx context.Context, order *models.Order, reason string) {
	result, err := s.payments.Refund(ctx, order, order.TotalAmount, reason)

	status := models.PaymentStatusRefunded
	switch {
	case err != nil:
		log.Printf("[Order] refund failed for order %s: %v", order.OrderNumber, err)
		status = models.PaymentStatusRefundFailed
	case result.Pending:
		status = models.PaymentStatusRefundPending
	case !result.Success:
		status = models.PaymentStatusRefundFailed
	}

	for attempt := 1; ; attempt++ {
		updErr := s.orders.UpdatePayment(ctx, order.ID, repository.PaymentUpdate{Status: status})
		if updErr == nil {
			break
		}
		if attempt == refundRecordAttempts {
			log.Printf("[Order] giving up recording refund status %s for order %s after %d attempts: %v; manual reconciliation required",
				status, order.OrderNumber, attempt, updErr)
			return
		}
		log.Printf("[Order] failed to record refund status for order %s (attempt %d): %v", order.OrderNumber, attempt, updErr)
		time.Sleep(100 * time.Millisecond)
	}
	order.PaymentStatus = status
}

// canonicalTrackingStatus maps an order status to the tracking milestone
// appended alongside the transition.
var canonicalTrackingStatus = map[models.OrderStatus]models.TrackingStatus{
	models.OrderStatusConfirmed:  models.TrackingOrderPlaced,
	models.OrderStatusProcessing: models.TrackingWarehouseReceived,
	models.OrderStatusShipped:    models.TrackingShipped,
	models.OrderStatusDelivered:  models.TrackingDelivered,
}

// UpdateStatus moves an order forward along the status chain. Any
// transition outside the table is rejected with ErrInvalidStateTransition
// and the accepted ones append the canonical tracking event.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, next models.OrderStatus) (*models.Order, error) {
	if next == models.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: use cancellation, not a status update", ErrInvalidStateTransition)
	}

	var order *models.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, o.Status, next)
		}

		if err := s.orders.TransitionStatus(ctx, o.ID, o.Status, next); err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				return fmt.Errorf("%w: order changed concurrently", ErrInvalidStateTransition)
			}
			return err
		}
		o.Status = next

		if tracking, ok := canonicalTrackingStatus[next]; ok {
			if err := s.appendCanonicalEvent(ctx, o.ID, tracking, fmt.Sprintf("order %s", next)); err != nil {
				return err
			}
		}
		if next == models.OrderStatusDelivered {
			now := time.Now()
			if err := s.orders.MarkDelivered(ctx, o.ID, now); err != nil {
				return err
			}
			o.DeliveredAt = &now
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// appendCanonicalEvent appends a tracking milestone from an order status
// transition. Milestones already passed by the tracking log are skipped so
// the log stays monotonic.
func (s *OrderService) appendCanonicalEvent(ctx context.Context, orderID uuid.UUID, status models.TrackingStatus, note string) error {
	last, err := s.orders.LastTrackingEvent(ctx, orderID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if last != nil && status.Rank() <= last.Status.Rank() {
		return nil
	}
	return s.orders.AppendTrackingEvent(ctx, &models.TrackingEvent{
		OrderID:    orderID,
		Status:     status,
		Note:       note,
		OccurredAt: time.Now(),
	})
}

// VerifyPayment resolves an order's in-flight payment against the
// processor. Verifying an already-settled order is a no-op, so retry and
// poll paths can call this freely.
func (s *OrderService) VerifyPayment(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return order, nil
	}

	switch s.payments.Verify(ctx, order) {
	case SettlementSuccess:
		if err := s.markSettled(ctx, order, order.PaymentRef); err != nil {
			return nil, err
		}
	case SettlementFailure:
		if err := s.orders.UpdatePayment(ctx, order.ID, repository.PaymentUpdate{
			Status: models.PaymentStatusFailed,
		}); err != nil {
			return nil, err
		}
		order.PaymentStatus = models.PaymentStatusFailed
	}
	return order, nil
}

// ConfirmManualSettlement is the operator path marking a bank-transfer
// payment as settled out-of-band. Idempotent like VerifyPayment.
func (s *OrderService) ConfirmManualSettlement(ctx context.Context, orderID uuid.UUID, externalRef string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != models.PaymentMethodBankTransfer {
		return nil, fmt.Errorf("%w: order is not a bank transfer", ErrValidationFailed)
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return order, nil
	}
	if err := s.markSettled(ctx, order, externalRef); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns one of the user's orders.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	return s.orders.GetForUser(ctx, userID, orderID)
}

// ListOrders returns the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, f repository.OrderFilter) ([]models.Order, int64, error) {
	return s.orders.ListByUser(ctx, userID, f)
}

func (s *OrderService) lineIssue(productID uuid.UUID, name, reason string) error {
	return &ValidationError{Issues: []CartIssue{{
		ProductID:   productID,
		ProductName: name,
		Reason:      reason,
	}}}
}

func (s *OrderService) reserveLine(ctx context.Context, productID uuid.UUID, name string, qty int) error {
	err := s.products.ReserveStock(ctx, productID, qty)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrInsufficientStock) {
		return s.lineIssue(productID, name, IssueOutOfStock)
	}
	return err
}

func generateOrderNumber() string {
	return fmt.Sprintf("PO-%d", time.Now().UnixNano()%1_000_000_000)
}

func truncateSyncError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 1024
	msg := err.Error()
	if len(msg) <= maxLen {
		return msg
	}
	return msg[:maxLen]
}
