package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// orderStatusRank orders the forward chain. Cancelled sits outside the
// chain and is reachable from any non-terminal state.
var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusConfirmed:  1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether the transition s -> next is in the table:
// strictly forward along pending -> confirmed -> processing -> shipped ->
// delivered, or to cancelled from any non-terminal state.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	from, ok := orderStatusRank[s]
	if !ok {
		return false
	}
	to, ok := orderStatusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// PaymentMethod selects how an order is settled.
type PaymentMethod string

const (
	PaymentMethodLedger       PaymentMethod = "ledger"
	PaymentMethodPayflow      PaymentMethod = "payflow"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// PaymentStatus tracks settlement of an order's funds.
type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusRefundPending PaymentStatus = "refund_pending"
	PaymentStatusRefundFailed  PaymentStatus = "refund_failed"
)

// Order is a priced snapshot of a checkout. Pricing fields are captured at
// creation and never recomputed from the live catalog; re-pricing requires
// cancel plus re-order.
type Order struct {
	BaseModel
	UserID      uuid.UUID   `gorm:"type:uuid;index" json:"user_id"`
	User        *User       `json:"user,omitempty"`
	OrderNumber string      `gorm:"uniqueIndex" json:"order_number"`
	Status      OrderStatus `gorm:"type:varchar(20);index" json:"status"`
	PlacedAt    time.Time   `json:"placed_at"`

	Subtotal    float64 `json:"subtotal"`
	Discount    float64 `json:"discount"`
	ShippingFee float64 `json:"shipping_fee"`
	TotalAmount float64 `json:"total_amount"`
	Currency    string  `json:"currency"`

	PaymentMethod PaymentMethod `gorm:"type:varchar(20)" json:"payment_method"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20)" json:"payment_status"`
	PaymentRef    string        `json:"payment_ref"`
	PaidAt        *time.Time    `json:"paid_at"`

	DeliveryAddressID   *uuid.UUID `gorm:"type:uuid" json:"delivery_address_id"`
	DeliveryAddressLine string     `json:"delivery_address_line"`
	DeliveryCity        string     `json:"delivery_city"`
	DeliveryDistrict    string     `json:"delivery_district"`
	Carrier             string     `json:"carrier"`
	TrackingNumber      string     `json:"tracking_number"`
	EstimatedDeliveryAt *time.Time `json:"estimated_delivery_at"`
	DeliveredAt         *time.Time `json:"delivered_at"`

	KitID *uuid.UUID `gorm:"type:uuid" json:"kit_id"`
	Notes string     `json:"notes"`

	SupplierOrderRef  string     `json:"supplier_order_ref"`
	SupplierSyncedAt  *time.Time `json:"supplier_synced_at"`
	SupplierSyncError string     `json:"supplier_sync_error"`

	Items          []OrderItem     `json:"items,omitempty"`
	TrackingEvents []TrackingEvent `json:"tracking_events,omitempty"`
}

// OrderItem is a frozen order line. UnitPrice and LineTotal are captured at
// order time and immutable afterwards.
type OrderItem struct {
	BaseModel
	OrderID     uuid.UUID  `gorm:"type:uuid;index" json:"order_id"`
	ProductID   *uuid.UUID `gorm:"type:uuid" json:"product_id"`
	ProductName string     `json:"product_name"`
	SKU         string     `json:"sku"`
	Quantity    int        `json:"quantity"`
	UnitPrice   float64    `json:"unit_price"`
	LineTotal   float64    `json:"line_total"`
}
