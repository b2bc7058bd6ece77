package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/procura/internal/models"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBalance is returned by Debit when the wallet balance
	// does not cover the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientStock is returned by ReserveStock when the product
	// stock does not cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStaleStatus is returned by TransitionStatus when the order is no
	// longer in the expected source status.
	ErrStaleStatus = errors.New("order status changed concurrently")
)

// TxManager runs a function within a storage transaction. Either every
// mutation inside fn commits or none does.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Category   string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// ProductRepository stores the catalog read model. ReserveStock and
// ReleaseStock are single-round-trip conditional updates so concurrent
// checkouts cannot oversell.
type ProductRepository interface {
	Create(ctx context.Context, p *models.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, f ProductFilter) ([]models.Product, int64, error)
	Update(ctx context.Context, p *models.Product) error
	ReserveStock(ctx context.Context, id uuid.UUID, qty int) error
	ReleaseStock(ctx context.Context, id uuid.UUID, qty int) error
}

// CartRepository stores per-user cart lines.
type CartRepository interface {
	ItemsByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	GetItem(ctx context.Context, userID, itemID uuid.UUID) (*models.CartItem, error)
	FindByProduct(ctx context.Context, userID, productID uuid.UUID) (*models.CartItem, error)
	Create(ctx context.Context, item *models.CartItem) error
	UpdateQuantity(ctx context.Context, itemID uuid.UUID, qty int) error
	Delete(ctx context.Context, userID, itemID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status models.OrderStatus
	Limit  int
	Offset int
}

// PaymentUpdate mutates an order's payment block. Ref is only written when
// non-empty; PaidAt only when non-nil.
type PaymentUpdate struct {
	Status models.PaymentStatus
	Ref    string
	PaidAt *time.Time
}

// OrderRepository stores orders and their tracking log. TransitionStatus is
// a conditional update serializing transitions per order: it fails with
// ErrStaleStatus when the order is not in the expected source status.
type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, f OrderFilter) ([]models.Order, int64, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) error
	UpdatePayment(ctx context.Context, id uuid.UUID, upd PaymentUpdate) error
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateSupplierSync(ctx context.Context, id uuid.UUID, ref string, syncErr string) error
	AppendTrackingEvent(ctx context.Context, ev *models.TrackingEvent) error
	TrackingEvents(ctx context.Context, orderID uuid.UUID) ([]models.TrackingEvent, error)
	LastTrackingEvent(ctx context.Context, orderID uuid.UUID) (*models.TrackingEvent, error)
}

// WalletRepository stores wallets and their append-only transaction log.
// Credit and Debit append exactly one transaction atomically with the
// balance mutation. Debit is a conditional decrement with a balance floor
// guard; it fails with ErrInsufficientBalance without touching anything.
type WalletRepository interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error)
	Credit(ctx context.Context, userID uuid.UUID, txn *models.WalletTransaction) error
	Debit(ctx context.Context, userID uuid.UUID, txn *models.WalletTransaction) error
	Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, int64, error)
	SumTransactions(ctx context.Context, userID uuid.UUID) (float64, error)
}

// KitRepository stores subscription kits.
type KitRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionKit, error)
	List(ctx context.Context, activeOnly bool) ([]models.SubscriptionKit, error)
}
