package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/procura/internal/models"
)

// Store bundles the GORM-backed repository implementations sharing one
// database handle.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store on top of an initialized gorm.DB.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Products() ProductRepository { return &gormProducts{s} }
func (s *Store) Carts() CartRepository       { return &gormCarts{s} }
func (s *Store) Orders() OrderRepository     { return &gormOrders{s} }
func (s *Store) Wallets() WalletRepository   { return &gormWallets{s} }
func (s *Store) Kits() KitRepository         { return &gormKits{s} }

type connKey struct{}

// WithTransaction runs fn inside a database transaction carried through the
// context. Nested calls join the surrounding transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(connKey{}).(*gorm.DB); ok && tx != nil {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, connKey{}, tx))
	})
}

// conn returns the transaction bound to ctx, or the base handle.
func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(connKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

// --- products ---

type gormProducts struct{ store *Store }

func (r *gormProducts) Create(ctx context.Context, p *models.Product) error {
	return r.store.conn(ctx).Create(p).Error
}

func (r *gormProducts) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	if err := r.store.conn(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *gormProducts) List(ctx context.Context, f ProductFilter) ([]models.Product, int64, error) {
	query := r.store.conn(ctx).Model(&models.Product{})
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	if f.Limit > 0 {
		query = query.Limit(f.Limit).Offset(f.Offset)
	}
	if err := query.Order("name asc").Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *gormProducts) Update(ctx context.Context, p *models.Product) error {
	res := r.store.conn(ctx).Model(&models.Product{}).Where("id = ?", p.ID).
		Select("*").Omit("id", "created_at").Updates(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReserveStock decrements stock in a single conditional round trip so two
// racing checkouts cannot both take the last units.
func (r *gormProducts) ReserveStock(ctx context.Context, id uuid.UUID, qty int) error {
	res := r.store.conn(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInsufficientStock
	}
	return nil
}

func (r *gormProducts) ReleaseStock(ctx context.Context, id uuid.UUID, qty int) error {
	res := r.store.conn(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- carts ---

type gormCarts struct{ store *Store }

func (r *gormCarts) ItemsByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := r.store.conn(ctx).
		Where("user_id = ?", userID).
		Order("added_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *gormCarts) GetItem(ctx context.Context, userID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.store.conn(ctx).
		First(&item, "id = ? AND user_id = ?", itemID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *gormCarts) FindByProduct(ctx context.Context, userID, productID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.store.conn(ctx).
		First(&item, "user_id = ? AND product_id = ?", userID, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *gormCarts) Create(ctx context.Context, item *models.CartItem) error {
	return r.store.conn(ctx).Create(item).Error
}

func (r *gormCarts) UpdateQuantity(ctx context.Context, itemID uuid.UUID, qty int) error {
	res := r.store.conn(ctx).Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{"quantity": qty, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormCarts) Delete(ctx context.Context, userID, itemID uuid.UUID) error {
	res := r.store.conn(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormCarts) Clear(ctx context.Context, userID uuid.UUID) error {
	return r.store.conn(ctx).
		Where("user_id = ?", userID).
		Delete(&models.CartItem{}).Error
}
