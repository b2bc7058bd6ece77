package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/procura/internal/models"
)

// DefaultCurrency is the single currency the platform operates in.
const DefaultCurrency = "USD"

type gormWallets struct{ store *Store }

// GetOrCreate lazily creates a zero-balance wallet on first access.
// Creation is idempotent under concurrent first accesses.
func (r *gormWallets) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error) {
	wallet := models.UserWallet{
		UserID:   userID,
		Currency: DefaultCurrency,
	}
	if err := r.store.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&wallet).Error; err != nil {
		return nil, err
	}

	var out models.UserWallet
	if err := r.store.conn(ctx).First(&out, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// Credit increments the balance and appends the ledger entry in one
// transaction. txn.Amount must be positive.
func (r *gormWallets) Credit(ctx context.Context, userID uuid.UUID, txn *models.WalletTransaction) error {
	if txn.Amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %v", txn.Amount)
	}
	return r.store.WithTransaction(ctx, func(ctx context.Context) error {
		wallet, err := r.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}

		res := r.store.conn(ctx).Model(&models.UserWallet{}).
			Where("id = ?", wallet.ID).
			UpdateColumn("balance", gorm.Expr("balance + ?", txn.Amount))
		if res.Error != nil {
			return res.Error
		}

		return r.appendTransaction(ctx, wallet, txn)
	})
}

// Debit decrements the balance with a floor guard in a single conditional
// round trip, then appends the ledger entry. txn.Amount must be negative.
// Under concurrent debits only those covered by the balance succeed.
func (r *gormWallets) Debit(ctx context.Context, userID uuid.UUID, txn *models.WalletTransaction) error {
	if txn.Amount >= 0 {
		return fmt.Errorf("debit amount must be negative, got %v", txn.Amount)
	}
	need := -txn.Amount
	return r.store.WithTransaction(ctx, func(ctx context.Context) error {
		wallet, err := r.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}

		res := r.store.conn(ctx).Model(&models.UserWallet{}).
			Where("id = ? AND balance >= ?", wallet.ID, need).
			UpdateColumn("balance", gorm.Expr("balance - ?", need))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientBalance
		}

		return r.appendTransaction(ctx, wallet, txn)
	})
}

func (r *gormWallets) appendTransaction(ctx context.Context, wallet *models.UserWallet, txn *models.WalletTransaction) error {
	txn.UserID = wallet.UserID
	txn.WalletID = wallet.ID
	if txn.OccurredAt.IsZero() {
		txn.OccurredAt = time.Now()
	}
	return r.store.conn(ctx).Create(txn).Error
}

func (r *gormWallets) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, int64, error) {
	query := r.store.conn(ctx).Model(&models.WalletTransaction{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []models.WalletTransaction
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Order("occurred_at desc").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// SumTransactions replays the ledger; the result is the reconciliation
// source of truth for the cached balance.
func (r *gormWallets) SumTransactions(ctx context.Context, userID uuid.UUID) (float64, error) {
	var sum *float64
	if err := r.store.conn(ctx).Model(&models.WalletTransaction{}).
		Where("user_id = ?", userID).
		Select("SUM(amount)").
		Scan(&sum).Error; err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// --- kits ---

type gormKits struct{ store *Store }

func (r *gormKits) GetByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionKit, error) {
	var kit models.SubscriptionKit
	if err := r.store.conn(ctx).
		Preload("Products").
		First(&kit, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &kit, nil
}

func (r *gormKits) List(ctx context.Context, activeOnly bool) ([]models.SubscriptionKit, error) {
	query := r.store.conn(ctx).Preload("Products")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var kits []models.SubscriptionKit
	if err := query.Order("name asc").Find(&kits).Error; err != nil {
		return nil, err
	}
	return kits, nil
}
