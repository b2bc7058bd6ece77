package models

import (
	"time"

	"github.com/google/uuid"
)

// UserWallet holds the cached balance for one user. The balance is a
// projection of the wallet's transaction log and must equal the sum of all
// transaction amounts at all times.
type UserWallet struct {
	BaseModel
	UserID   uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	Balance  float64   `json:"balance"`
	Currency string    `json:"currency"`
}

// WalletTransactionType classifies ledger entries.
type WalletTransactionType string

const (
	WalletTxEarning  WalletTransactionType = "earning"
	WalletTxPurchase WalletTransactionType = "purchase"
	WalletTxRefund   WalletTransactionType = "refund"
	WalletTxPayout   WalletTransactionType = "payout"
)

// WalletTransaction is one append-only ledger entry. Amount is signed:
// credits are positive, debits negative. Rows are never updated or deleted.
type WalletTransaction struct {
	BaseModel
	UserID      uuid.UUID             `gorm:"type:uuid;index" json:"user_id"`
	WalletID    uuid.UUID             `gorm:"type:uuid;index" json:"wallet_id"`
	Type        WalletTransactionType `gorm:"type:varchar(20)" json:"type"`
	Amount      float64               `json:"amount"`
	Description string                `json:"description"`
	OrderID     *uuid.UUID            `gorm:"type:uuid" json:"order_id"`
	OccurredAt  time.Time             `json:"occurred_at"`
}
