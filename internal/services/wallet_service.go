package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/procura/internal/models"
	"github.com/example/procura/internal/repository"
)

// WalletService owns per-user balances and the append-only transaction
// log behind them. It is the only component permitted to mutate balances.
type WalletService struct {
	wallets repository.WalletRepository
}

// NewWalletService constructs WalletService.
func NewWalletService(wallets repository.WalletRepository) *WalletService {
	return &WalletService{wallets: wallets}
}

// Balance returns the user's wallet balance, creating a zero-balance
// wallet on first access.
func (s *WalletService) Balance(ctx context.Context, userID uuid.UUID) (float64, error) {
	wallet, err := s.wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

// Credit adds amount to the wallet and appends the matching ledger entry.
func (s *WalletService) Credit(ctx context.Context, userID uuid.UUID, amount float64, txType models.WalletTransactionType, description string, orderID *uuid.UUID) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", ErrValidationFailed)
	}
	txn := &models.WalletTransaction{
		Type:        txType,
		Amount:      amount,
		Description: description,
		OrderID:     orderID,
	}
	if err := s.wallets.Credit(ctx, userID, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Debit takes amount from the wallet. It fails with
// repository.ErrInsufficientBalance when the balance does not cover the
// amount; the check and decrement are one atomic storage operation.
func (s *WalletService) Debit(ctx context.Context, userID uuid.UUID, amount float64, txType models.WalletTransactionType, description string, orderID *uuid.UUID) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: debit amount must be positive", ErrValidationFailed)
	}
	txn := &models.WalletTransaction{
		Type:        txType,
		Amount:      -amount,
		Description: description,
		OrderID:     orderID,
	}
	if err := s.wallets.Debit(ctx, userID, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// HasSufficientBalance reports whether the wallet currently covers amount.
// This is advisory only; Debit re-checks atomically.
func (s *WalletService) HasSufficientBalance(ctx context.Context, userID uuid.UUID, amount float64) (bool, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Transactions lists the user's ledger entries, newest first.
func (s *WalletService) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, int64, error) {
	return s.wallets.Transactions(ctx, userID, limit, offset)
}

// ReconciliationReport compares the cached balance against the replayed
// transaction log.
type ReconciliationReport struct {
	UserID        uuid.UUID `json:"user_id"`
	CachedBalance float64   `json:"cached_balance"`
	LedgerSum     float64   `json:"ledger_sum"`
	Consistent    bool      `json:"consistent"`
}

// Reconcile replays the ledger and checks it against the cached balance.
// The ledger is the source of truth.
func (s *WalletService) Reconcile(ctx context.Context, userID uuid.UUID) (*ReconciliationReport, error) {
	wallet, err := s.wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := s.wallets.SumTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ReconciliationReport{
		UserID:        userID,
		CachedBalance: wallet.Balance,
		LedgerSum:     sum,
		Consistent:    wallet.Balance == sum,
	}, nil
}
