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

func TestWalletDebitInsufficientLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	wallets := NewWalletService(store.Wallets())
	userID := uuid.New()

	_, err := wallets.Credit(ctx, userID, 50, models.WalletTxEarning, "booking payout", nil)
	require.NoError(t, err)

	_, err = wallets.Debit(ctx, userID, 80, models.WalletTxPurchase, "order payment", nil)
	require.ErrorIs(t, err, repository.ErrInsufficientBalance)

	balance, err := wallets.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, balance)

	txns, total, err := wallets.Transactions(ctx, userID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, txns, 1)
	assert.Equal(t, 50.0, txns[0].Amount)
}

func TestWalletBalanceEqualsLedgerSum(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	wallets := NewWalletService(store.Wallets())
	userID := uuid.New()

	_, err := wallets.Credit(ctx, userID, 120, models.WalletTxEarning, "payout", nil)
	require.NoError(t, err)
	_, err = wallets.Debit(ctx, userID, 45, models.WalletTxPurchase, "purchase", nil)
	require.NoError(t, err)
	_, err = wallets.Credit(ctx, userID, 45, models.WalletTxRefund, "refund", nil)
	require.NoError(t, err)

	report, err := wallets.Reconcile(ctx, userID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 120.0, report.CachedBalance)
	assert.Equal(t, report.CachedBalance, report.LedgerSum)
}

func TestWalletDebitRecordsNegativeAmount(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	wallets := NewWalletService(store.Wallets())
	userID := uuid.New()
	orderID := uuid.New()

	_, err := wallets.Credit(ctx, userID, 200, models.WalletTxEarning, "payout", nil)
	require.NoError(t, err)

	txn, err := wallets.Debit(ctx, userID, 75, models.WalletTxPurchase, "order payment", &orderID)
	require.NoError(t, err)
	assert.Equal(t, -75.0, txn.Amount)
	require.NotNil(t, txn.OrderID)
	assert.Equal(t, orderID, *txn.OrderID)

	balance, err := wallets.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 125.0, balance)
}

func TestWalletRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	wallets := NewWalletService(store.Wallets())
	userID := uuid.New()

	_, err := wallets.Credit(ctx, userID, 0, models.WalletTxEarning, "", nil)
	assert.Error(t, err)
	_, err = wallets.Debit(ctx, userID, -10, models.WalletTxPurchase, "", nil)
	assert.Error(t, err)
}
