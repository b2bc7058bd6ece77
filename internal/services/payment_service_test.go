package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/procura/internal/models"
	"github.com/example/procura/internal/repository"
)

// fakeProcessor stands in for the Payflow client in tests.
type fakeProcessor struct {
	initiateErr error
	verifyState PayflowState
	verifyErr   error
	refundErr   error

	initiated []string
	verified  []string
	refunded  []string
}

func (f *fakeProcessor) Initiate(ctx context.Context, amount float64, currency, orderRef string) (*PayflowSession, error) {
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	ref := "PF-" + orderRef
	f.initiated = append(f.initiated, ref)
	return &PayflowSession{
		Reference:   ref,
		RedirectURL: "https://gateway.payflow.example/checkout/" + ref,
	}, nil
}

func (f *fakeProcessor) Verify(ctx context.Context, reference string) (PayflowState, error) {
	f.verified = append(f.verified, reference)
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	return f.verifyState, nil
}

func (f *fakeProcessor) Refund(ctx context.Context, reference string, amount float64) error {
	if f.refundErr != nil {
		return f.refundErr
	}
	f.refunded = append(f.refunded, reference)
	return nil
}

func newPaymentEnv(processor processorAPI) (*repository.MemoryStore, *WalletService, *PaymentService) {
	store := repository.NewMemoryStore()
	wallets := NewWalletService(store.Wallets())
	return store, wallets, NewPaymentService(wallets, processor)
}

func TestSettleLedgerDebitsWalletAtomically(t *testing.T) {
	ctx := context.Background()
	_, wallets, payments := newPaymentEnv(nil)
	userID := uuid.New()

	_, err := wallets.Credit(ctx, userID, 300, models.WalletTxEarning, "payout", nil)
	require.NoError(t, err)

	order := &models.Order{
		UserID:        userID,
		OrderNumber:   "PO-100",
		PaymentMethod: models.PaymentMethodLedger,
		TotalAmount:   120,
	}
	order.ID = uuid.New()

	result, err := payments.Settle(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, SettlementSuccess, result.Status)
	assert.NotEmpty(t, result.ExternalRef)

	balance, err := wallets.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 180.0, balance)
}

func TestSettleLedgerInsufficientBalanceIsAnError(t *testing.T) {
	ctx := context.Background()
	_, wallets, payments := newPaymentEnv(nil)
	userID := uuid.New()

	_, err := wallets.Credit(ctx, userID, 50, models.WalletTxEarning, "payout", nil)
	require.NoError(t, err)

	order := &models.Order{
		UserID:        userID,
		OrderNumber:   "PO-101",
		PaymentMethod: models.PaymentMethodLedger,
		TotalAmount:   80,
	}
	order.ID = uuid.New()

	_, err = payments.Settle(ctx, order)
	require.ErrorIs(t, err, repository.ErrInsufficientBalance)

	balance, err := wallets.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, balance)
}

func TestSettlePayflowReturnsPendingWithRedirect(t *testing.T) {
	ctx := context.Background()
	processor := &fakeProcessor{}
	_, _, payments := newPaymentEnv(processor)

	order := &models.Order{
		UserID:        uuid.New(),
		OrderNumber:   "PO-102",
		PaymentMethod: models.PaymentMethodPayflow,
		TotalAmount:   60,
		Currency:      repository.DefaultCurrency,
	}
	order.ID = uuid.New()

	result, err := payments.Settle(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, SettlementPending, result.Status)
	assert.NotEmpty(t, result.RedirectURL)
	assert.Equal(t, "PF-"+order.ID.String(), result.ExternalRef)
}

func TestSettlePayflowGatewayFailureIsNotAnError(t *testing.T) {
	ctx := context.Background()
	processor := &fakeProcessor{initiateErr: errors.New("connection refused")}
	_, wallets, payments := newPaymentEnv(processor)
	userID := uuid.New()

	order := &models.Order{
		UserID:        userID,
		OrderNumber:   "PO-103",
		PaymentMethod: models.PaymentMethodPayflow,
		TotalAmount:   60,
	}
	order.ID = uuid.New()

	result, err := payments.Settle(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, SettlementFailure, result.Status)
	assert.NotEmpty(t, result.Reason)

	// A processor failure must not touch the wallet.
	balance, err := wallets.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestSettleBankTransferIsAlwaysPending(t *testing.T) {
	ctx := context.Background()
	_, _, payments := newPaymentEnv(nil)

	order := &models.Order{
		UserID:        uuid.New(),
		OrderNumber:   "PO-104",
		PaymentMethod: models.PaymentMethodBankTransfer,
		TotalAmount:   60,
	}
	order.ID = uuid.New()

	result, err := payments.Settle(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, SettlementPending, result.Status)
	assert.True(t, strings.HasPrefix(result.ExternalRef, "BT-"))
}

func TestVerifyPayflowTimeoutNeverReportsSuccess(t *testing.T) {
	ctx := context.Background()
	processor := &fakeProcessor{verifyErr: context.DeadlineExceeded}
	_, _, payments := newPaymentEnv(processor)

	order := &models.Order{
		UserID:        uuid.New(),
		OrderNumber:   "PO-105",
		PaymentMethod: models.PaymentMethodPayflow,
		PaymentRef:    "PF-abc",
	}
	order.ID = uuid.New()

	assert.Equal(t, SettlementPending, payments.Verify(ctx, order))
}

func TestVerifyPayflowStates(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		state PayflowState
		want  SettlementStatus
	}{
		{PayflowStatePaid, SettlementSuccess},
		{PayflowStateFailed, SettlementFailure},
		{PayflowStatePending, SettlementPending},
		{PayflowStateCreated, SettlementPending},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			processor := &fakeProcessor{verifyState: tt.state}
			_, _, payments := newPaymentEnv(processor)
			order := &models.Order{
				PaymentMethod: models.PaymentMethodPayflow,
				PaymentRef:    "PF-xyz",
			}
			assert.Equal(t, tt.want, payments.Verify(ctx, order))
		})
	}
}

func TestRefundLedgerCreditsWallet(t *testing.T) {
	ctx := context.Background()
	_, wallets, payments := newPaymentEnv(nil)
	userID := uuid.New()

	order := &models.Order{
		UserID:        userID,
		OrderNumber:   "PO-106",
		PaymentMethod: models.PaymentMethodLedger,
		TotalAmount:   90,
	}
	order.ID = uuid.New()

	result, err := payments.Refund(ctx, order, 90, "cancelled")
	require.NoError(t, err)
	assert.True(t, result.Success)

	balance, err := wallets.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 90.0, balance)
}

func TestRefundPayflowGatewayErrorIsWrapped(t *testing.T) {
	ctx := context.Background()
	processor := &fakeProcessor{refundErr: errors.New("500 internal")}
	_, _, payments := newPaymentEnv(processor)

	order := &models.Order{
		PaymentMethod: models.PaymentMethodPayflow,
		PaymentRef:    "PF-abc",
	}

	_, err := payments.Refund(ctx, order, 50, "cancelled")
	require.ErrorIs(t, err, ErrPaymentGateway)
}
