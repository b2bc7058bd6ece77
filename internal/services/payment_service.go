package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/example/procura/internal/models"
)

// SettlementStatus is the adapter-level outcome of a settlement attempt.
type SettlementStatus string

const (
	SettlementSuccess SettlementStatus = "success"
	SettlementPending SettlementStatus = "pending"
	SettlementFailure SettlementStatus = "failure"
)

// SettlementResult is the uniform result of settling an order, whatever
// the method behind it.
type SettlementResult struct {
	Status      SettlementStatus `json:"status"`
	ExternalRef string           `json:"external_ref,omitempty"`
	RedirectURL string           `json:"redirect_url,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}

// RefundResult is the uniform result of reversing a settlement. Pending
// marks refunds waiting on manual reconciliation.
type RefundResult struct {
	Success     bool   `json:"success"`
	Pending     bool   `json:"pending"`
	ExternalRef string `json:"external_ref,omitempty"`
}

// processorAPI is the slice of the Payflow client the adapter depends on.
type processorAPI interface {
	Initiate(ctx context.Context, amount float64, currency, orderRef string) (*PayflowSession, error)
	Verify(ctx context.Context, reference string) (PayflowState, error)
	Refund(ctx context.Context, reference string, amount float64) error
}

// PaymentService is the uniform settlement interface over the
// heterogeneous payment methods: wallet ledger debits, the Payflow
// redirect processor, and manual bank transfers. A failure of any method
// applies no partial side effect.
type PaymentService struct {
	wallets   *WalletService
	processor processorAPI
}

// NewPaymentService constructs PaymentService. processor may be nil when
// the redirect gateway is disabled.
func NewPaymentService(wallets *WalletService, processor processorAPI) *PaymentService {
	return &PaymentService{wallets: wallets, processor: processor}
}

// Settle attempts to settle the order's total using its payment method.
//
// Ledger settlements are synchronous: the wallet is checked and debited in
// one atomic storage operation, and repository.ErrInsufficientBalance
// propagates as an error so the caller can abort the surrounding
// transaction. Payflow settlements open an external session and come back
// pending with a redirect URL; bank transfers always come back pending
// with a generated reference for manual reconciliation.
func (s *PaymentService) Settle(ctx context.Context, order *models.Order) (*SettlementResult, error) {
	switch order.PaymentMethod {
	case models.PaymentMethodLedger:
		txn, err := s.wallets.Debit(ctx, order.UserID, order.TotalAmount,
			models.WalletTxPurchase,
			fmt.Sprintf("payment for order %s", order.OrderNumber),
			&order.ID)
		if err != nil {
			return nil, err
		}
		return &SettlementResult{
			Status:      SettlementSuccess,
			ExternalRef: txn.ID.String(),
		}, nil

	case models.PaymentMethodPayflow:
		if s.processor == nil {
			return &SettlementResult{Status: SettlementFailure, Reason: "payment processor unavailable"}, nil
		}
		session, err := s.processor.Initiate(ctx, order.TotalAmount, order.Currency, order.ID.String())
		if err != nil {
			log.Printf("[Payment] payflow initiate failed for order %s: %v", order.OrderNumber, err)
			return &SettlementResult{Status: SettlementFailure, Reason: err.Error()}, nil
		}
		return &SettlementResult{
			Status:      SettlementPending,
			ExternalRef: session.Reference,
			RedirectURL: session.RedirectURL,
		}, nil

	case models.PaymentMethodBankTransfer:
		return &SettlementResult{
			Status:      SettlementPending,
			ExternalRef: bankTransferRef(order),
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidationFailed, order.PaymentMethod)
	}
}

// Verify resolves the settlement state of an order with an in-flight
// payment. It is safe to call repeatedly: a processor error or timeout is
// reported as pending, never as success.
func (s *PaymentService) Verify(ctx context.Context, order *models.Order) SettlementStatus {
	switch order.PaymentMethod {
	case models.PaymentMethodPayflow:
		if s.processor == nil || order.PaymentRef == "" {
			return SettlementPending
		}
		state, err := s.processor.Verify(ctx, order.PaymentRef)
		if err != nil {
			log.Printf("[Payment] payflow verify failed for order %s: %v", order.OrderNumber, err)
			return SettlementPending
		}
		switch state {
		case PayflowStatePaid:
			return SettlementSuccess
		case PayflowStateFailed:
			return SettlementFailure
		default:
			return SettlementPending
		}

	default:
		// Ledger settles synchronously and bank transfers resolve through
		// the operator path; the recorded payment status is authoritative.
		if order.PaymentStatus == models.PaymentStatusPaid {
			return SettlementSuccess
		}
		if order.PaymentStatus == models.PaymentStatusFailed {
			return SettlementFailure
		}
		return SettlementPending
	}
}

// Refund reverses a prior settlement of the order. Ledger refunds credit
// the wallet; Payflow refunds call the processor; bank-transfer refunds
// are recorded as pending manual action.
func (s *PaymentService) Refund(ctx context.Context, order *models.Order, amount float64, reason string) (*RefundResult, error) {
	switch order.PaymentMethod {
	case models.PaymentMethodLedger:
		txn, err := s.wallets.Credit(ctx, order.UserID, amount,
			models.WalletTxRefund,
			fmt.Sprintf("refund for order %s: %s", order.OrderNumber, reason),
			&order.ID)
		if err != nil {
			return nil, err
		}
		return &RefundResult{Success: true, ExternalRef: txn.ID.String()}, nil

	case models.PaymentMethodPayflow:
		if s.processor == nil {
			return nil, fmt.Errorf("%w: payment processor unavailable", ErrPaymentGateway)
		}
		if err := s.processor.Refund(ctx, order.PaymentRef, amount); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
		}
		return &RefundResult{Success: true, ExternalRef: order.PaymentRef}, nil

	case models.PaymentMethodBankTransfer:
		return &RefundResult{Pending: true, ExternalRef: bankTransferRef(order)}, nil

	default:
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidationFailed, order.PaymentMethod)
	}
}

func bankTransferRef(order *models.Order) string {
	short := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("BT-%s-%s", strings.TrimPrefix(order.OrderNumber, "PO-"), short)
}
