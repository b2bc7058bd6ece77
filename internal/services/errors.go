package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidStateTransition is returned for order or tracking
	// transitions outside the transition table. The order is left
	// untouched.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrValidationFailed wraps cart validation failures.
	ErrValidationFailed = errors.New("validation failed")
	// ErrPaymentGateway marks external settlement failures. The order
	// persists with a failed payment status and the operation is
	// retryable.
	ErrPaymentGateway = errors.New("payment gateway error")
)

// CartIssue describes one offending cart line found during validation.
type CartIssue struct {
	ItemID      uuid.UUID `json:"item_id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	Reason      string    `json:"reason"`
}

// Issue reasons surfaced to the caller.
const (
	IssueProductNotFound = "product_not_found"
	IssueProductInactive = "product_inactive"
	IssueOutOfStock      = "out_of_stock"
)

// ValidationError carries the per-line issues of a failed cart validation.
type ValidationError struct {
	Issues []CartIssue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d cart issue(s)", len(e.Issues))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
