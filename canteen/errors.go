/*
errors.go - Centralized error types for the checkout core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Business-rule failures are enumerated, never generic: the UI must be
  able to tell an operator exactly why a checkout was rejected and what
  the actual available amount was.

ERROR CATEGORIES:
  1. Validation errors  - malformed input; recoverable locally, no effect
  2. Business failures  - account/product/stock/balance rejections
  3. Transient errors   - lock wait timeouts; safe to retry with backoff
  4. Fatal conditions   - ledger divergence; requires operator attention

USAGE:
  Callers match with errors.Is, and use errors.As to extract the
  structured variants when they need the offending resource or amounts:

    var ib *canteen.InsufficientBalanceError
    if errors.As(err, &ib) {
        // ib.Required, ib.Available
    }
*/
package canteen

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input: empty tokens,
	// non-positive quantities or amounts. Always recoverable locally.
	ErrValidation = errors.New("validation failed")

	// ErrIdentityNotFound is returned when a scanned or typed token does not
	// resolve to a Student account. Surfaced to prompt a re-scan.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrAccountNotFound is returned when a commit references an account
	// that does not exist or is not a Student.
	ErrAccountNotFound = errors.New("account not found")

	// ErrProductNotFound is returned by read paths for a missing product.
	ErrProductNotFound = errors.New("product not found")

	// ErrProductUnavailable is returned when a commit references a product
	// that is missing or flagged unavailable, regardless of stock.
	ErrProductUnavailable = errors.New("product unavailable")

	// ErrInsufficientStock is returned when a requested quantity exceeds
	// the durable stock at commit time.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInsufficientBalance is returned when the cart total exceeds the
	// durable balance at commit time.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTimeout is returned when a commit cannot acquire its row locks
	// within the bounded wait. Transient; safe to retry.
	ErrTimeout = errors.New("lock wait timeout")

	// ErrLedgerWriteFailed marks a failure to append the Order inside the
	// commit unit. The whole unit rolls back, but the condition is surfaced
	// distinctly because it must never be silently swallowed.
	ErrLedgerWriteFailed = errors.New("ledger write failed")

	// ErrAdvisorUnavailable is returned when the advisory text service is
	// unconfigured or unreachable. Never blocks checkout.
	ErrAdvisorUnavailable = errors.New("advisor unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the offending resource and actual amounts
// =============================================================================

// InsufficientBalanceError reports how short the wallet is.
type InsufficientBalanceError struct {
	AccountID string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InsufficientStockError reports the product that ran out and what is left.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ProductUnavailableError identifies the product that cannot be sold.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available for sale", e.ProductID)
}

func (e *ProductUnavailableError) Unwrap() error { return ErrProductUnavailable }

// ValidationError carries a field-level message for malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsClientError returns true if the error is due to the request itself
// (bad input or a business-rule rejection), not the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrProductUnavailable) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrIdentityNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrProductNotFound)
}
