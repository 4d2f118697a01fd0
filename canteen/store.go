/*
store.go - Persistence interfaces for the checkout core

PURPOSE:
  Defines the boundary between domain logic and the durability layer.
  The read interfaces (AccountStore, ProductStore) are safe to share
  without locking; the CheckoutStore is the single mutual-exclusion point
  through which every balance/stock mutation flows.

LOCKING CONTRACT (CheckoutStore):
  WithLock acquires exclusive access to exactly the named rows before fn
  runs: the account first, then products in ascending id order. The
  deterministic order is what makes concurrent commits deadlock-free.
  Commits touching disjoint rows may proceed concurrently; commits sharing
  any row are strictly serialized. A caller that cannot acquire its locks
  within the store's bounded wait receives ErrTimeout.

ATOMICITY CONTRACT (CheckoutTx):
  All effects made through a CheckoutTx are applied together when fn
  returns nil and discarded entirely when fn returns an error. No other
  reader ever observes a partial state — there is no moment where the
  balance is debited but stock unchanged, or vice versa.

IMPLEMENTATIONS:
  - store/sqlite:  Durable, SQLite transactions as the exclusion point
  - canteen/store: In-memory, ordered per-row locks (testing/dev)
*/
package canteen

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READ INTERFACES
// =============================================================================

// AccountStore reads account records. Returns (nil, nil) for a miss.
type AccountStore interface {
	Account(ctx context.Context, id string) (*Account, error)
	AccountByToken(ctx context.Context, token string) (*Account, error)
}

// ProductStore reads catalog records. Returns (nil, nil) for a miss.
type ProductStore interface {
	Product(ctx context.Context, id string) (*Product, error)
	Products(ctx context.Context) ([]Product, error)
}

// =============================================================================
// CHECKOUT STORE - the atomic check-and-mutate boundary
// =============================================================================

// CheckoutTx is the view handed to a commit while its rows are locked.
// Reads observe durable state plus this unit's own staged effects.
type CheckoutTx interface {
	// Account reads the durable account row. (nil, nil) for a miss.
	Account(ctx context.Context, id string) (*Account, error)

	// Product reads the durable product row. (nil, nil) for a miss.
	Product(ctx context.Context, id string) (*Product, error)

	// DebitBalance subtracts amount from the account balance.
	// Fails with ErrInsufficientBalance rather than going negative.
	DebitBalance(ctx context.Context, accountID string, amount decimal.Decimal) error

	// CreditBalance adds amount to the account balance.
	CreditBalance(ctx context.Context, accountID string, amount decimal.Decimal) error

	// DecrementStock subtracts qty from the product stock.
	// Fails with ErrInsufficientStock rather than going negative.
	DecrementStock(ctx context.Context, productID string, qty int) error

	// AppendOrder records the ledger entry for this unit.
	AppendOrder(ctx context.Context, order Order) error
}

// CheckoutStore serializes conflicting commits.
type CheckoutStore interface {
	// WithLock runs fn with exclusive access to the account row and each
	// listed product row. Effects are atomic: committed on nil, rolled
	// back on error. Lock acquisition is bounded; ErrTimeout on expiry.
	WithLock(ctx context.Context, accountID string, productIDs []string, fn func(CheckoutTx) error) error
}
