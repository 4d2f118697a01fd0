/*
Package canteen provides the core domain model for the canteen checkout system.

PURPOSE:
  This package contains the shared types and rules for the point-of-sale
  core: accounts (closed-loop student wallets), sellable products, session
  carts, and the immutable order ledger. The authoritative mutation of
  balances and stock lives in the checkout package; everything here is
  either read-only or session-local.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: A wallet-holding identity (Student) or staff/admin identity
  - Product: A sellable catalog item with durable stock and availability
  - CartLine: One (product, quantity) pair inside a terminal session cart

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for money to avoid floating-point errors
  2. Single writer: Balance and stock are mutated only through the
     checkout engine's commit path (or the credit-only top-up path)
  3. Advisory snapshots: UI-side stock/balance figures are never trusted;
     the engine re-validates against durable state at commit time

SEE ALSO:
  - errors.go:   Error taxonomy shared by all components
  - ledger.go:   Immutable Order records and the order read paths
  - cart.go:     Session cart state machine
  - identity.go: Token-to-account resolution
*/
package canteen

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLES & ACCOUNTS
// =============================================================================

// Role classifies an account. Only Students carry a wallet balance.
type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// Account is a verified identity record.
//
// INVARIANT: Balance is never negative. It is mutated only by the checkout
// engine (debit) or the top-up operation (credit), always re-validated
// against the durable value at mutation time.
type Account struct {
	ID      string
	Name    string
	Token   string // External scannable ID (e.g., student card). Empty for staff/admin.
	Role    Role
	Balance decimal.Decimal // Meaningful only when Role == RoleStudent.
}

// IsStudent reports whether this account can hold and spend a balance.
func (a Account) IsStudent() bool { return a.Role == RoleStudent }

// =============================================================================
// PRODUCTS
// =============================================================================

// Product is a sellable catalog item.
//
// INVARIANT: Stock is never negative. Stock is decremented only by the
// checkout engine; catalog maintenance (create/update/restock) belongs to
// an external admin workflow.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal // Unit price, always positive.
	Category    string
	Description string
	Available   bool
	Stock       int
}

// Sellable reports whether the product can be added to a cart at all.
func (p Product) Sellable() bool { return p.Available && p.Stock > 0 }

// =============================================================================
// CART LINES
// =============================================================================

// CartLine is one (product, quantity) pair in a session cart.
// UnitPrice is the snapshot price used for UI totals only; the engine
// re-prices every line from durable state at commit.
type CartLine struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Amount returns UnitPrice * Quantity.
func (l CartLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// MustParseDecimal parses a decimal string, returning zero on failure.
// Intended for trusted values read back from storage.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
