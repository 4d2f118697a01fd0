/*
ledger.go - Immutable order records (the audit trail)

PURPOSE:
  Every balance-affecting event — a purchase or a top-up — is recorded as
  an Order. Orders are the durable history behind student statements and
  the admin dashboards.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, an Order is never modified.
  3. PRICE-AT-SALE: Line prices are captured at commit time, so later
     catalog price edits never retroactively change historical totals.
  4. SAME UNIT: The Order append happens inside the same atomic unit as
     the balance debit and stock decrements. A checkout whose Order cannot
     be recorded does not happen.

READ PATHS:
  History and reporting (per-account statements, recent activity, top
  products) are read-only projections over the order stream, exposed via
  OrderStore. They never feed back into commit validation.
*/
package canteen

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ORDERS
// =============================================================================

// OrderKind distinguishes the two balance-affecting events.
type OrderKind string

const (
	OrderPurchase OrderKind = "purchase"
	OrderTopUp    OrderKind = "topup"
)

// OrderLine captures one purchased product with its price at time of sale.
type OrderLine struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Amount returns UnitPrice * Quantity.
func (l OrderLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is one immutable ledger entry.
// A Purchase order's Total equals the sum of its line amounts.
// A TopUp order has no lines; Total is the credited amount.
type Order struct {
	ID        string
	AccountID string
	Kind      OrderKind
	Lines     []OrderLine
	Total     decimal.Decimal
	CreatedAt time.Time
}

// NewPurchaseOrder builds a purchase entry from priced lines.
// The total is derived from the lines, never passed in.
func NewPurchaseOrder(accountID string, lines []OrderLine) Order {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount())
	}
	return Order{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Kind:      OrderPurchase,
		Lines:     lines,
		Total:     total,
		CreatedAt: time.Now().UTC(),
	}
}

// NewTopUpOrder builds a credit entry.
func NewTopUpOrder(accountID string, amount decimal.Decimal) Order {
	return Order{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Kind:      OrderTopUp,
		Total:     amount,
		CreatedAt: time.Now().UTC(),
	}
}

// =============================================================================
// READ-SIDE PROJECTIONS
// =============================================================================

// ProductSales is an aggregate over purchase lines, for reporting.
type ProductSales struct {
	ProductID string
	Name      string
	UnitsSold int64
	Revenue   decimal.Decimal
}

// OrderStore is the read side of the order stream.
// Writes go exclusively through CheckoutTx.AppendOrder.
type OrderStore interface {
	// OrdersByAccount returns an account's history, newest first.
	OrdersByAccount(ctx context.Context, accountID string) ([]Order, error)

	// RecentOrders returns the latest orders across all accounts.
	RecentOrders(ctx context.Context, limit int) ([]Order, error)

	// TopProducts aggregates purchase lines into the best sellers.
	TopProducts(ctx context.Context, n int) ([]ProductSales, error)
}
