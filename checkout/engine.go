/*
Package checkout implements the atomic debit-and-decrement protocol.

PURPOSE:
  The Engine is the only component permitted to mutate durable balance and
  stock state. Given a verified account and a set of cart lines, it
  performs the multi-row check-and-mutate as one all-or-nothing unit:
  either every stock counter is decremented, the balance is debited, and
  exactly one Order is appended to the ledger — or nothing changes.

ISOLATION:
  Serializability per affected row set. The engine hands the durability
  layer (canteen.CheckoutStore) the exact rows a commit touches; the store
  locks them in canonical order (account first, then products ascending by
  id) so two commits over disjoint rows run concurrently while commits
  sharing any row are strictly ordered. No commit ever observes another
  commit's intermediate state.

TIE-BREAK:
  First writer to acquire all of its rows wins. The loser validates
  against the winner's completed state and receives InsufficientStock or
  InsufficientBalance with the actual remaining amounts — it is told to
  re-fetch, never silently queued.

VALIDATION ORDER (against durable state, never the session snapshot):
  1. Account exists and is a Student
  2. Every product exists and is available
  3. Cart total (at durable prices) <= durable balance
  4. Every requested quantity <= durable stock

KNOWN GAP:
  Commits carry no idempotency key. A caller that retries after a timeout
  whose first attempt actually succeeded server-side will double-charge.

SEE ALSO:
  - canteen/store.go:  The locking and atomicity contract the engine relies on
  - store/sqlite:      Durable implementation of that contract
*/
package checkout

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/canteen-engine/canteen"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine executes commits against a CheckoutStore.
type Engine struct {
	store canteen.CheckoutStore

	// Retry policy for CommitWithRetry. Only ErrTimeout is retried.
	MaxRetries int
	Backoff    time.Duration
}

// New creates an engine over the given store.
func New(store canteen.CheckoutStore) *Engine {
	return &Engine{
		store:      store,
		MaxRetries: 3,
		Backoff:    50 * time.Millisecond,
	}
}

// Receipt is the definitive outcome of a successful commit.
// NewBalance lets the terminal refresh without a second round trip.
type Receipt struct {
	OrderID    string
	AccountID  string
	Kind       canteen.OrderKind
	Lines      []canteen.OrderLine
	Total      decimal.Decimal
	NewBalance decimal.Decimal
}

// =============================================================================
// COMMIT - the atomic checkout
// =============================================================================

// Commit purchases the given lines for the account.
//
// All four preconditions are evaluated and the mutation applied inside a
// single store unit with the affected rows exclusively locked. On any
// failure nothing changes and the cart stays with the caller. Failure
// reasons are enumerated: ErrAccountNotFound, ProductUnavailableError,
// InsufficientStockError, InsufficientBalanceError, ErrTimeout, and
// ErrLedgerWriteFailed for the fatal append-divergence case.
func (e *Engine) Commit(ctx context.Context, accountID string, lines []canteen.CartLine) (Receipt, error) {
	normalized, err := normalizeLines(lines)
	if err != nil {
		return Receipt{}, err
	}

	productIDs := make([]string, len(normalized))
	for i, l := range normalized {
		productIDs[i] = l.ProductID
	}

	var receipt Receipt
	err = e.store.WithLock(ctx, accountID, productIDs, func(tx canteen.CheckoutTx) error {
		acct, err := tx.Account(ctx, accountID)
		if err != nil {
			return err
		}
		if acct == nil || !acct.IsStudent() {
			return canteen.ErrAccountNotFound
		}

		// Read and re-price every line from durable state. The session
		// snapshot the cart was built against has no authority here.
		orderLines := make([]canteen.OrderLine, 0, len(normalized))
		stocks := make(map[string]int, len(normalized))
		total := decimal.Zero
		for _, l := range normalized {
			p, err := tx.Product(ctx, l.ProductID)
			if err != nil {
				return err
			}
			if p == nil || !p.Available {
				return &canteen.ProductUnavailableError{ProductID: l.ProductID}
			}
			stocks[p.ID] = p.Stock
			line := canteen.OrderLine{
				ProductID: p.ID,
				Name:      p.Name,
				Quantity:  l.Quantity,
				UnitPrice: p.Price,
			}
			orderLines = append(orderLines, line)
			total = total.Add(line.Amount())
		}

		if total.GreaterThan(acct.Balance) {
			return &canteen.InsufficientBalanceError{
				AccountID: accountID,
				Required:  total,
				Available: acct.Balance,
			}
		}
		for _, l := range normalized {
			if l.Quantity > stocks[l.ProductID] {
				return &canteen.InsufficientStockError{
					ProductID: l.ProductID,
					Requested: l.Quantity,
					Available: stocks[l.ProductID],
				}
			}
		}

		// Mutate. The store guards are a backstop; the checks above run
		// under the same locks, so these cannot fail on valid state.
		for _, l := range normalized {
			if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		if err := tx.DebitBalance(ctx, accountID, total); err != nil {
			return err
		}

		order := canteen.NewPurchaseOrder(accountID, orderLines)
		if err := tx.AppendOrder(ctx, order); err != nil {
			return fmt.Errorf("%w: order %s: %v", canteen.ErrLedgerWriteFailed, order.ID, err)
		}

		receipt = Receipt{
			OrderID:    order.ID,
			AccountID:  accountID,
			Kind:       canteen.OrderPurchase,
			Lines:      orderLines,
			Total:      total,
			NewBalance: acct.Balance.Sub(total),
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// CommitWithRetry retries Commit a bounded number of times with backoff,
// but only for ErrTimeout. Business-rule failures are returned
// immediately: the caller must re-fetch state before trying again.
func (e *Engine) CommitWithRetry(ctx context.Context, accountID string, lines []canteen.CartLine) (Receipt, error) {
	backoff := e.Backoff
	var receipt Receipt
	var err error
	for attempt := 0; ; attempt++ {
		receipt, err = e.Commit(ctx, accountID, lines)
		if err == nil || !canteen.IsRetryable(err) || attempt >= e.MaxRetries {
			return receipt, err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		}
		backoff *= 2
	}
}

// =============================================================================
// TOP-UP - the credit-only collaborator operation
// =============================================================================

// TopUp credits amount to a student wallet and appends a TopUp Order in
// the same atomic unit. Amount must be positive.
func (e *Engine) TopUp(ctx context.Context, accountID string, amount decimal.Decimal) (Receipt, error) {
	if !amount.IsPositive() {
		return Receipt{}, &canteen.ValidationError{Field: "amount", Message: "must be positive"}
	}

	var receipt Receipt
	err := e.store.WithLock(ctx, accountID, nil, func(tx canteen.CheckoutTx) error {
		acct, err := tx.Account(ctx, accountID)
		if err != nil {
			return err
		}
		if acct == nil || !acct.IsStudent() {
			return canteen.ErrAccountNotFound
		}

		if err := tx.CreditBalance(ctx, accountID, amount); err != nil {
			return err
		}

		order := canteen.NewTopUpOrder(accountID, amount)
		if err := tx.AppendOrder(ctx, order); err != nil {
			return fmt.Errorf("%w: order %s: %v", canteen.ErrLedgerWriteFailed, order.ID, err)
		}

		receipt = Receipt{
			OrderID:    order.ID,
			AccountID:  accountID,
			Kind:       canteen.OrderTopUp,
			Total:      amount,
			NewBalance: acct.Balance.Add(amount),
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// =============================================================================
// LINE NORMALIZATION
// =============================================================================

// normalizeLines validates quantities, merges duplicate product lines,
// and returns the lines in ascending product-id order — the same order
// the store acquires its locks in.
func normalizeLines(lines []canteen.CartLine) ([]canteen.CartLine, error) {
	if len(lines) == 0 {
		return nil, &canteen.ValidationError{Field: "lines", Message: "cart is empty"}
	}

	merged := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.ProductID == "" {
			return nil, &canteen.ValidationError{Field: "product_id", Message: "must not be empty"}
		}
		if l.Quantity < 1 {
			return nil, &canteen.ValidationError{Field: "quantity", Message: "must be at least 1"}
		}
		merged[l.ProductID] += l.Quantity
	}

	out := make([]canteen.CartLine, 0, len(merged))
	for id, qty := range merged {
		out = append(out, canteen.CartLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
