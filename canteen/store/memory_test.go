package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/canteen-engine/canteen"
	"github.com/warp/canteen-engine/canteen/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newSeededMemory(t *testing.T) *store.Memory {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveAccount(ctx, canteen.Account{
		ID: "stu1", Name: "Alice Johnson", Token: "2024001",
		Role: canteen.RoleStudent, Balance: dec("50.00"),
	}))
	require.NoError(t, mem.SaveAccount(ctx, canteen.Account{
		ID: "stu2", Name: "Bob Smith", Token: "2024002",
		Role: canteen.RoleStudent, Balance: dec("15.50"),
	}))
	require.NoError(t, mem.SaveProduct(ctx, canteen.Product{
		ID: "p3", Name: "Apple Juice", Price: dec("20.00"),
		Category: "Drink", Available: true, Stock: 50,
	}))
	return mem
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// =============================================================================
// READ PATHS
// =============================================================================

func TestMemory_AccountReads(t *testing.T) {
	mem := newSeededMemory(t)
	ctx := context.Background()

	acct, err := mem.Account(ctx, "stu1")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, "Alice Johnson", acct.Name)

	// Miss is (nil, nil), not an error
	acct, err = mem.Account(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, acct)

	byToken, err := mem.AccountByToken(ctx, "2024002")
	require.NoError(t, err)
	require.NotNil(t, byToken)
	assert.Equal(t, "stu2", byToken.ID)

	byToken, err = mem.AccountByToken(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, byToken, "empty token never matches, even tokenless accounts")
}

func TestMemory_ReadsReturnCopies(t *testing.T) {
	// Mutating a returned record must not leak into the store.
	mem := newSeededMemory(t)
	ctx := context.Background()

	acct, _ := mem.Account(ctx, "stu1")
	acct.Balance = dec("0")

	fresh, _ := mem.Account(ctx, "stu1")
	assert.True(t, fresh.Balance.Equal(dec("50.00")))
}

// =============================================================================
// LOCKING & ATOMICITY
// =============================================================================

func TestMemory_WithLock_AppliesOnSuccess(t *testing.T) {
	mem := newSeededMemory(t)
	ctx := context.Background()

	err := mem.WithLock(ctx, "stu1", []string{"p3"}, func(tx canteen.CheckoutTx) error {
		if err := tx.DebitBalance(ctx, "stu1", dec("20.00")); err != nil {
			return err
		}
		return tx.DecrementStock(ctx, "p3", 1)
	})
	require.NoError(t, err)

	acct, _ := mem.Account(ctx, "stu1")
	assert.True(t, acct.Balance.Equal(dec("30.00")))
	p, _ := mem.Product(ctx, "p3")
	assert.Equal(t, 49, p.Stock)
}

func TestMemory_WithLock_DiscardsOnFailure(t *testing.T) {
	// GIVEN: A unit that debits, decrements, then fails
	// WHEN: The unit returns an error
	// THEN: Nothing is applied — no partial state

	mem := newSeededMemory(t)
	ctx := context.Background()

	err := mem.WithLock(ctx, "stu1", []string{"p3"}, func(tx canteen.CheckoutTx) error {
		require.NoError(t, tx.DebitBalance(ctx, "stu1", dec("20.00")))
		require.NoError(t, tx.DecrementStock(ctx, "p3", 1))
		return errors.New("abort")
	})
	require.Error(t, err)

	acct, _ := mem.Account(ctx, "stu1")
	assert.True(t, acct.Balance.Equal(dec("50.00")))
	p, _ := mem.Product(ctx, "p3")
	assert.Equal(t, 50, p.Stock)
}

func TestMemory_WithLock_UnitSeesOwnWrites(t *testing.T) {
	mem := newSeededMemory(t)
	ctx := context.Background()

	err := mem.WithLock(ctx, "stu1", []string{"p3"}, func(tx canteen.CheckoutTx) error {
		require.NoError(t, tx.DecrementStock(ctx, "p3", 10))

		p, err := tx.Product(ctx, "p3")
		require.NoError(t, err)
		assert.Equal(t, 40, p.Stock, "staged decrement must be visible inside the unit")

		require.NoError(t, tx.DebitBalance(ctx, "stu1", dec("30.00")))
		acct, err := tx.Account(ctx, "stu1")
		require.NoError(t, err)
		assert.True(t, acct.Balance.Equal(dec("20.00")))
		return nil
	})
	require.NoError(t, err)
}

func TestMemory_WithLock_GuardsNeverGoNegative(t *testing.T) {
	mem := newSeededMemory(t)
	ctx := context.Background()

	err := mem.WithLock(ctx, "stu1", []string{"p3"}, func(tx canteen.CheckoutTx) error {
		return tx.DebitBalance(ctx, "stu1", dec("50.01"))
	})
	assert.True(t, errors.Is(err, canteen.ErrInsufficientBalance))

	err = mem.WithLock(ctx, "stu1", []string{"p3"}, func(tx canteen.CheckoutTx) error {
		return tx.DecrementStock(ctx, "p3", 51)
	})
	assert.True(t, errors.Is(err, canteen.ErrInsufficientStock))
}

func TestMemory_WithLock_ConflictingUnitTimesOut(t *testing.T) {
	// GIVEN: A unit holding the lock on stu1
	// WHEN: A second unit wants stu1 within a short bounded wait
	// THEN: The second unit fails with ErrTimeout instead of blocking

	mem := newSeededMemory(t)
	mem.SetLockWait(20 * time.Millisecond)
	ctx := context.Background()

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		mem.WithLock(ctx, "stu1", nil, func(canteen.CheckoutTx) error {
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding
	defer close(done)

	err := mem.WithLock(ctx, "stu1", nil, func(canteen.CheckoutTx) error { return nil })
	assert.True(t, errors.Is(err, canteen.ErrTimeout))
	assert.True(t, canteen.IsRetryable(err))
}

func TestMemory_WithLock_DisjointRowsRunConcurrently(t *testing.T) {
	// GIVEN: One unit holding stu1/p3
	// WHEN: A second unit wants only stu2
	// THEN: It proceeds without waiting for the first

	mem := newSeededMemory(t)
	mem.SetLockWait(50 * time.Millisecond)
	ctx := context.Background()

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		mem.WithLock(ctx, "stu1", []string{"p3"}, func(canteen.CheckoutTx) error {
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding
	defer close(done)

	err := mem.WithLock(ctx, "stu2", nil, func(tx canteen.CheckoutTx) error {
		return tx.CreditBalance(ctx, "stu2", dec("1.00"))
	})
	require.NoError(t, err, "disjoint rows must not contend")

	acct, _ := mem.Account(ctx, "stu2")
	assert.True(t, acct.Balance.Equal(dec("16.50")))
}

func TestMemory_WithLock_CancelledContext(t *testing.T) {
	mem := newSeededMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		mem.WithLock(context.Background(), "stu1", nil, func(canteen.CheckoutTx) error {
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding
	defer close(done)

	err := mem.WithLock(ctx, "stu1", nil, func(canteen.CheckoutTx) error { return nil })
	assert.True(t, errors.Is(err, context.Canceled))
}

// =============================================================================
// LEDGER READS
// =============================================================================

func TestMemory_OrderReadsAndAggregation(t *testing.T) {
	mem := newSeededMemory(t)
	ctx := context.Background()

	appendPurchase := func(accountID string, lines ...canteen.OrderLine) {
		err := mem.WithLock(ctx, accountID, nil, func(tx canteen.CheckoutTx) error {
			return tx.AppendOrder(ctx, canteen.NewPurchaseOrder(accountID, lines))
		})
		require.NoError(t, err)
	}

	juice := canteen.OrderLine{ProductID: "p3", Name: "Apple Juice", Quantity: 2, UnitPrice: dec("20.00")}
	cookie := canteen.OrderLine{ProductID: "p4", Name: "Cookie", Quantity: 1, UnitPrice: dec("15.00")}

	appendPurchase("stu1", juice)
	appendPurchase("stu2", juice, cookie)
	appendPurchase("stu1", cookie)

	// Per-account history, newest first
	orders, err := mem.OrdersByAccount(ctx, "stu1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "p4", orders[0].Lines[0].ProductID, "newest order first")

	// Recent activity across accounts, bounded
	recent, err := mem.RecentOrders(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	// Best sellers by units
	top, err := mem.TopProducts(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "p3", top[0].ProductID)
	assert.Equal(t, int64(4), top[0].UnitsSold)
	assert.True(t, top[0].Revenue.Equal(dec("80.00")))
	assert.Equal(t, int64(2), top[1].UnitsSold)
}

func TestMemory_AppendOrderRejectsDuplicateIDs(t *testing.T) {
	mem := newSeededMemory(t)
	ctx := context.Background()

	order := canteen.NewTopUpOrder("stu1", dec("5.00"))

	err := mem.WithLock(ctx, "stu1", nil, func(tx canteen.CheckoutTx) error {
		return tx.AppendOrder(ctx, order)
	})
	require.NoError(t, err)

	err = mem.WithLock(ctx, "stu1", nil, func(tx canteen.CheckoutTx) error {
		return tx.AppendOrder(ctx, order)
	})
	assert.Error(t, err, "ledger entries are append-only and unique")
}
