/*
Package store provides an in-memory implementation of the canteen storage
interfaces, for tests and local development.

The Memory store keeps one lock per durable row (one per account, one per
product). WithLock acquires the commit's rows in the canonical order —
account first, then products ascending by id — with a bounded wait per
lock, so concurrent commits over disjoint rows proceed in parallel while
conflicting commits serialize without deadlocking.

Mutations inside a WithLock unit are staged and applied only when the
unit succeeds; a failing unit leaves no trace.
*/
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/canteen-engine/canteen"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	accounts map[string]canteen.Account
	products map[string]canteen.Product
	orders   []canteen.Order

	lockMu   sync.Mutex
	rowLocks map[string]chan struct{}

	lockWait time.Duration
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]canteen.Account),
		products: make(map[string]canteen.Product),
		rowLocks: make(map[string]chan struct{}),
		lockWait: 3 * time.Second,
	}
}

// SetLockWait overrides the bounded lock wait (tests use short values).
func (m *Memory) SetLockWait(d time.Duration) { m.lockWait = d }

// =============================================================================
// COLLABORATOR WRITES (seeding, admin catalog maintenance)
// =============================================================================
// These are the external-workflow write paths. Balance and stock changes
// during operation still flow exclusively through WithLock.

// SaveAccount inserts or replaces an account record.
func (m *Memory) SaveAccount(_ context.Context, a canteen.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

// SaveProduct inserts or replaces a product record.
func (m *Memory) SaveProduct(_ context.Context, p canteen.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

// =============================================================================
// READ INTERFACES
// =============================================================================

func (m *Memory) Account(_ context.Context, id string) (*canteen.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.accounts[id]; ok {
		cp := a
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) AccountByToken(_ context.Context, token string) (*canteen.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.Token != "" && a.Token == token {
			cp := a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) Product(_ context.Context, id string) (*canteen.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.products[id]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) Products(_ context.Context) ([]canteen.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]canteen.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) OrdersByAccount(_ context.Context, accountID string) ([]canteen.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []canteen.Order
	for i := len(m.orders) - 1; i >= 0; i-- {
		if m.orders[i].AccountID == accountID {
			out = append(out, copyOrder(m.orders[i]))
		}
	}
	return out, nil
}

func (m *Memory) RecentOrders(_ context.Context, limit int) ([]canteen.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []canteen.Order
	for i := len(m.orders) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyOrder(m.orders[i]))
	}
	return out, nil
}

func (m *Memory) TopProducts(_ context.Context, n int) ([]canteen.ProductSales, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byProduct := make(map[string]*canteen.ProductSales)
	for _, o := range m.orders {
		if o.Kind != canteen.OrderPurchase {
			continue
		}
		for _, l := range o.Lines {
			agg, ok := byProduct[l.ProductID]
			if !ok {
				agg = &canteen.ProductSales{ProductID: l.ProductID, Name: l.Name, Revenue: decimal.Zero}
				byProduct[l.ProductID] = agg
			}
			agg.UnitsSold += int64(l.Quantity)
			agg.Revenue = agg.Revenue.Add(l.Amount())
		}
	}

	out := make([]canteen.ProductSales, 0, len(byProduct))
	for _, agg := range byProduct {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitsSold != out[j].UnitsSold {
			return out[i].UnitsSold > out[j].UnitsSold
		}
		return out[i].ProductID < out[j].ProductID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// =============================================================================
// CHECKOUT STORE - ordered row locks + staged mutation
// =============================================================================

// WithLock implements canteen.CheckoutStore.
func (m *Memory) WithLock(ctx context.Context, accountID string, productIDs []string, fn func(canteen.CheckoutTx) error) error {
	keys := lockKeys(accountID, productIDs)

	var held []chan struct{}
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, key := range keys {
		ch := m.rowLock(key)
		if err := acquire(ctx, ch, m.lockWait); err != nil {
			release()
			return err
		}
		held = append(held, ch)
	}
	defer release()

	tx := &memoryTx{
		m:        m,
		balances: make(map[string]decimal.Decimal),
		stocks:   make(map[string]int),
	}
	if err := fn(tx); err != nil {
		return err
	}

	tx.apply()
	return nil
}

// lockKeys builds the canonical acquisition order: account first, then
// products ascending by id, deduplicated.
func lockKeys(accountID string, productIDs []string) []string {
	keys := []string{"account/" + accountID}
	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, "product/"+id)
	}
	return keys
}

func (m *Memory) rowLock(key string) chan struct{} {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	ch, ok := m.rowLocks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.rowLocks[key] = ch
	}
	return ch
}

func acquire(ctx context.Context, ch chan struct{}, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return canteen.ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// STAGED TRANSACTION VIEW
// =============================================================================

// memoryTx stages balance/stock/order effects while the row locks are
// held. Reads merge staged values so the unit observes its own writes.
type memoryTx struct {
	m        *Memory
	balances map[string]decimal.Decimal
	stocks   map[string]int
	orders   []canteen.Order
}

func (tx *memoryTx) Account(ctx context.Context, id string) (*canteen.Account, error) {
	acct, err := tx.m.Account(ctx, id)
	if err != nil || acct == nil {
		return acct, err
	}
	if bal, ok := tx.balances[id]; ok {
		acct.Balance = bal
	}
	return acct, nil
}

func (tx *memoryTx) Product(ctx context.Context, id string) (*canteen.Product, error) {
	p, err := tx.m.Product(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	if stock, ok := tx.stocks[id]; ok {
		p.Stock = stock
	}
	return p, nil
}

func (tx *memoryTx) DebitBalance(ctx context.Context, accountID string, amount decimal.Decimal) error {
	acct, err := tx.Account(ctx, accountID)
	if err != nil {
		return err
	}
	if acct == nil {
		return canteen.ErrAccountNotFound
	}
	if amount.GreaterThan(acct.Balance) {
		return &canteen.InsufficientBalanceError{AccountID: accountID, Required: amount, Available: acct.Balance}
	}
	tx.balances[accountID] = acct.Balance.Sub(amount)
	return nil
}

func (tx *memoryTx) CreditBalance(ctx context.Context, accountID string, amount decimal.Decimal) error {
	acct, err := tx.Account(ctx, accountID)
	if err != nil {
		return err
	}
	if acct == nil {
		return canteen.ErrAccountNotFound
	}
	tx.balances[accountID] = acct.Balance.Add(amount)
	return nil
}

func (tx *memoryTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	p, err := tx.Product(ctx, productID)
	if err != nil {
		return err
	}
	if p == nil {
		return canteen.ErrProductNotFound
	}
	if qty > p.Stock {
		return &canteen.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
	}
	tx.stocks[productID] = p.Stock - qty
	return nil
}

func (tx *memoryTx) AppendOrder(_ context.Context, order canteen.Order) error {
	if order.ID == "" {
		return fmt.Errorf("order id must not be empty")
	}
	tx.m.mu.RLock()
	for _, existing := range tx.m.orders {
		if existing.ID == order.ID {
			tx.m.mu.RUnlock()
			return fmt.Errorf("order %s already exists", order.ID)
		}
	}
	tx.m.mu.RUnlock()
	tx.orders = append(tx.orders, copyOrder(order))
	return nil
}

// apply publishes the staged effects. The row locks are still held, so
// no conflicting unit can interleave.
func (tx *memoryTx) apply() {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()

	for id, bal := range tx.balances {
		a := tx.m.accounts[id]
		a.Balance = bal
		tx.m.accounts[id] = a
	}
	for id, stock := range tx.stocks {
		p := tx.m.products[id]
		p.Stock = stock
		tx.m.products[id] = p
	}
	tx.m.orders = append(tx.m.orders, tx.orders...)
}

func copyOrder(o canteen.Order) canteen.Order {
	cp := o
	cp.Lines = append([]canteen.OrderLine(nil), o.Lines...)
	return cp
}
