/*
Package sqlite provides the durable SQLite-backed implementation of the
canteen storage interfaces.

PURPOSE:
  Implements AccountStore, ProductStore, OrderStore, and — critically —
  CheckoutStore. The database transaction is the mutual-exclusion point
  the checkout engine's contract requires: the full precondition check
  and the mutation are indivisible, and no reader observes a commit's
  intermediate state.

CONCURRENCY:
  SQLite has a single writer. WithLock serializes write units through a
  bounded-wait gate so a contended commit blocks briefly and then fails
  with ErrTimeout instead of blocking indefinitely; the database-level
  busy timeout covers cross-process writers the same way. Because every
  unit holds the sole write transaction, the per-row canonical lock order
  from the CheckoutStore contract is trivially satisfied here. With
  PostgreSQL the same shape maps to SELECT ... FOR UPDATE in ascending
  row order.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements exist for the orders and order_lines
  tables. Stock decrements use a conditional UPDATE guarded by
  stock >= quantity, so the stock counter can never go negative even if
  a caller bypasses the engine's pre-checks.

KEY TABLES:
  accounts:    Wallet-holding identities (balance as decimal text)
  products:    Sellable catalog with durable stock counters
  orders:      Immutable ledger of purchases and top-ups
  order_lines: Price-at-time-of-sale line items

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - canteen/store.go: Interface contracts
  - checkout/engine.go: The only writer of balance/stock state
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/canteen-engine/canteen"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB

	// writeGate serializes checkout units in-process with a bounded wait.
	writeGate chan struct{}
	lockWait  time.Duration
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One pooled connection keeps ":memory:" databases and transaction
	// semantics sane under the sqlite3 driver.
	db.SetMaxOpenConns(1)

	store := &Store{
		db:        db,
		writeGate: make(chan struct{}, 1),
		lockWait:  5 * time.Second,
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetLockWait overrides the bounded lock wait (tests use short values).
func (s *Store) SetLockWait(d time.Duration) { s.lockWait = d }

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts (wallets)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		token TEXT,
		role TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_token
		ON accounts(token) WHERE token IS NOT NULL AND token != '';

	-- Products (durable stock counters)
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		available INTEGER NOT NULL DEFAULT 1,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);

	-- Orders (append-only ledger)
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		total TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_account
		ON orders(account_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_orders_created_at
		ON orders(created_at DESC);

	-- Order lines (price at time of sale)
	CREATE TABLE IF NOT EXISTS order_lines (
		order_id TEXT NOT NULL REFERENCES orders(id),
		product_id TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_order_lines_order ON order_lines(order_id);
	CREATE INDEX IF NOT EXISTS idx_order_lines_product ON order_lines(product_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNT STORE (canteen.AccountStore interface)
// =============================================================================

// Account retrieves an account by ID. Returns (nil, nil) for a miss.
func (s *Store) Account(ctx context.Context, id string) (*canteen.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		"SELECT id, name, token, role, balance FROM accounts WHERE id = ?", id))
}

// AccountByToken retrieves an account by its external scannable token.
func (s *Store) AccountByToken(ctx context.Context, token string) (*canteen.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		"SELECT id, name, token, role, balance FROM accounts WHERE token = ?", token))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*canteen.Account, error) {
	var a canteen.Account
	var token sql.NullString
	var balance string

	err := row.Scan(&a.ID, &a.Name, &token, &a.Role, &balance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	a.Token = token.String
	a.Balance = canteen.MustParseDecimal(balance)
	return &a, nil
}

// SaveAccount inserts or updates an account record. This is the external
// collaborator write path (seeding, admin maintenance); balance changes
// during operation go through WithLock only.
func (s *Store) SaveAccount(ctx context.Context, a canteen.Account) error {
	query := `
		INSERT INTO accounts (id, name, token, role, balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			token = excluded.token,
			role = excluded.role,
			balance = excluded.balance
	`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Name, nullString(a.Token), string(a.Role),
		a.Balance.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// PRODUCT STORE (canteen.ProductStore interface)
// =============================================================================

// Product retrieves a product by ID. Returns (nil, nil) for a miss.
func (s *Store) Product(ctx context.Context, id string) (*canteen.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx,
		"SELECT id, name, price, category, description, available, stock FROM products WHERE id = ?", id))
}

// Products returns the full catalog ordered by id.
func (s *Store) Products(ctx context.Context) ([]canteen.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, price, category, description, available, stock FROM products ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []canteen.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func scanProduct(row rowScanner) (*canteen.Product, error) {
	var p canteen.Product
	var price string
	var available int

	err := row.Scan(&p.ID, &p.Name, &price, &p.Category, &p.Description, &available, &p.Stock)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}

	p.Price = canteen.MustParseDecimal(price)
	p.Available = available != 0
	return &p, nil
}

// SaveProduct inserts or updates a product record (admin catalog path).
func (s *Store) SaveProduct(ctx context.Context, p canteen.Product) error {
	query := `
		INSERT INTO products (id, name, price, category, description, available, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			category = excluded.category,
			description = excluded.description,
			available = excluded.available,
			stock = excluded.stock,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Price.String(), p.Category, p.Description,
		boolToInt(p.Available), p.Stock, now, now,
	)
	return err
}

// =============================================================================
// CHECKOUT STORE (canteen.CheckoutStore interface)
// =============================================================================

// WithLock runs fn inside a database transaction with exclusive write
// access. Acquisition of the write gate is bounded; ErrTimeout on expiry.
func (s *Store) WithLock(ctx context.Context, accountID string, productIDs []string, fn func(canteen.CheckoutTx) error) error {
	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()
	select {
	case s.writeGate <- struct{}{}:
		defer func() { <-s.writeGate }()
	case <-timer.C:
		return canteen.ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusyError(err) {
			return canteen.ErrTimeout
		}
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&checkoutTx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isBusyError(err) {
			return canteen.ErrTimeout
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// checkoutTx implements canteen.CheckoutTx over one *sql.Tx.
type checkoutTx struct {
	tx *sql.Tx
}

func (ct *checkoutTx) Account(ctx context.Context, id string) (*canteen.Account, error) {
	return scanAccount(ct.tx.QueryRowContext(ctx,
		"SELECT id, name, token, role, balance FROM accounts WHERE id = ?", id))
}

func (ct *checkoutTx) Product(ctx context.Context, id string) (*canteen.Product, error) {
	return scanProduct(ct.tx.QueryRowContext(ctx,
		"SELECT id, name, price, category, description, available, stock FROM products WHERE id = ?", id))
}

// DebitBalance re-reads the durable balance inside the transaction and
// refuses to let it go negative. Decimal balances are stored as text, so
// the comparison happens here rather than in SQL; the exclusive write
// transaction makes the read-check-write indivisible.
func (ct *checkoutTx) DebitBalance(ctx context.Context, accountID string, amount decimal.Decimal) error {
	acct, err := ct.Account(ctx, accountID)
	if err != nil {
		return err
	}
	if acct == nil {
		return canteen.ErrAccountNotFound
	}
	if amount.GreaterThan(acct.Balance) {
		return &canteen.InsufficientBalanceError{AccountID: accountID, Required: amount, Available: acct.Balance}
	}

	_, err = ct.tx.ExecContext(ctx,
		"UPDATE accounts SET balance = ? WHERE id = ?",
		acct.Balance.Sub(amount).String(), accountID)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	return nil
}

func (ct *checkoutTx) CreditBalance(ctx context.Context, accountID string, amount decimal.Decimal) error {
	acct, err := ct.Account(ctx, accountID)
	if err != nil {
		return err
	}
	if acct == nil {
		return canteen.ErrAccountNotFound
	}

	_, err = ct.tx.ExecContext(ctx,
		"UPDATE accounts SET balance = ? WHERE id = ?",
		acct.Balance.Add(amount).String(), accountID)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}

// DecrementStock uses a conditional update so the counter can never go
// negative: zero rows affected means the stock ran out.
func (ct *checkoutTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	result, err := ct.tx.ExecContext(ctx,
		"UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?",
		qty, time.Now().UTC().Format(time.RFC3339), productID, qty)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		p, err := ct.Product(ctx, productID)
		if err != nil {
			return err
		}
		if p == nil {
			return canteen.ErrProductNotFound
		}
		return &canteen.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
	}
	return nil
}

func (ct *checkoutTx) AppendOrder(ctx context.Context, order canteen.Order) error {
	_, err := ct.tx.ExecContext(ctx,
		"INSERT INTO orders (id, account_id, kind, total, created_at) VALUES (?, ?, ?, ?, ?)",
		order.ID, order.AccountID, string(order.Kind),
		order.Total.String(), order.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, l := range order.Lines {
		_, err := ct.tx.ExecContext(ctx,
			"INSERT INTO order_lines (order_id, product_id, name, quantity, unit_price) VALUES (?, ?, ?, ?, ?)",
			order.ID, l.ProductID, l.Name, l.Quantity, l.UnitPrice.String())
		if err != nil {
			return fmt.Errorf("failed to insert order line: %w", err)
		}
	}
	return nil
}

// =============================================================================
// ORDER STORE (canteen.OrderStore interface) - read-only projections
// =============================================================================

// OrdersByAccount returns an account's history, newest first.
func (s *Store) OrdersByAccount(ctx context.Context, accountID string) ([]canteen.Order, error) {
	query := `
		SELECT id, account_id, kind, total, created_at
		FROM orders
		WHERE account_id = ?
		ORDER BY created_at DESC, rowid DESC
	`
	return s.queryOrders(ctx, query, accountID)
}

// RecentOrders returns the latest orders across all accounts.
func (s *Store) RecentOrders(ctx context.Context, limit int) ([]canteen.Order, error) {
	query := `
		SELECT id, account_id, kind, total, created_at
		FROM orders
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	return s.queryOrders(ctx, query, limit)
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]canteen.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []canteen.Order
	for rows.Next() {
		var o canteen.Order
		var total, createdAt string
		if err := rows.Scan(&o.ID, &o.AccountID, &o.Kind, &total, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Total = canteen.MustParseDecimal(total)
		o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		lines, err := s.orderLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (s *Store) orderLines(ctx context.Context, orderID string) ([]canteen.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT product_id, name, quantity, unit_price FROM order_lines WHERE order_id = ? ORDER BY product_id",
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	var lines []canteen.OrderLine
	for rows.Next() {
		var l canteen.OrderLine
		var unitPrice string
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Quantity, &unitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		l.UnitPrice = canteen.MustParseDecimal(unitPrice)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// TopProducts aggregates purchase lines into the best sellers. Revenue is
// summed in Go to keep decimal precision (prices are stored as text).
func (s *Store) TopProducts(ctx context.Context, n int) ([]canteen.ProductSales, error) {
	query := `
		SELECT l.product_id, l.name, SUM(l.quantity) AS units
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		WHERE o.kind = 'purchase'
		GROUP BY l.product_id, l.name
		ORDER BY units DESC, l.product_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var out []canteen.ProductSales
	for rows.Next() {
		var ps canteen.ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.Name, &ps.UnitsSold); err != nil {
			return nil, fmt.Errorf("failed to scan sales row: %w", err)
		}
		ps.Revenue = decimal.Zero
		out = append(out, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if n > 0 && len(out) > n {
		out = out[:n]
	}

	for i := range out {
		revenue, err := s.productRevenue(ctx, out[i].ProductID)
		if err != nil {
			return nil, err
		}
		out[i].Revenue = revenue
	}
	return out, nil
}

func (s *Store) productRevenue(ctx context.Context, productID string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.quantity, l.unit_price
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		WHERE o.kind = 'purchase' AND l.product_id = ?
	`, productID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query revenue: %w", err)
	}
	defer rows.Close()

	revenue := decimal.Zero
	for rows.Next() {
		var qty int
		var unitPrice string
		if err := rows.Scan(&qty, &unitPrice); err != nil {
			return decimal.Zero, err
		}
		revenue = revenue.Add(canteen.MustParseDecimal(unitPrice).Mul(decimal.NewFromInt(int64(qty))))
	}
	return revenue, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{"order_lines", "orders", "products", "accounts"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isBusyError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "SQLITE_BUSY"))
}
