/*
cart.go - Session cart state machine

PURPOSE:
  A Cart is the mutable, session-scoped collection of (product, quantity)
  pairs a staff member assembles at one terminal. It is owned exclusively
  by that session and needs no synchronization.

STATES:
  Empty -> Building -> ReadyToCheckout -> Committed
                  \-> (engine failure: stays in Building, lines preserved)

ADVISORY CHECKS ONLY:
  The cart rejects unavailable products and quantities beyond the
  *snapshot* stock so the operator gets an early answer, but these checks
  are never the authority. The checkout engine re-validates everything
  against durable state at commit, and a cart that passes here can still
  be rejected there. On engine failure the cart is never silently
  cleared — the operator adjusts quantities and retries.
*/
package canteen

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CartState tracks where a session cart is in its lifecycle.
type CartState string

const (
	CartEmpty           CartState = "empty"
	CartBuilding        CartState = "building"
	CartReadyToCheckout CartState = "ready_to_checkout"
	CartCommitted       CartState = "committed"
)

// Cart is one terminal session's in-progress order.
// One line per product; repeated adds increment the quantity.
type Cart struct {
	snapshot *Snapshot
	account  *Account
	lines    map[string]*CartLine
	state    CartState
}

// NewCart creates an empty cart bound to a catalog snapshot.
func NewCart(snapshot *Snapshot) *Cart {
	return &Cart{
		snapshot: snapshot,
		lines:    make(map[string]*CartLine),
		state:    CartEmpty,
	}
}

// AttachAccount binds the resolved student to this session.
func (c *Cart) AttachAccount(acct Account) error {
	if !acct.IsStudent() {
		return ErrIdentityNotFound
	}
	c.account = &acct
	c.refreshState()
	return nil
}

// Account returns the attached account, if any.
func (c *Cart) Account() *Account { return c.account }

// AddItem adds qty units of a product, merging into an existing line.
//
// Rejected (without touching the cart) when the product is unknown or
// unavailable, qty < 1, or the resulting line quantity would exceed the
// snapshot stock.
func (c *Cart) AddItem(productID string, qty int) error {
	if qty < 1 {
		return &ValidationError{Field: "quantity", Message: "must be at least 1"}
	}

	p, ok := c.snapshot.Product(productID)
	if !ok || !p.Available {
		return &ProductUnavailableError{ProductID: productID}
	}

	current := 0
	if line, exists := c.lines[productID]; exists {
		current = line.Quantity
	}
	if current+qty > p.Stock {
		return &InsufficientStockError{ProductID: productID, Requested: current + qty, Available: p.Stock}
	}

	if line, exists := c.lines[productID]; exists {
		line.Quantity += qty
	} else {
		c.lines[productID] = &CartLine{ProductID: productID, Quantity: qty, UnitPrice: p.Price}
	}
	c.refreshState()
	return nil
}

// SetQuantity sets a line's quantity directly. Zero removes the line;
// a quantity above the snapshot stock is rejected.
func (c *Cart) SetQuantity(productID string, qty int) error {
	if qty < 0 {
		return &ValidationError{Field: "quantity", Message: "must not be negative"}
	}
	if qty == 0 {
		delete(c.lines, productID)
		c.refreshState()
		return nil
	}

	p, ok := c.snapshot.Product(productID)
	if !ok || !p.Available {
		return &ProductUnavailableError{ProductID: productID}
	}
	if qty > p.Stock {
		return &InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
	}

	if line, exists := c.lines[productID]; exists {
		line.Quantity = qty
	} else {
		c.lines[productID] = &CartLine{ProductID: productID, Quantity: qty, UnitPrice: p.Price}
	}
	c.refreshState()
	return nil
}

// Clear empties the cart and returns the session to Empty.
func (c *Cart) Clear() {
	c.lines = make(map[string]*CartLine)
	c.state = CartEmpty
	if c.account != nil {
		c.state = CartBuilding
	}
}

// Total sums line amounts at snapshot prices. Pure; no side effects.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Amount())
	}
	return total
}

// Lines returns the cart contents in stable product-id order.
func (c *Cart) Lines() []CartLine {
	out := make([]CartLine, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, *line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// State returns the current lifecycle state.
func (c *Cart) State() CartState { return c.state }

// Ready reports whether the cart can be handed to the checkout engine:
// at least one line and a resolved account.
func (c *Cart) Ready() bool { return c.state == CartReadyToCheckout }

// MarkCommitted transitions to Committed and clears the lines.
// Call only after the engine reports success; on failure the cart is
// left as-is so the operator can adjust and retry.
func (c *Cart) MarkCommitted() {
	c.lines = make(map[string]*CartLine)
	c.state = CartCommitted
}

func (c *Cart) refreshState() {
	switch {
	case len(c.lines) > 0 && c.account != nil:
		c.state = CartReadyToCheckout
	case len(c.lines) > 0 || c.account != nil:
		c.state = CartBuilding
	default:
		c.state = CartEmpty
	}
}
