/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  internal domain model from the external contract. Monetary amounts are
  serialized as fixed two-decimal strings; clients send amounts as JSON
  numbers or strings, parsed through json.Number to avoid float drift.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/canteen-engine/canteen"
	"github.com/warp/canteen-engine/checkout"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ResolveRequest carries the scanned or typed student token.
type ResolveRequest struct {
	Token string `json:"token"`
}

// CheckoutRequest is the commit payload from a terminal.
type CheckoutRequest struct {
	AccountID string        `json:"account_id"`
	Lines     []LineRequest `json:"lines"`
}

// LineRequest is one (product, quantity) pair.
type LineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// TopUpRequest credits a student wallet.
type TopUpRequest struct {
	Amount json.Number `json:"amount"`
}

// SuggestRequest asks the advisor for a meal within a budget.
type SuggestRequest struct {
	Budget json.Number `json:"budget"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// AccountDTO is the resolved identity a terminal displays.
type AccountDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

// ProductDTO is one catalog entry.
type ProductDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Available   bool   `json:"available"`
	Stock       int    `json:"stock"`
}

// ReceiptDTO is the definitive success outcome of a commit.
type ReceiptDTO struct {
	OrderID    string         `json:"order_id"`
	AccountID  string         `json:"account_id"`
	Kind       string         `json:"kind"`
	Lines      []OrderLineDTO `json:"lines,omitempty"`
	Total      string         `json:"total"`
	NewBalance string         `json:"new_balance"`
}

// OrderDTO is one ledger entry in a history or reporting view.
type OrderDTO struct {
	ID        string         `json:"id"`
	AccountID string         `json:"account_id"`
	Kind      string         `json:"kind"`
	Lines     []OrderLineDTO `json:"lines,omitempty"`
	Total     string         `json:"total"`
	CreatedAt string         `json:"created_at"`
}

// OrderLineDTO captures a line with its price at time of sale.
type OrderLineDTO struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Amount    string `json:"amount"`
}

// ProductSalesDTO is one row of the top-products report.
type ProductSalesDTO struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitsSold int64  `json:"units_sold"`
	Revenue   string `json:"revenue"`
}

// SuggestionDTO is the advisor's meal proposal.
type SuggestionDTO struct {
	Suggestion    string `json:"suggestion"`
	EstimatedCost string `json:"estimated_cost"`
}

// ErrorDTO is the enumerated failure payload. The optional fields carry
// the offending resource and actual amounts so the terminal can tell the
// operator exactly why a checkout was rejected.
type ErrorDTO struct {
	Error     string `json:"error"`
	ProductID string `json:"product_id,omitempty"`
	Available string `json:"available,omitempty"`
	Required  string `json:"required,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func accountDTO(a canteen.Account) AccountDTO {
	return AccountDTO{
		ID:      a.ID,
		Name:    a.Name,
		Token:   a.Token,
		Balance: a.Balance.StringFixed(2),
	}
}

func productDTO(p canteen.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price.StringFixed(2),
		Category:    p.Category,
		Description: p.Description,
		Available:   p.Available,
		Stock:       p.Stock,
	}
}

func receiptDTO(r checkout.Receipt) ReceiptDTO {
	return ReceiptDTO{
		OrderID:    r.OrderID,
		AccountID:  r.AccountID,
		Kind:       string(r.Kind),
		Lines:      orderLineDTOs(r.Lines),
		Total:      r.Total.StringFixed(2),
		NewBalance: r.NewBalance.StringFixed(2),
	}
}

func orderDTO(o canteen.Order) OrderDTO {
	return OrderDTO{
		ID:        o.ID,
		AccountID: o.AccountID,
		Kind:      string(o.Kind),
		Lines:     orderLineDTOs(o.Lines),
		Total:     o.Total.StringFixed(2),
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

func orderLineDTOs(lines []canteen.OrderLine) []OrderLineDTO {
	out := make([]OrderLineDTO, len(lines))
	for i, l := range lines {
		out[i] = OrderLineDTO{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Amount:    l.Amount().StringFixed(2),
		}
	}
	return out
}
