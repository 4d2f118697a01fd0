/*
handlers.go - HTTP handlers for the checkout core

PURPOSE:
  Exposes the checkout engine and its collaborators to POS terminals and
  dashboards. Handles HTTP request/response and JSON mapping; all
  authority lives in the domain packages.

ENDPOINTS:
  POST /api/identity/resolve        Token -> verified student account
  GET  /api/products                Catalog (terminals snapshot this)
  POST /api/checkout                Atomic purchase commit
  POST /api/accounts/{id}/topup     Credit-only wallet top-up
  GET  /api/accounts/{id}/orders    Per-account history, newest first
  GET  /api/reports/top-products    Best sellers aggregation
  GET  /api/reports/recent-orders   Latest activity
  POST /api/advisor/suggest         Meal suggestion for a budget
  GET  /api/advisor/insights        Sales commentary
  POST /api/seed                    Demo dataset (dev only)

ERROR HANDLING:
  Business failures map to enumerated JSON payloads with the offending
  resource and actual amounts:
  - 400: validation (empty token, bad quantity/amount)
  - 402: insufficient balance
  - 404: identity/account not found
  - 409: insufficient stock
  - 422: product unavailable
  - 503: advisor unavailable
  - 504: lock wait timeout (retryable)
  - 500: internal errors, ledger divergence
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/canteen-engine/advisor"
	"github.com/warp/canteen-engine/canteen"
	"github.com/warp/canteen-engine/checkout"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Seeder is the collaborator write path used by the demo seed endpoint.
type Seeder interface {
	SaveAccount(ctx context.Context, a canteen.Account) error
	SaveProduct(ctx context.Context, p canteen.Product) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Accounts canteen.AccountStore
	Products canteen.ProductStore
	Orders   canteen.OrderStore
	Engine   *checkout.Engine
	Resolver *canteen.Resolver
	Advisor  *advisor.Client
	Seeder   Seeder
	Log      *zap.Logger
}

// =============================================================================
// IDENTITY
// =============================================================================

// ResolveIdentity maps a scanned token to a student account.
func (h *Handler) ResolveIdentity(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acct, err := h.Resolver.Resolve(r.Context(), req.Token)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accountDTO(acct))
}

// =============================================================================
// CATALOG
// =============================================================================

// ListProducts returns the full catalog. Terminals build their session
// snapshot from this; it is advisory relative to the commit-time state.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Products.Products(r.Context())
	if err != nil {
		h.internalError(w, "list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = productDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CHECKOUT & TOP-UP
// =============================================================================

// Checkout runs the atomic purchase commit.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	lines := make([]canteen.CartLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = canteen.CartLine{ProductID: l.ProductID, Quantity: l.Quantity}
	}

	receipt, err := h.Engine.CommitWithRetry(r.Context(), req.AccountID, lines)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Log.Info("checkout committed",
		zap.String("order_id", receipt.OrderID),
		zap.String("account_id", receipt.AccountID),
		zap.String("total", receipt.Total.StringFixed(2)))
	writeJSON(w, http.StatusOK, receiptDTO(receipt))
}

// TopUp credits a student wallet.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	receipt, err := h.Engine.TopUp(r.Context(), accountID, amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Log.Info("top-up committed",
		zap.String("order_id", receipt.OrderID),
		zap.String("account_id", receipt.AccountID),
		zap.String("amount", receipt.Total.StringFixed(2)))
	writeJSON(w, http.StatusOK, receiptDTO(receipt))
}

// =============================================================================
// HISTORY & REPORTING
// =============================================================================

// AccountOrders returns an account's ledger history, newest first.
func (h *Handler) AccountOrders(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	acct, err := h.Accounts.Account(r.Context(), accountID)
	if err != nil {
		h.internalError(w, "get account", err)
		return
	}
	if acct == nil {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}

	orders, err := h.Orders.OrdersByAccount(r.Context(), accountID)
	if err != nil {
		h.internalError(w, "list orders", err)
		return
	}

	dtos := make([]OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = orderDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TopProducts returns the best sellers (default top 5).
func (h *Handler) TopProducts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 5)

	sales, err := h.Orders.TopProducts(r.Context(), limit)
	if err != nil {
		h.internalError(w, "top products", err)
		return
	}

	dtos := make([]ProductSalesDTO, len(sales))
	for i, s := range sales {
		dtos[i] = ProductSalesDTO{
			ProductID: s.ProductID,
			Name:      s.Name,
			UnitsSold: s.UnitsSold,
			Revenue:   s.Revenue.StringFixed(2),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecentOrders returns the latest activity across all accounts.
func (h *Handler) RecentOrders(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	orders, err := h.Orders.RecentOrders(r.Context(), limit)
	if err != nil {
		h.internalError(w, "recent orders", err)
		return
	}

	dtos := make([]OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = orderDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADVISOR
// =============================================================================

// SuggestMeal asks the advisor for a combination within a budget.
func (h *Handler) SuggestMeal(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	budget, err := decimal.NewFromString(req.Budget.String())
	if err != nil || !budget.IsPositive() {
		writeError(w, http.StatusBadRequest, "Invalid budget")
		return
	}

	products, err := h.Products.Products(r.Context())
	if err != nil {
		h.internalError(w, "list products", err)
		return
	}

	suggestion, err := h.Advisor.SuggestMeal(r.Context(), products, budget)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SuggestionDTO{
		Suggestion:    suggestion.Text,
		EstimatedCost: suggestion.EstimatedCost.StringFixed(2),
	})
}

// SalesInsights asks the advisor for commentary over recent orders.
func (h *Handler) SalesInsights(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.RecentOrders(r.Context(), 20)
	if err != nil {
		h.internalError(w, "recent orders", err)
		return
	}

	text, err := h.Advisor.AnalyzeSales(r.Context(), orders)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"insights": text})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeDomainError maps the enumerated domain failures to HTTP payloads.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	dto := ErrorDTO{Error: err.Error(), Retryable: canteen.IsRetryable(err)}

	var (
		ib *canteen.InsufficientBalanceError
		is *canteen.InsufficientStockError
		pu *canteen.ProductUnavailableError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ib):
		status = http.StatusPaymentRequired
		dto.Required = ib.Required.StringFixed(2)
		dto.Available = ib.Available.StringFixed(2)
	case errors.As(err, &is):
		status = http.StatusConflict
		dto.ProductID = is.ProductID
		dto.Available = strconv.Itoa(is.Available)
	case errors.As(err, &pu):
		status = http.StatusUnprocessableEntity
		dto.ProductID = pu.ProductID
	case errors.Is(err, canteen.ErrValidation):
		status = http.StatusBadRequest
	case canteen.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, canteen.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, canteen.ErrAdvisorUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, canteen.ErrLedgerWriteFailed):
		// Money/stock state and the audit trail would have diverged;
		// the unit rolled back, but this needs operator attention.
		h.Log.Error("ledger write failed", zap.Error(err))
		status = http.StatusInternalServerError
	default:
		h.Log.Error("unhandled domain error", zap.Error(err))
	}

	writeJSONError(w, status, dto)
}

func (h *Handler) internalError(w http.ResponseWriter, what string, err error) {
	h.Log.Error("internal error", zap.String("op", what), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal error")
}

// =============================================================================
// JSON HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, dto ErrorDTO) {
	writeJSON(w, status, dto)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorDTO{Error: msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
