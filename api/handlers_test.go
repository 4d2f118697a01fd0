package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/canteen-engine/advisor"
	"github.com/warp/canteen-engine/api"
	"github.com/warp/canteen-engine/canteen"
	"github.com/warp/canteen-engine/canteen/store"
	"github.com/warp/canteen-engine/checkout"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	mem := store.NewMemory()

	handler := &api.Handler{
		Accounts: mem,
		Products: mem,
		Orders:   mem,
		Engine:   checkout.New(mem),
		Resolver: canteen.NewResolver(mem),
		Advisor:  advisor.New("http://localhost:1", ""),
		Seeder:   mem,
		Log:      zap.NewNop(),
	}

	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)

	// Load the demo dataset through the same endpoint clients use.
	resp, err := http.Post(srv.URL+"/api/seed", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestAPI_ResolveIdentity(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/identity/resolve", map[string]string{"token": "2024001"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stu1", body["id"])
	assert.Equal(t, "Alice Johnson", body["name"])
	assert.Equal(t, "50.00", body["balance"])
}

func TestAPI_ResolveIdentity_Failures(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/identity/resolve", map[string]string{"token": "0000000"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := postJSON(t, srv.URL+"/api/identity/resolve", map[string]string{"token": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

// =============================================================================
// CATALOG
// =============================================================================

func TestAPI_ListProducts(t *testing.T) {
	srv := newTestServer(t)

	var products []map[string]any
	resp := getJSON(t, srv.URL+"/api/products", &products)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, products, 5)
	assert.Equal(t, "p1", products[0]["id"])
	assert.Equal(t, "55.00", products[0]["price"])
}

// =============================================================================
// CHECKOUT
// =============================================================================

func TestAPI_Checkout_Success(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/checkout", map[string]any{
		"account_id": "stu1",
		"lines": []map[string]any{
			{"product_id": "p3", "quantity": 1},
			{"product_id": "p4", "quantity": 1},
		},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["order_id"])
	assert.Equal(t, "purchase", body["kind"])
	assert.Equal(t, "35.00", body["total"])
	assert.Equal(t, "15.00", body["new_balance"])
}

func TestAPI_Checkout_InsufficientBalance(t *testing.T) {
	srv := newTestServer(t)

	// Bob has 15.50; the sandwich costs 55.00
	resp, body := postJSON(t, srv.URL+"/api/checkout", map[string]any{
		"account_id": "stu2",
		"lines":      []map[string]any{{"product_id": "p1", "quantity": 1}},
	})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "55.00", body["required"])
	assert.Equal(t, "15.50", body["available"])
}

func TestAPI_Checkout_InsufficientStock(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/checkout", map[string]any{
		"account_id": "stu1",
		"lines":      []map[string]any{{"product_id": "p2", "quantity": 99}},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "p2", body["product_id"])
	assert.Equal(t, "15", body["available"])
}

func TestAPI_Checkout_Validation(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/checkout", map[string]any{
		"account_id": "stu1",
		"lines":      []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Checkout_UnknownAccount(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/checkout", map[string]any{
		"account_id": "ghost",
		"lines":      []map[string]any{{"product_id": "p3", "quantity": 1}},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// TOP-UP & HISTORY
// =============================================================================

func TestAPI_TopUpAndHistory(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/accounts/stu2/topup", map[string]any{"amount": json.Number("20.00")})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "topup", body["kind"])
	assert.Equal(t, "35.50", body["new_balance"])

	var orders []map[string]any
	resp2 := getJSON(t, srv.URL+"/api/accounts/stu2/orders", &orders)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	require.Len(t, orders, 1)
	assert.Equal(t, "topup", orders[0]["kind"])
	assert.Equal(t, "20.00", orders[0]["total"])
}

func TestAPI_TopUp_InvalidAmount(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/accounts/stu1/topup", map[string]any{"amount": json.Number("-5")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_AccountOrders_UnknownAccount(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/accounts/ghost/orders")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// REPORTING
// =============================================================================

func TestAPI_Reports(t *testing.T) {
	srv := newTestServer(t)

	// Two purchases feed the aggregates
	resp, _ := postJSON(t, srv.URL+"/api/checkout", map[string]any{
		"account_id": "stu1",
		"lines":      []map[string]any{{"product_id": "p3", "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = postJSON(t, srv.URL+"/api/checkout", map[string]any{
		"account_id": "stu2",
		"lines":      []map[string]any{{"product_id": "p4", "quantity": 1}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var top []map[string]any
	getJSON(t, srv.URL+"/api/reports/top-products", &top)
	require.Len(t, top, 2)
	assert.Equal(t, "p3", top[0]["product_id"])
	assert.Equal(t, float64(2), top[0]["units_sold"])
	assert.Equal(t, "40.00", top[0]["revenue"])

	var recent []map[string]any
	getJSON(t, srv.URL+"/api/reports/recent-orders?limit=1", &recent)
	require.Len(t, recent, 1)
	assert.Equal(t, "stu2", recent[0]["account_id"], "newest first")
}

// =============================================================================
// ADVISOR DEGRADATION
// =============================================================================

func TestAPI_AdvisorUnavailable(t *testing.T) {
	// An unconfigured advisor degrades to 503; it never affects checkout.
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/advisor/suggest", map[string]any{"budget": json.Number("40")})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	resp2, err := http.Get(srv.URL + "/api/advisor/insights")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}
