package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirledger/backend/internal/cache"
	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/service"
	"kasirledger/backend/internal/store/memory"
)

type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

// newTestAPI wires the real service and auth manager over a seeded memory
// store so handler tests run the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier123")

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NewMemoryCatalogCache(), nil, service.Options{
		ReferenceCurrency: "USD",
		LocalCurrency:     "VES",
	})
	auth := NewAuthManager(context.Background(), "test-secret-key", time.Hour, repo)
	return New(svc, auth, Options{AllowedOrigins: []string{"http://localhost:5173"}, MetricsEnabled: true})
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, username, password string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp domain.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func stockOf(t *testing.T, h http.Handler, token, productID string) decimal.Decimal {
	t.Helper()
	rec := doJSON(t, h, http.MethodGet, "/api/v1/products/"+productID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detail domain.ProductDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	return detail.Product.Stock
}

func TestHandleHealth(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
}

func TestMetricsEndpointExposed(t *testing.T) {
	h := newTestAPI(t).Handler()
	rec := doJSON(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginFailureReturns401(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRejectCashier(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")
	admin := login(t, h, "admin", "admin123")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/users", cashier, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/products", cashier, domain.ProductCreateRequest{
		SKU: "TEA-01", Name: "Tea", BaseUnit: "box", SalePrice: decimal.NewFromInt(2),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/users", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateUserThenLogin(t *testing.T) {
	h := newTestAPI(t).Handler()
	admin := login(t, h, "admin", "admin123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/users", admin, domain.UserCreateRequest{
		Username: "night.shift", Password: "secret99",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	token := login(t, h, "night.shift", "secret99")
	rec = doJSON(t, h, http.MethodGet, "/api/v1/products", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownFieldsRejected(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sales", cashier, map[string]any{
		"lines":   []any{},
		"coupons": "FREE",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
}

func TestCreateSaleDeductsStock(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sales", cashier, domain.SaleRequest{
		Lines: []domain.SaleLineRequest{{ProductID: "prd-coffee", Quantity: decimal.NewFromInt(2)}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp domain.SaleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.SaleStatusPaid, resp.Status)
	assert.True(t, resp.Sale.Total.Equal(decimal.NewFromInt(11)), "total %s", resp.Sale.Total)
	assert.True(t, stockOf(t, h, cashier, "prd-coffee").Equal(decimal.NewFromInt(38)))

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales/"+resp.SaleID, cashier, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestComboSaleDeductsComponents(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sales", cashier, domain.SaleRequest{
		Lines: []domain.SaleLineRequest{{ProductID: "prd-breakfast", Quantity: decimal.NewFromInt(3)}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.True(t, stockOf(t, h, cashier, "prd-coffee").Equal(decimal.NewFromInt(37)))
	assert.True(t, stockOf(t, h, cashier, "prd-milk").Equal(decimal.NewFromInt(114)))
}

func TestInsufficientStockReturns422WithDetails(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sales", cashier, domain.SaleRequest{
		Lines: []domain.SaleLineRequest{{ProductID: "prd-coffee", Quantity: decimal.NewFromInt(1000)}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, "insufficient_stock", body.Code)
	assert.Equal(t, "prd-coffee", body.Details["product_id"])
	assert.Contains(t, body.Details, "available")
	assert.True(t, stockOf(t, h, cashier, "prd-coffee").Equal(decimal.NewFromInt(40)))
}

func TestUnknownProductReturns404(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/products/prd-missing", cashier, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product_not_found", decodeError(t, rec).Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/barcodes/0000000", cashier, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBarcodeResolvesPresentation(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/barcodes/7591234000012", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var match domain.BarcodeMatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &match))
	assert.Equal(t, "prd-milk", match.Product.ID)
	require.NotNil(t, match.Unit)
	assert.Equal(t, "unit-milk-12", match.Unit.ID)
}

func TestCashSessionLifecycle(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cash-sessions", cashier, domain.CashSessionOpenRequest{
		InitialAmounts: map[string]decimal.Decimal{"USD": decimal.NewFromInt(100)},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session domain.CashSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = doJSON(t, h, http.MethodPost, "/api/v1/cash-sessions", cashier, domain.CashSessionOpenRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_already_open", decodeError(t, rec).Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/sales", cashier, domain.SaleRequest{
		Lines: []domain.SaleLineRequest{{ProductID: "prd-coffee", Quantity: decimal.NewFromInt(2)}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/v1/cash-movements", cashier, domain.CashMovementRequest{
		Amount: decimal.NewFromInt(5), Type: domain.CashMovementType("expense"), Description: "ice",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/v1/cash-sessions/active", cashier, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/cash-sessions/"+session.ID+"/close", cashier, domain.CashSessionCloseRequest{
		ReportedAmounts: map[string]decimal.Decimal{"USD": decimal.NewFromInt(104)},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var closed domain.CashSessionCloseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closed))
	require.Len(t, closed.Currencies, 1)
	usd := closed.Currencies[0]
	assert.Equal(t, "USD", usd.Currency)
	assert.True(t, usd.Expected.Equal(decimal.NewFromInt(106)), "expected %s", usd.Expected)
	assert.True(t, usd.Difference.Equal(decimal.NewFromInt(-2)), "difference %s", usd.Difference)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/cash-sessions/"+session.ID+"/close", cashier, domain.CashSessionCloseRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/cash-sessions/active", cashier, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_active_session", decodeError(t, rec).Code)
}

func TestPurchaseOrderReceiveOverHTTP(t *testing.T) {
	h := newTestAPI(t).Handler()
	admin := login(t, h, "admin", "admin123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/purchase-orders", admin, domain.PurchaseOrderCreateRequest{
		Supplier: "Andes Roasters",
		Lines: []domain.PurchaseOrderLineRequest{
			{ProductID: "prd-coffee", Quantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(4)},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var po domain.PurchaseOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &po))

	rec = doJSON(t, h, http.MethodPost, "/api/v1/purchase-orders/"+po.ID+"/receive", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, stockOf(t, h, admin, "prd-coffee").Equal(decimal.NewFromInt(50)))

	rec = doJSON(t, h, http.MethodPost, "/api/v1/purchase-orders/"+po.ID+"/cancel", admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cannot_cancel_received_order", decodeError(t, rec).Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/purchase-orders?status=received", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Orders []domain.PurchaseOrder `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Orders, 1)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/purchase-orders?status=lost", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStockAtRejectsBadTimestamp(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/products/prd-coffee/stock-at?at=yesterday", cashier, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/products/prd-coffee/stock-at", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp domain.StockAtResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(40)), "balance %s", resp.Balance)
}
