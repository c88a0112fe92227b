package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yab112/art-store-backend-sub000/internal/clients"
	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
	"github.com/Yab112/art-store-backend-sub000/internal/repository"
	"github.com/Yab112/art-store-backend-sub000/internal/service"
)

type stubProvider struct {
	name   string
	amount string
}

func (p *stubProvider) Name() string {
	if p.name == "" {
		return clients.ProviderChapa
	}
	return p.name
}

func (p *stubProvider) MaxReferenceLength() int { return 50 }

func (p *stubProvider) Initialize(_ context.Context, req *models.InitializeRequest) (*models.InitializeResult, error) {
	return &models.InitializeResult{CheckoutURL: "https://checkout.test/" + req.Reference, ProviderReference: req.Reference}, nil
}

func (p *stubProvider) Verify(_ context.Context, ref string) (*models.VerificationResult, error) {
	return &models.VerificationResult{
		Status:              models.VerificationSuccess,
		Amount:              decimal.RequireFromString(p.amount),
		Currency:            "ETB",
		NormalizedReference: ref,
		ProviderReference:   ref,
		ProviderStatus:      "success",
	}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

type testAPI struct {
	router *gin.Engine
	store  *repository.MemoryStore
}

func newTestAPI(t *testing.T, db Pinger) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Chapa: config.ChapaConfig{Currency: "ETB"},
		Settings: config.SettingsDefaults{
			CommissionRate:   decimal.RequireFromString("0.10"),
			MinWithdrawal:    decimal.NewFromInt(10),
			OrderExpireAfter: 24 * time.Hour,
		},
		Withdrawal: config.WithdrawalConfig{Channel: service.PayoutChannelBank, Currency: "ETB"},
	}

	store := repository.NewMemoryStore()
	registry := clients.NewRegistry(
		&stubProvider{amount: "100"},
		&stubProvider{name: clients.ProviderPayPal, amount: "100"},
	)
	settings := service.NewSettingsService(store, nil, cfg.Settings)
	orders := service.NewOrderService(store, store, store, store, nil, settings, registry, nil, cfg)
	ledger := service.NewLedgerService(store, store, store)
	h := NewHandlers(
		orders,
		service.NewPaymentService(store, orders, registry),
		ledger,
		service.NewWithdrawalService(store, store, store, ledger, settings, nil, cfg.Withdrawal),
		settings,
		db,
		cfg,
	)

	store.AddSeller(&models.SellerAccount{ID: "seller-a", Email: "a@example.com", EmailVerified: true})
	store.AddItem(&models.Item{
		ID: "item-a", SellerID: "seller-a", Title: "Harbour at dusk", Price: decimal.NewFromInt(100),
		Currency: "ETB", Status: models.ItemStatusApproved, PayoutAccount: "1000200030",
	})

	r := gin.New()
	r.Use(RequestID())
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Metrics)
	r.GET("/api/v1/payments/:provider/callback", h.PaymentCallback)
	r.POST("/api/v1/payments/:provider/callback", h.PaymentCallback)

	authed := r.Group("/api/v1", RequireIdentity())
	authed.POST("/orders", h.CreateOrder)
	authed.GET("/orders", h.ListOrders)
	authed.GET("/orders/:id", h.GetOrder)
	authed.POST("/orders/:id/payment", h.InitializePayment)
	authed.GET("/earnings", h.GetEarnings)
	authed.POST("/withdrawals", h.RequestWithdrawal)
	authed.GET("/withdrawals/:id", h.GetWithdrawal)

	admin := authed.Group("/admin", RequireAdmin())
	admin.GET("/settings", h.GetSettings)
	admin.PATCH("/settings", h.UpdateSettings)
	admin.PATCH("/withdrawals/:id/status", h.UpdateWithdrawalStatus)

	return &testAPI{router: r, store: store}
}

func (a *testAPI) do(t *testing.T, method, path, userID, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
		req.Header.Set(HeaderUserEmail, userID+"@example.com")
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

const orderBody = `{"items":[{"item_id":"item-a","quantity":1}],
	"shipping_info":{"full_name":"Abebe Kebede","line1":"Bole Road 12","city":"Addis Ababa","country":"ET"}}`

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	h.Health(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, serviceName, resp["service"])
}

func TestLive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	h.Live(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReady(t *testing.T) {
	api := newTestAPI(t, stubPinger{})
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/ready", "", "", "").Code)

	api = newTestAPI(t, stubPinger{err: errors.New("connection refused")})
	w := api.do(t, http.MethodGet, "/ready", "", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_ready", decode(t, w)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)
	w := api.do(t, http.MethodGet, "/metrics", "", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"Validation", errors.NewValidationError("items", "at least one item is required"), http.StatusBadRequest},
		{"Business rule", errors.NewBusinessRuleError(errors.CodeSelfPurchase, "own item"), http.StatusUnprocessableEntity},
		{"Forbidden", errors.NewBusinessRuleError(errors.CodeForbidden, "not yours"), http.StatusForbidden},
		{"Not found", errors.NewNotFoundError("order", "o-1"), http.StatusNotFound},
		{"Provider", errors.NewProviderError("chapa", errors.New("timeout")), http.StatusBadGateway},
		{"Partial settlement", errors.NewPartialSettlementError("o-1", "platform_earning", errors.New("db")), http.StatusInternalServerError},
		{"Untyped", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			handleError(c, tt.err)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHandleError_BodyCarriesKindAndCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	handleError(c, errors.NewBusinessRuleError(errors.CodeSelfPurchase, "own item").WithDetail("item_ids", "item-a"))

	resp := decode(t, w)
	assert.Equal(t, "business_rule", resp["kind"])
	assert.Equal(t, "self_purchase", resp["code"])
	assert.Equal(t, map[string]interface{}{"item_ids": "item-a"}, resp["details"])
}

func TestRequireIdentity(t *testing.T) {
	api := newTestAPI(t, nil)

	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/api/v1/orders", "", "", "").Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/v1/admin/settings", "buyer-1", "user", "").Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/admin/settings", "admin-1", "ADMIN", "").Code)
}

func TestOrderCheckoutFlow(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(t, http.MethodPost, "/api/v1/orders", "buyer-1", "", orderBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	orderID := created["order_id"].(string)
	reference := created["reference"].(string)
	assert.Equal(t, "PENDING", created["status"])

	w = api.do(t, http.MethodGet, "/api/v1/orders/"+orderID, "someone-else", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/payment", "buyer-1", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(decode(t, w)["checkout_url"].(string), "https://checkout.test/"))

	w = api.do(t, http.MethodPost, "/api/v1/payments/chapa/callback", "", "", `{"tx_ref":"`+reference+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "PAID", decode(t, w)["status"])

	// Return-URL redirect for the same payment is a no-op.
	w = api.do(t, http.MethodGet, "/api/v1/payments/chapa/callback?reference="+reference, "", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, api.store.PlatformEarningCount())

	w = api.do(t, http.MethodGet, "/api/v1/earnings", "seller-a", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "90", decode(t, w)["lifetime_earnings"])

	w = api.do(t, http.MethodGet, "/api/v1/orders?limit=5", "buyer-1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

func TestCreateOrder_Rejections(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(t, http.MethodPost, "/api/v1/orders", "buyer-1", "", `{"items":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/orders", "seller-a", "", orderBody)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "self_purchase", decode(t, w)["code"])

	w = api.do(t, http.MethodPost, "/api/v1/orders", "buyer-1", "", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "items", decode(t, w)["field"])
}

func TestPaymentCallback_MissingReference(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(t, http.MethodGet, "/api/v1/payments/chapa/callback", "", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/payments/chapa/callback?tx_ref=unknown-ref", "", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentCallback_PayPalWebhook(t *testing.T) {
	api := newTestAPI(t, nil)

	body := strings.Replace(orderBody, `"items"`, `"payment_method":"paypal","items"`, 1)
	w := api.do(t, http.MethodPost, "/api/v1/orders", "buyer-1", "", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	reference := created["reference"].(string)
	assert.Equal(t, "paypal", created["provider"])

	w = api.do(t, http.MethodPost, "/api/v1/payments/paypal/callback", "", "",
		`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1"}}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "ignored", decode(t, w)["status"])

	w = api.do(t, http.MethodPost, "/api/v1/payments/paypal/callback", "", "", `{
		"id": "WH-1",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": {"id": "5O190127TN364715T", "purchase_units": [{"reference_id": "`+reference+`"}]}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, created["order_id"], resp["order_id"])
	assert.Equal(t, "PAID", resp["status"])
	assert.Equal(t, 1, api.store.PlatformEarningCount())
}

func TestWithdrawalFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	api.store.AddSeller(&models.SellerAccount{
		ID: "seller-a", Email: "a@example.com", EmailVerified: true,
		LifetimeEarnings: decimal.NewFromInt(150),
	})

	w := api.do(t, http.MethodPost, "/api/v1/withdrawals", "seller-a", "", `{"amount":"200","destination":{"account":"1000200030","account_name":"A"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "insufficient_balance", decode(t, w)["code"])

	w = api.do(t, http.MethodPost, "/api/v1/withdrawals", "seller-a", "", `{"amount":"50","destination":{"account":"1000200030","account_name":"A"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = api.do(t, http.MethodGet, "/api/v1/withdrawals/"+id, "seller-b", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPatch, "/api/v1/admin/withdrawals/"+id+"/status", "admin-1", "admin", `{"status":"REFUNDED"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid_transition", decode(t, w)["code"])

	w = api.do(t, http.MethodPatch, "/api/v1/admin/withdrawals/"+id+"/status", "admin-1", "admin", `{"status":"COMPLETED"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "COMPLETED", decode(t, w)["status"])
}

func TestUpdateSettings(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(t, http.MethodPatch, "/api/v1/admin/settings", "admin-1", "admin", `{"commission_rate":"1.5"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPatch, "/api/v1/admin/settings", "admin-1", "admin", `{"commission_rate":"0.2","order_auto_cancel_after_seconds":7200}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "0.2", resp["commission_rate"])
	assert.EqualValues(t, 7200, resp["order_auto_cancel_after_seconds"])
	assert.EqualValues(t, 86400, resp["order_expire_after_seconds"])
}
