package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"contratto/config"
	"contratto/database/repository/memory"
	"contratto/middleware"
	"contratto/models"
	"contratto/services/gateway"
	"contratto/services/order"
	"contratto/services/wallet"
	"contratto/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	buyer  = models.Identity{UserID: "buyer-1", Email: "buyer@example.com", Role: models.RoleUser}
	seller = models.Identity{UserID: "seller-1", Email: "seller@example.com", Role: models.RoleSeller}
	admin  = models.Identity{UserID: "admin-1", Role: models.RoleAdmin}
)

// testGateway accepts deliveries carrying X-Test-Signature: valid and a JSON
// body of {"id", "type", "orderId", "amount"}.
type testGateway struct{}

func (testGateway) Name() string { return "testpay" }

func (testGateway) CreateCheckout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	fee, charge, err := gateway.Charge(req.Order.Price, decimal.RequireFromString("0.05"))
	if err != nil {
		return nil, err
	}
	ref := "cs_" + req.Order.ID[:8]
	return &models.CheckoutSession{Gateway: "testpay", URL: "https://pay.test/" + ref, ProviderReference: ref, Amount: charge, PlatformFee: fee}, nil
}

func (testGateway) VerifyAndParseWebhook(headers http.Header, body []byte) (*models.CanonicalEvent, error) {
	if headers.Get("X-Test-Signature") != "valid" {
		return nil, models.ErrInvalidSignature
	}
	var payload struct {
		ID      string          `json:"id"`
		Type    string          `json:"type"`
		OrderID string          `json:"orderId"`
		Amount  decimal.Decimal `json:"amount"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.Type != string(models.EventPaymentSucceeded) {
		return nil, models.ErrUnsupportedEvent
	}
	return &models.CanonicalEvent{
		Gateway:          "testpay",
		Type:             models.EventPaymentSucceeded,
		OrderID:          payload.OrderID,
		ProviderEventID:  payload.ID,
		PaymentReference: "pi_" + payload.ID,
		Amount:           payload.Amount,
		PayloadHash:      gateway.PayloadHash(body),
		ReceivedAt:       time.Now().UTC(),
	}, nil
}

func (testGateway) Capture(ctx context.Context, paymentReference string) error { return nil }

func (testGateway) Refund(ctx context.Context, paymentReference, reason string) error { return nil }

type testServer struct {
	t      *testing.T
	router *gin.Engine
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	config.AppConfig.JWTSecret = "handler-secret"
	t.Cleanup(func() { config.AppConfig.JWTSecret = "" })

	logger := zap.NewNop()
	mem := memory.New()
	store := mem.Repositories()
	registry := gateway.NewRegistry(testGateway{})
	wallets := wallet.NewWalletService(store, "brl", 7*24*time.Hour, logger)
	orders := order.NewOrderService(store, registry, wallets, nil, order.Settings{
		FeeRate:        decimal.RequireFromString("0.05"),
		Currency:       "brl",
		AppOrigin:      "https://app.test",
		CheckoutExpiry: 24 * time.Hour,
		ReconcileAfter: time.Hour,
	}, logger)

	oh := NewOrderHandler(orders, logger)
	wh := NewWalletHandler(wallets, logger)
	hh := NewWebhookHandler(registry, orders, logger)

	r := gin.New()
	api := r.Group("/api", middleware.JWTAuthMiddleware())
	api.POST("/orders", oh.CreateOrderHandler)
	api.GET("/orders/:id", oh.GetOrderHandler)
	api.GET("/orders/:id/history", oh.GetOrderHistoryHandler)
	api.POST("/orders/:id/checkout", oh.StartCheckoutHandler)
	api.POST("/orders/:id/approve", oh.ApproveOrderHandler)
	api.POST("/orders/:id/cancel", oh.CancelOrderHandler)
	api.POST("/orders/:id/refund", oh.RefundOrderHandler)
	api.GET("/wallet", wh.GetWalletHandler)
	api.GET("/wallet/transactions", wh.ListTransactionsHandler)
	api.POST("/wallet/payouts", wh.RequestPayoutHandler)
	api.GET("/admin/wallets/:id/audit", middleware.RequireRole(models.RoleAdmin), wh.AuditWalletHandler)
	r.POST("/webhooks/testpay", hh.GatewayWebhookHandler("testpay"))
	r.GET("/health", HealthHandler)

	return &testServer{t: t, router: r, store: mem}
}

func (s *testServer) do(method, path string, as *models.Identity, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case []byte:
			buf.Write(b)
		default:
			require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		token, err := utils.GenerateToken(*as, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *testServer) createOrder(price string) string {
	s.t.Helper()
	w, body := s.do(http.MethodPost, "/api/orders", &buyer, map[string]any{
		"sellerId":  seller.UserID,
		"serviceId": "svc-logo",
		"price":     price,
	}, nil)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return body["order"].(map[string]any)["id"].(string)
}

func (s *testServer) paymentWebhook(eventID, orderID, amount string) (*httptest.ResponseRecorder, map[string]any) {
	payload := []byte(`{"id":"` + eventID + `","type":"PaymentSucceeded","orderId":"` + orderID + `","amount":"` + amount + `"}`)
	return s.do(http.MethodPost, "/webhooks/testpay", nil, payload, map[string]string{"X-Test-Signature": "valid"})
}

func decimalField(t *testing.T, m map[string]any, key string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(m[key].(string))
	require.NoError(t, err)
	return d
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	orderID := s.createOrder("100.00")

	w, body := s.do(http.MethodPost, "/api/orders/"+orderID+"/checkout", &buyer, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, body["checkoutUrl"], "https://pay.test/")
	assert.True(t, decimalField(t, body, "amount").Equal(decimal.RequireFromString("105")))

	w, body = s.paymentWebhook("evt_1", orderID, "105.00")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "processed", body["outcome"])

	w, body = s.do(http.MethodGet, "/api/orders/"+orderID, &seller, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(models.OrderActive), body["order"].(map[string]any)["status"])

	w, _ = s.do(http.MethodPost, "/api/orders/"+orderID+"/approve", &seller, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(http.MethodPost, "/api/orders/"+orderID+"/approve", &buyer, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(models.OrderCompleted), body["order"].(map[string]any)["status"])

	w, body = s.do(http.MethodGet, "/api/wallet", &seller, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	wal := body["wallet"].(map[string]any)
	assert.True(t, decimalField(t, wal, "pendingBalance").Equal(decimal.RequireFromString("100")))
	assert.True(t, decimalField(t, wal, "availableBalance").IsZero())

	w, body = s.do(http.MethodGet, "/api/orders/"+orderID+"/history", &buyer, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["history"], 5)

	w, body = s.do(http.MethodGet, "/api/wallet/transactions?limit=10", &seller, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["transactions"], 1)
}

func TestWebhookResponses(t *testing.T) {
	s := newTestServer(t)
	orderID := s.createOrder("40.00")
	w, _ := s.do(http.MethodPost, "/api/orders/"+orderID+"/checkout", &buyer, map[string]string{"gateway": "testpay"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	payload := []byte(`{"id":"evt_bad","type":"PaymentSucceeded","orderId":"` + orderID + `","amount":"42.00"}`)
	w, _ = s.do(http.MethodPost, "/webhooks/testpay", nil, payload, map[string]string{"X-Test-Signature": "forged"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, recorded := s.store.Event("testpay", "evt_bad")
	assert.False(t, recorded)

	w, body := s.do(http.MethodPost, "/webhooks/testpay", nil, []byte(`{"id":"evt_x","type":"charge.updated"}`), map[string]string{"X-Test-Signature": "valid"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unsupported", body["outcome"])

	w, body = s.paymentWebhook("evt_pay", orderID, "42.00")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "processed", body["outcome"])

	w, body = s.paymentWebhook("evt_pay", orderID, "42.00")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", body["outcome"])

	w, body = s.paymentWebhook("evt_unknown", "missing-order", "42.00")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ignored", body["outcome"])
}

func TestOrderEndpointsRequireAuth(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(http.MethodPost, "/api/orders", nil, map[string]string{"sellerId": "x", "serviceId": "y"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	orderID := s.createOrder("10.00")
	stranger := models.Identity{UserID: "stranger", Role: models.RoleUser}
	w, _ = s.do(http.MethodGet, "/api/orders/"+orderID, &stranger, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodGet, "/api/orders/does-not-exist", &buyer, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateOrderValidation(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(http.MethodPost, "/api/orders", &buyer, []byte(`{"serviceId":"svc"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/api/orders", &buyer, map[string]any{"sellerId": seller.UserID, "serviceId": "svc", "price": "10.005"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelAndApproveConflict(t *testing.T) {
	s := newTestServer(t)
	orderID := s.createOrder("25.00")

	w, body := s.do(http.MethodPost, "/api/orders/"+orderID+"/cancel", &seller, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(models.OrderCancelled), body["order"].(map[string]any)["status"])

	w, _ = s.do(http.MethodPost, "/api/orders/"+orderID+"/approve", &buyer, nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPayoutEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(http.MethodPost, "/api/wallet/payouts", &seller, map[string]string{"amount": "80.00"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = s.do(http.MethodPost, "/api/wallet/payouts", &seller, map[string]string{"amount": "-5"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodGet, "/api/wallet/transactions?limit=abc", &seller, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(http.MethodGet, "/api/wallet", &seller, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	walletID := body["wallet"].(map[string]any)["id"].(string)

	w, _ = s.do(http.MethodGet, "/api/admin/wallets/"+walletID+"/audit", &seller, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(http.MethodGet, "/api/admin/wallets/"+walletID+"/audit", &admin, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["balanced"])
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)
	utils.RunHealthChecks(context.Background(), map[string]utils.HealthCheck{
		"store": func(ctx context.Context) error { return nil },
	})

	w, body := s.do(http.MethodGet, "/health", nil, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["status"].(map[string]any)["healthy"])
}
