package order

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kevin07696/saju-payments/internal/adapters/memory"
	"github.com/kevin07696/saju-payments/internal/auth"
	"github.com/kevin07696/saju-payments/internal/domain"
	"github.com/kevin07696/saju-payments/internal/domain/ports"
	"github.com/kevin07696/saju-payments/internal/middleware"
	orderservice "github.com/kevin07696/saju-payments/internal/services/order"
	serviceports "github.com/kevin07696/saju-payments/internal/services/ports"
	"github.com/kevin07696/saju-payments/internal/services/reconciliation"
	"github.com/kevin07696/saju-payments/internal/services/refund"
	"github.com/kevin07696/saju-payments/pkg/resilience"
	"github.com/kevin07696/saju-payments/test/mocks"
)

type testServer struct {
	mux      *http.ServeMux
	store    *memory.OrderStore
	gateway  *mocks.MockGatewayClient
	notifier *mocks.MockNotificationDispatcher
	jwt      *auth.JWTManager
	orders   *recordingOrders
	logs     *observer.ObservedLogs
}

// recordingOrders captures the stale pending request handed to the service
type recordingOrders struct {
	serviceports.OrderService
	lastPending *serviceports.ListStalePendingRequest
}

func (r *recordingOrders) ListStalePending(ctx context.Context, req *serviceports.ListStalePendingRequest) ([]*domain.PaymentOrder, error) {
	r.lastPending = req
	return r.OrderService.ListStalePending(ctx, req)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		mux:      http.NewServeMux(),
		store:    memory.NewOrderStore(),
		gateway:  mocks.NewMockGatewayClient(),
		notifier: mocks.NewMockNotificationDispatcher(),
	}
	logger := mocks.NewMockLogger()
	timeouts := resilience.TestTimeoutConfig()

	ts.orders = &recordingOrders{OrderService: orderservice.NewService(ts.store, ts.gateway,
		orderservice.Config{Prices: map[domain.ProductType]int64{domain.ProductTypeBasic: 9900}}, logger)}
	recon := reconciliation.NewService(ts.store, ts.gateway, ts.notifier, timeouts,
		reconciliation.Config{ResultURLBase: "https://saju.example.com/results"}, logger)
	refunds := refund.NewService(ts.store, ts.gateway, timeouts, logger)

	jm, err := auth.NewJWTManager([]byte("0123456789abcdef0123456789abcdef"), "saju-payments", time.Hour)
	require.NoError(t, err)
	ts.jwt = jm

	admin := middleware.NewAdminAuth(jm, zaptest.NewLogger(t))
	core, logs := observer.New(zapcore.DebugLevel)
	ts.logs = logs
	h := NewHandler(ts.orders, recon, refunds, timeouts, zap.New(core))
	h.RegisterRoutes(ts.mux, nil, admin.Middleware)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) adminHeader(t *testing.T) map[string]string {
	t.Helper()
	token, err := ts.jwt.GenerateToken("admin-1")
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (ts *testServer) seedOrder(t *testing.T, merchantUID string, amount int64) *domain.PaymentOrder {
	t.Helper()
	order, err := ts.store.Create(context.Background(), domain.NewOrder{
		MerchantUID: merchantUID,
		UserID:      7,
		Amount:      amount,
		ProductType: domain.ProductTypeBasic,
		UserName:    "tester",
		Phone:       "010-0000-0000",
	})
	require.NoError(t, err)
	return order
}

func (ts *testServer) status(t *testing.T, merchantUID string) domain.OrderStatus {
	t.Helper()
	order, err := ts.store.GetByMerchantUID(context.Background(), merchantUID)
	require.NoError(t, err)
	return order.Status
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, rec).Error.Code
}

func TestCreateOrder(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/orders", map[string]any{
		"userId": 7, "amount": 9900, "productType": "basic", "userName": "tester",
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[createOrderResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.MerchantUID, "saju_"))
	assert.True(t, strings.HasSuffix(resp.MerchantUID, "_7"))
	assert.Equal(t, resp.MerchantUID, resp.GatewayPreparationRef)
	assert.Equal(t, int64(9900), resp.Amount)
	assert.Equal(t, domain.OrderStatusPending, ts.status(t, resp.MerchantUID))
}

func TestCreateOrder_ValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
		code string
	}{
		{"malformed_json", "{not json", "VALIDATION_FAILED"},
		{"empty_body", "", "VALIDATION_FAILED"},
		{"zero_user", map[string]any{"userId": 0, "amount": 9900, "productType": "basic"}, "VALIDATION_FAILED"},
		{"unknown_product", map[string]any{"userId": 7, "amount": 9900, "productType": "deluxe"}, "VALIDATION_FAILED"},
		{"price_mismatch", map[string]any{"userId": 7, "amount": 100, "productType": "basic"}, "VALIDATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/orders", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestGetOrder(t *testing.T) {
	ts := newTestServer(t)
	ts.seedOrder(t, "saju_1000_7", 9900)

	rec := ts.do(t, http.MethodGet, "/orders/saju_1000_7", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[orderView](t, rec)
	assert.Equal(t, "pending", view.Status)
	assert.Equal(t, int64(9900), view.Amount)
	assert.NotContains(t, rec.Body.String(), "010-0000-0000")

	rec = ts.do(t, http.MethodGet, "/orders/saju_missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", errorCode(t, rec))
}

func TestVerify_PaidThenDuplicate(t *testing.T) {
	ts := newTestServer(t)
	ts.seedOrder(t, "saju_1000_7", 9900)
	ts.gateway.SetPaid("imp_1", "saju_1000_7", 9900)

	body := map[string]string{"gatewayRef": "imp_1", "merchantUid": "saju_1000_7"}

	rec := ts.do(t, http.MethodPost, "/orders/verify", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[verifyResponse](t, rec)
	assert.Equal(t, "paid", first.Status)
	assert.False(t, first.Duplicate)
	require.NotNil(t, first.GatewayTransactionID)
	assert.Equal(t, "imp_1", *first.GatewayTransactionID)

	rec = ts.do(t, http.MethodPost, "/orders/verify", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[verifyResponse](t, rec).Duplicate)

	assert.Len(t, ts.notifier.Sent(), 1)
}

func TestVerify_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, ts *testServer)
		body   map[string]string
		status int
		code   string
	}{
		{
			name: "amount_mismatch",
			setup: func(t *testing.T, ts *testServer) {
				ts.seedOrder(t, "saju_1000_7", 9900)
				ts.gateway.SetPaid("imp_1", "saju_1000_7", 12000)
			},
			body:   map[string]string{"gatewayRef": "imp_1", "merchantUid": "saju_1000_7"},
			status: http.StatusBadRequest,
			code:   "ORDER_AMOUNT_MISMATCH",
		},
		{
			name:   "missing_fields",
			setup:  func(t *testing.T, ts *testServer) {},
			body:   map[string]string{"merchantUid": "saju_1000_7"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_MISSING_FIELD",
		},
		{
			name:   "unknown_order",
			setup:  func(t *testing.T, ts *testServer) {},
			body:   map[string]string{"gatewayRef": "imp_1", "merchantUid": "saju_missing"},
			status: http.StatusNotFound,
			code:   "ORDER_NOT_FOUND",
		},
		{
			name: "gateway_unavailable",
			setup: func(t *testing.T, ts *testServer) {
				ts.seedOrder(t, "saju_1000_7", 9900)
				ts.gateway.SetFetchError(domain.WrapError(domain.ErrorCodeGatewayUnavailable, "timeout", nil))
			},
			body:   map[string]string{"gatewayRef": "imp_1", "merchantUid": "saju_1000_7"},
			status: http.StatusServiceUnavailable,
			code:   "GATEWAY_UNAVAILABLE",
		},
		{
			name: "already_cancelled",
			setup: func(t *testing.T, ts *testServer) {
				ts.seedOrder(t, "saju_1000_7", 9900)
				_, err := ts.store.CompareAndTransition(context.Background(), "saju_1000_7",
					domain.OrderStatusPending, domain.OrderStatusCancelled, domain.TransitionFields{})
				require.NoError(t, err)
				ts.gateway.SetPaid("imp_1", "saju_1000_7", 9900)
			},
			body:   map[string]string{"gatewayRef": "imp_1", "merchantUid": "saju_1000_7"},
			status: http.StatusConflict,
			code:   "ORDER_STATE_CONFLICT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			tt.setup(t, ts)

			rec := ts.do(t, http.MethodPost, "/orders/verify", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestWebhook_AlwaysAcknowledges(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, ts *testServer)
		body  any
	}{
		{"malformed_json", func(t *testing.T, ts *testServer) {}, "{oops"},
		{"missing_status", func(t *testing.T, ts *testServer) {}, map[string]string{"imp_uid": "imp_1", "merchant_uid": "saju_1000_7"}},
		{"unknown_order", func(t *testing.T, ts *testServer) {}, map[string]string{"imp_uid": "imp_1", "merchant_uid": "saju_missing", "status": "paid"}},
		{
			name: "amount_mismatch",
			setup: func(t *testing.T, ts *testServer) {
				ts.seedOrder(t, "saju_1000_7", 9900)
				ts.gateway.SetPaid("imp_1", "saju_1000_7", 12000)
			},
			body: map[string]string{"imp_uid": "imp_1", "merchant_uid": "saju_1000_7", "status": "paid"},
		},
		{
			name: "gateway_down",
			setup: func(t *testing.T, ts *testServer) {
				ts.seedOrder(t, "saju_1000_7", 9900)
				ts.gateway.SetFetchError(domain.ErrGatewayUnavailable)
			},
			body: map[string]string{"imp_uid": "imp_1", "merchant_uid": "saju_1000_7", "status": "paid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			tt.setup(t, ts)

			rec := ts.do(t, http.MethodPost, "/orders/webhook", tt.body, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, decode[webhookAck](t, rec).Received)
			assert.Empty(t, ts.notifier.Sent())
		})
	}
}

func TestWebhook_ReportedStatusIsNotTrusted(t *testing.T) {
	ts := newTestServer(t)
	ts.seedOrder(t, "saju_1000_7", 9900)
	ts.gateway.SetTransaction(&ports.GatewayTransaction{
		GatewayRef:  "imp_1",
		MerchantUID: "saju_1000_7",
		Status:      domain.GatewayStatusReady,
		Amount:      9900,
	})

	rec := ts.do(t, http.MethodPost, "/orders/webhook",
		map[string]string{"imp_uid": "imp_1", "merchant_uid": "saju_1000_7", "status": "paid"}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OrderStatusPending, ts.status(t, "saju_1000_7"))
}

func TestWebhook_ScenarioWithRedeliveryAndForgedVerify(t *testing.T) {
	ts := newTestServer(t)
	ts.seedOrder(t, "saju_1000_7", 9900)
	ts.gateway.SetPaid("imp_real", "saju_1000_7", 9900)

	payload := map[string]string{"imp_uid": "imp_real", "merchant_uid": "saju_1000_7", "status": "paid"}

	rec := ts.do(t, http.MethodPost, "/orders/webhook", payload, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OrderStatusPaid, ts.status(t, "saju_1000_7"))

	rec = ts.do(t, http.MethodPost, "/orders/webhook", payload, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ts.notifier.Sent(), 1)

	ts.gateway.SetPaid("imp_forged", "saju_1000_7", 12000)
	rec = ts.do(t, http.MethodPost, "/orders/verify",
		map[string]string{"gatewayRef": "imp_forged", "merchantUid": "saju_1000_7"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	order, err := ts.store.GetByMerchantUID(context.Background(), "saju_1000_7")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
	assert.Equal(t, "imp_real", order.GetGatewayTransactionID())
	assert.Len(t, ts.notifier.Sent(), 1)
}

func TestWebhook_FormEncodedAndCamelCase(t *testing.T) {
	ts := newTestServer(t)
	ts.seedOrder(t, "saju_1000_7", 9900)
	ts.seedOrder(t, "saju_2000_7", 9900)
	ts.gateway.SetPaid("imp_1", "saju_1000_7", 9900)
	ts.gateway.SetPaid("imp_2", "saju_2000_7", 9900)

	form := url.Values{"imp_uid": {"imp_1"}, "merchant_uid": {"saju_1000_7"}, "status": {"paid"}}
	rec := ts.do(t, http.MethodPost, "/orders/webhook", form.Encode(),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OrderStatusPaid, ts.status(t, "saju_1000_7"))

	rec = ts.do(t, http.MethodPost, "/orders/webhook",
		map[string]string{"gatewayRef": "imp_2", "merchantUid": "saju_2000_7", "status": "paid"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OrderStatusPaid, ts.status(t, "saju_2000_7"))
}

func TestRefund(t *testing.T) {
	ts := newTestServer(t)
	order := ts.seedOrder(t, "saju_1000_7", 9900)
	ts.gateway.SetPaid("imp_1", "saju_1000_7", 9900)

	rec := ts.do(t, http.MethodPost, "/orders/verify",
		map[string]string{"gatewayRef": "imp_1", "merchantUid": "saju_1000_7"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	path := "/orders/" + order.ID + "/refund"
	body := map[string]string{"reason": "customer request"}

	rec = ts.do(t, http.MethodPost, path, body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_MISSING", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, path, body, map[string]string{"Authorization": "Bearer forged"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_INVALID", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, path, body, ts.adminHeader(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "refunded", decode[orderView](t, rec).Status)

	stored, err := ts.store.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RefundedByAdminID)
	assert.Equal(t, "admin-1", *stored.RefundedByAdminID)

	rec = ts.do(t, http.MethodPost, path, body, ts.adminHeader(t))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ORDER_INVALID_STATE", errorCode(t, rec))
}

func TestRefund_NotFoundAndPending(t *testing.T) {
	ts := newTestServer(t)
	pending := ts.seedOrder(t, "saju_1000_7", 9900)

	rec := ts.do(t, http.MethodPost, "/orders/does-not-exist/refund",
		map[string]string{"reason": "x"}, ts.adminHeader(t))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/orders/"+pending.ID+"/refund",
		map[string]string{"reason": "x"}, ts.adminHeader(t))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListStalePending(t *testing.T) {
	ts := newTestServer(t)
	ts.seedOrder(t, "saju_1000_7", 9900)

	rec := ts.do(t, http.MethodGet, "/admin/orders/pending", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/admin/orders/pending?older_than=30m&limit=5", nil, ts.adminHeader(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[pendingReport](t, rec)
	assert.Equal(t, "30m0s", report.OlderThan)
	assert.Equal(t, 0, report.Count)
	require.NotNil(t, ts.orders.lastPending)
	assert.Equal(t, 30*time.Minute, ts.orders.lastPending.OlderThan)
	assert.Equal(t, int32(5), ts.orders.lastPending.Limit)

	rec = ts.do(t, http.MethodGet, "/admin/orders/pending?older_than=soon", nil, ts.adminHeader(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/admin/orders/pending?limit=abc", nil, ts.adminHeader(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusForCode(t *testing.T) {
	tests := map[domain.ErrorCode]int{
		domain.ErrorCodeValidationFailed:       http.StatusBadRequest,
		domain.ErrorCodeValidationMissingField: http.StatusBadRequest,
		domain.ErrorCodeOrderAmountMismatch:    http.StatusBadRequest,
		domain.ErrorCodeGatewayMismatch:        http.StatusBadRequest,
		domain.ErrorCodeAuthMissing:            http.StatusUnauthorized,
		domain.ErrorCodeOrderNotFound:          http.StatusNotFound,
		domain.ErrorCodeOrderStateConflict:     http.StatusConflict,
		domain.ErrorCodeOrderInvalidState:      http.StatusConflict,
		domain.ErrorCodePaymentNotCompleted:    http.StatusConflict,
		domain.ErrorCodeGatewayUnavailable:     http.StatusServiceUnavailable,
		domain.ErrorCodeGatewayInvalidResponse: http.StatusBadGateway,
		domain.ErrorCodeDatabaseError:          http.StatusInternalServerError,
	}
	for code, status := range tests {
		assert.Equal(t, status, statusForCode(code), string(code))
	}
}

func TestWebhook_ForgedCompletionLoggedAsSecurityError(t *testing.T) {
	ts := newTestServer(t)
	ts.seedOrder(t, "saju_1000_7", 9900)
	ts.gateway.SetPaid("imp_forged", "saju_1000_7", 12000)

	rec := ts.do(t, http.MethodPost, "/orders/webhook",
		map[string]string{"imp_uid": "imp_forged", "merchant_uid": "saju_1000_7", "status": "paid"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OrderStatusPending, ts.status(t, "saju_1000_7"))

	entries := ts.logs.FilterField(zap.String("security_event", domain.SecurityEventForgedCompletion)).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, string(domain.ErrorCodeOrderAmountMismatch), entries[0].ContextMap()["code"])
}

func TestVerify_ForgedCompletionLoggedAsSecurityError(t *testing.T) {
	ts := newTestServer(t)
	ts.seedOrder(t, "saju_1000_7", 9900)
	ts.gateway.SetPaid("imp_forged", "saju_1000_7", 12000)

	rec := ts.do(t, http.MethodPost, "/orders/verify",
		map[string]string{"gatewayRef": "imp_forged", "merchantUid": "saju_1000_7"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	entries := ts.logs.FilterField(zap.String("security_event", domain.SecurityEventForgedCompletion)).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}
