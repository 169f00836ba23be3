package order

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/saju-payments/internal/auth"
	"github.com/kevin07696/saju-payments/internal/domain"
	serviceports "github.com/kevin07696/saju-payments/internal/services/ports"
	"github.com/kevin07696/saju-payments/pkg/observability"
	"github.com/kevin07696/saju-payments/pkg/resilience"
)

const maxBodyBytes = 64 << 10

// Handler serves the order HTTP surface: creation, lookup, the two
// completion channels, refunds and the stale pending report.
type Handler struct {
	orders    serviceports.OrderService
	reconcile serviceports.ReconciliationService
	refunds   serviceports.RefundService
	timeouts  *resilience.TimeoutConfig
	logger    *zap.Logger
}

// NewHandler creates a new order handler
func NewHandler(
	orders serviceports.OrderService,
	reconcile serviceports.ReconciliationService,
	refunds serviceports.RefundService,
	timeouts *resilience.TimeoutConfig,
	logger *zap.Logger,
) *Handler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Handler{
		orders:    orders,
		reconcile: reconcile,
		refunds:   refunds,
		timeouts:  timeouts,
		logger:    logger,
	}
}

// Middleware decorates a handler
type Middleware func(http.Handler) http.Handler

// RegisterRoutes mounts the public routes behind public and the admin
// routes behind admin.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, public, admin Middleware) {
	if public == nil {
		public = passthrough
	}
	if admin == nil {
		admin = passthrough
	}

	route := func(pattern string, mw Middleware, fn http.HandlerFunc) {
		mux.Handle(pattern, observability.HTTPMiddleware(pattern, mw(fn)))
	}

	route("POST /orders", public, h.CreateOrder)
	route("GET /orders/{merchantUid}", public, h.GetOrder)
	route("POST /orders/verify", public, h.Verify)
	// The provider must always reach the webhook, so it skips rate limiting
	route("POST /orders/webhook", passthrough, h.Webhook)
	route("POST /orders/{id}/refund", admin, h.Refund)
	route("GET /admin/orders/pending", admin, h.ListStalePending)
}

func passthrough(next http.Handler) http.Handler { return next }

type createOrderRequest struct {
	ProductType string `json:"productType"`
	UserName    string `json:"userName"`
	Phone       string `json:"phone"`
	UserID      int64  `json:"userId"`
	Amount      int64  `json:"amount"`
}

type createOrderResponse struct {
	MerchantUID           string `json:"merchantUid"`
	GatewayPreparationRef string `json:"gatewayPreparationRef"`
	ProductType           string `json:"productType"`
	Amount                int64  `json:"amount"`
}

// CreateOrder handles POST /orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	created, err := h.orders.Create(ctx, &serviceports.CreateOrderRequest{
		ProductType: domain.ProductType(req.ProductType),
		UserName:    req.UserName,
		Phone:       req.Phone,
		UserID:      req.UserID,
		Amount:      req.Amount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		MerchantUID:           created.Order.MerchantUID,
		GatewayPreparationRef: created.GatewayPreparationRef,
		ProductType:           string(created.Order.ProductType),
		Amount:                created.Order.Amount,
	})
}

// GetOrder handles GET /orders/{merchantUid}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	order, err := h.orders.Get(ctx, r.PathValue("merchantUid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderView(order))
}

type verifyRequest struct {
	GatewayRef  string `json:"gatewayRef"`
	MerchantUID string `json:"merchantUid"`
}

type verifyResponse struct {
	orderView
	Duplicate bool `json:"duplicate"`
}

// Verify handles POST /orders/verify, the client-triggered completion channel
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	result, err := h.reconcile.Reconcile(ctx, &serviceports.ReconcileRequest{
		MerchantUID: strings.TrimSpace(req.MerchantUID),
		GatewayRef:  strings.TrimSpace(req.GatewayRef),
		Source:      serviceports.SourceVerify,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		orderView: newOrderView(result.Order),
		Duplicate: result.Outcome == serviceports.OutcomeDuplicate,
	})
}

type refundRequest struct {
	Reason string `json:"reason"`
}

// Refund handles POST /orders/{id}/refund. The admin id comes from the token.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	adminID, _ := auth.AdminIDFromContext(r.Context())

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	order, err := h.refunds.Refund(ctx, &serviceports.RefundRequest{
		OrderID: r.PathValue("id"),
		AdminID: adminID,
		Reason:  req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderView(order))
}

type pendingReport struct {
	Orders    []orderView `json:"orders"`
	OlderThan string      `json:"olderThan"`
	Count     int         `json:"count"`
}

// ListStalePending handles GET /admin/orders/pending?older_than=15m&limit=100
func (h *Handler) ListStalePending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	olderThan := 15 * time.Minute
	if raw := q.Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			h.writeError(w, r, domain.NewValidationError("older_than", "must be a duration such as 15m"))
			return
		}
		olderThan = d
	}

	var limit int32
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			h.writeError(w, r, domain.NewValidationError("limit", "must be an integer"))
			return
		}
		limit = int32(n)
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	orders, err := h.orders.ListStalePending(ctx, &serviceports.ListStalePendingRequest{
		OlderThan: olderThan,
		Limit:     limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, newOrderView(o))
	}

	writeJSON(w, http.StatusOK, pendingReport{
		Orders:    views,
		OlderThan: olderThan.String(),
		Count:     len(views),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("body", "request body is required")
		}
		return domain.WrapError(domain.ErrorCodeValidationFailed, "malformed JSON body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
