package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/saju-payments/internal/domain"
	"github.com/kevin07696/saju-payments/internal/domain/ports"
	serviceports "github.com/kevin07696/saju-payments/internal/services/ports"
	"github.com/kevin07696/saju-payments/pkg/observability"
	"github.com/kevin07696/saju-payments/pkg/timeutil"
)

const (
	// DefaultMerchantUIDPrefix starts every generated merchant UID
	DefaultMerchantUIDPrefix = "saju"

	maxCreateAttempts = 3
	defaultListLimit  = 100
	maxListLimit      = 1000
)

// Config contains order creation settings
type Config struct {
	MerchantUIDPrefix string
	// Prices pins the accepted amount per product. Products missing from a
	// non-empty table are rejected; an empty table accepts any positive amount.
	Prices map[domain.ProductType]int64
}

// Service implements serviceports.OrderService
type Service struct {
	store   ports.OrderStore
	gateway ports.GatewayClient
	logger  ports.Logger
	config  Config
	clock   timeutil.Clock
}

var _ serviceports.OrderService = (*Service)(nil)

// NewService creates a new order service
func NewService(store ports.OrderStore, gateway ports.GatewayClient, cfg Config, logger ports.Logger) *Service {
	if cfg.MerchantUIDPrefix == "" {
		cfg.MerchantUIDPrefix = DefaultMerchantUIDPrefix
	}
	return &Service{
		store:   store,
		gateway: gateway,
		logger:  logger,
		config:  cfg,
		clock:   timeutil.Now,
	}
}

// Create records a pending order and pins its amount at the gateway
func (s *Service) Create(ctx context.Context, req *serviceports.CreateOrderRequest) (*serviceports.CreatedOrder, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	var (
		order *domain.PaymentOrder
		err   error
	)
	millis := s.clock().UnixMilli()
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		order, err = s.store.Create(ctx, domain.NewOrder{
			ID:          uuid.New().String(),
			MerchantUID: MerchantUID(s.config.MerchantUIDPrefix, millis+int64(attempt), req.UserID),
			UserID:      req.UserID,
			Amount:      req.Amount,
			ProductType: req.ProductType,
			UserName:    strings.TrimSpace(req.UserName),
			Phone:       strings.TrimSpace(req.Phone),
		})
		if !errors.Is(err, domain.ErrOrderDuplicateKey) {
			break
		}
		s.logger.Warn("merchant_uid collision, regenerating",
			ports.Int64("user_id", req.UserID),
			ports.Int("attempt", attempt+1))
	}
	if err != nil {
		s.logger.Error("create order failed",
			ports.Int64("user_id", req.UserID),
			ports.Err(err))
		return nil, fmt.Errorf("create order: %w", err)
	}

	prepRef, err := s.gateway.Prepare(ctx, order.MerchantUID, order.Amount)
	if err != nil {
		s.logger.Error("gateway prepare failed, order left pending",
			ports.String("merchant_uid", order.MerchantUID),
			ports.Int64("amount", order.Amount),
			ports.Err(err))
		return nil, fmt.Errorf("prepare payment: %w", err)
	}

	observability.RecordOrderCreated(string(order.ProductType))
	s.logger.Info("order created",
		ports.String("merchant_uid", order.MerchantUID),
		ports.String("order_id", order.ID),
		ports.Int64("user_id", order.UserID),
		ports.Int64("amount", order.Amount),
		ports.String("product_type", string(order.ProductType)))

	return &serviceports.CreatedOrder{Order: order, GatewayPreparationRef: prepRef}, nil
}

// Get returns the order for merchantUID
func (s *Service) Get(ctx context.Context, merchantUID string) (*domain.PaymentOrder, error) {
	if strings.TrimSpace(merchantUID) == "" {
		return nil, domain.NewMissingFieldError("merchantUid")
	}
	return s.store.GetByMerchantUID(ctx, merchantUID)
}

// ListStalePending lists orders still pending after req.OlderThan. These are
// the orders whose completion signals never arrived or were rejected.
func (s *Service) ListStalePending(ctx context.Context, req *serviceports.ListStalePendingRequest) ([]*domain.PaymentOrder, error) {
	if req.OlderThan < 0 {
		return nil, domain.NewValidationError("older_than", "older_than must not be negative")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	cutoff := s.clock().Add(-req.OlderThan)
	orders, err := s.store.ListByStatus(ctx, domain.OrderStatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending orders: %w", err)
	}
	return orders, nil
}

func (s *Service) validate(req *serviceports.CreateOrderRequest) error {
	if req == nil {
		return domain.NewValidationError("request", "request body is required")
	}
	if req.UserID <= 0 {
		return domain.NewValidationError("userId", "userId must be positive")
	}
	if req.Amount <= 0 {
		return domain.NewValidationError("amount", "amount must be positive")
	}
	if !req.ProductType.IsValid() {
		return domain.NewValidationError("productType", fmt.Sprintf("unknown product type %q", req.ProductType))
	}
	if len(s.config.Prices) > 0 {
		price, ok := s.config.Prices[req.ProductType]
		if !ok {
			return domain.NewValidationError("productType", fmt.Sprintf("product type %q is not for sale", req.ProductType))
		}
		if price != req.Amount {
			return domain.NewValidationError("amount", fmt.Sprintf("amount %d does not match price %d for %s", req.Amount, price, req.ProductType))
		}
	}
	return nil
}

// MerchantUID formats the idempotency key for a new order
func MerchantUID(prefix string, unixMillis, userID int64) string {
	return fmt.Sprintf("%s_%d_%d", prefix, unixMillis, userID)
}

// ScanStalePending logs every order still pending after olderThan and
// publishes the count. A webhook for an unknown or garbled order is otherwise
// visible only in the ingestion logs.
func (s *Service) ScanStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	orders, err := s.ListStalePending(ctx, &serviceports.ListStalePendingRequest{
		OlderThan: olderThan,
		Limit:     maxListLimit,
	})
	if err != nil {
		s.logger.Error("stale pending scan failed", ports.Err(err))
		return 0, err
	}

	observability.SetStalePendingOrders(len(orders))
	for _, o := range orders {
		s.logger.Warn("order still pending",
			ports.String("alert", "stale_pending_order"),
			ports.String("merchant_uid", o.MerchantUID),
			ports.Int64("amount", o.Amount),
			ports.Duration("age", s.clock().Sub(o.CreatedAt)))
	}
	return len(orders), nil
}
