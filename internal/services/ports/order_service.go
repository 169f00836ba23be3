package ports

import (
	"context"
	"time"

	"github.com/kevin07696/saju-payments/internal/domain"
)

// CreateOrderRequest contains parameters for recording a purchase intent
type CreateOrderRequest struct {
	ProductType domain.ProductType
	UserName    string // Optional, forwarded to the result notification
	Phone       string // Optional, forwarded to the result notification
	UserID      int64
	Amount      int64 // Smallest currency unit
}

// CreatedOrder is a pending order plus the provider-side preparation reference
type CreatedOrder struct {
	Order                 *domain.PaymentOrder
	GatewayPreparationRef string
}

// ListStalePendingRequest contains parameters for the stale pending report
type ListStalePendingRequest struct {
	OlderThan time.Duration
	Limit     int32
}

// OrderService defines the port for order creation and lookup
type OrderService interface {
	// Create validates the request, records a pending order and registers
	// the expected amount with the gateway
	Create(ctx context.Context, req *CreateOrderRequest) (*CreatedOrder, error)

	// Get returns the order for merchantUID
	Get(ctx context.Context, merchantUID string) (*domain.PaymentOrder, error)

	// ListStalePending returns pending orders created before the given age
	ListStalePending(ctx context.Context, req *ListStalePendingRequest) ([]*domain.PaymentOrder, error)
}
