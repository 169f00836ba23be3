package ports

import (
	"context"
	"time"

	"github.com/kevin07696/saju-payments/internal/domain"
)

// OrderStore defines the persistence port for payment orders.
//
// It is the only component allowed to write order rows. Status, amount and
// timestamp columns change exclusively through CompareAndTransition.
type OrderStore interface {
	// Create inserts a pending order.
	// Returns domain.ErrOrderDuplicateKey if the merchant UID already exists.
	Create(ctx context.Context, order domain.NewOrder) (*domain.PaymentOrder, error)

	// GetByMerchantUID returns domain.ErrOrderNotFound when absent
	GetByMerchantUID(ctx context.Context, merchantUID string) (*domain.PaymentOrder, error)

	// GetByID returns domain.ErrOrderNotFound when absent
	GetByID(ctx context.Context, id string) (*domain.PaymentOrder, error)

	// CompareAndTransition atomically moves the order from expected to next,
	// applying fields in the same write. It returns false with a nil error when
	// the persisted status no longer equals expected.
	CompareAndTransition(ctx context.Context, merchantUID string, expected, next domain.OrderStatus, fields domain.TransitionFields) (bool, error)

	// ListByStatus lists orders in a status created before olderThan, oldest first
	ListByStatus(ctx context.Context, status domain.OrderStatus, olderThan time.Time, limit int32) ([]*domain.PaymentOrder, error)
}
