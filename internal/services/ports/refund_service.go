package ports

import (
	"context"

	"github.com/kevin07696/saju-payments/internal/domain"
)

// RefundRequest contains parameters for refunding a paid order
type RefundRequest struct {
	OrderID string
	AdminID string
	Reason  string
}

// RefundService defines the port for admin refunds
type RefundService interface {
	// Refund moves a paid order to refunded. A gateway cancellation failure
	// is logged for manual follow-up and does not block the local refund.
	Refund(ctx context.Context, req *RefundRequest) (*domain.PaymentOrder, error)
}
