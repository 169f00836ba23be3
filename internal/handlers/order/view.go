package order

import (
	"time"

	"github.com/kevin07696/saju-payments/internal/domain"
)

// orderView is the JSON representation of an order. Phone is omitted.
type orderView struct {
	PaidAt               *time.Time `json:"paidAt,omitempty"`
	FailedAt             *time.Time `json:"failedAt,omitempty"`
	CancelledAt          *time.Time `json:"cancelledAt,omitempty"`
	RefundedAt           *time.Time `json:"refundedAt,omitempty"`
	GatewayTransactionID *string    `json:"gatewayTransactionId,omitempty"`
	RefundReason         *string    `json:"refundReason,omitempty"`
	ID                   string     `json:"id"`
	MerchantUID          string     `json:"merchantUid"`
	ProductType          string     `json:"productType"`
	Status               string     `json:"status"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	UserID               int64      `json:"userId"`
	Amount               int64      `json:"amount"`
}

func newOrderView(o *domain.PaymentOrder) orderView {
	return orderView{
		PaidAt:               o.PaidAt,
		FailedAt:             o.FailedAt,
		CancelledAt:          o.CancelledAt,
		RefundedAt:           o.RefundedAt,
		GatewayTransactionID: o.GatewayTransactionID,
		RefundReason:         o.RefundReason,
		ID:                   o.ID,
		MerchantUID:          o.MerchantUID,
		ProductType:          string(o.ProductType),
		Status:               string(o.Status),
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
		UserID:               o.UserID,
		Amount:               o.Amount,
	}
}
