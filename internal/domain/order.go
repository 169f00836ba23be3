package domain

import (
	"time"
)

// OrderStatus represents the lifecycle state of a payment order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"   // Created, waiting for gateway completion
	OrderStatusPaid      OrderStatus = "paid"      // Gateway confirmed payment
	OrderStatusCancelled OrderStatus = "cancelled" // Gateway reported cancellation before payment
	OrderStatusRefunded  OrderStatus = "refunded"  // Paid, then refunded by an admin
	OrderStatusFailed    OrderStatus = "failed"    // Gateway reported failure
)

// ProductType is the closed set of purchasable products
type ProductType string

const (
	ProductTypeBasic   ProductType = "basic"
	ProductTypePDF     ProductType = "pdf"
	ProductTypePremium ProductType = "premium"
)

// IsValid reports whether p is a known product type
func (p ProductType) IsValid() bool {
	switch p {
	case ProductTypeBasic, ProductTypePDF, ProductTypePremium:
		return true
	}
	return false
}

// IsValid reports whether s is a known order status
func (s OrderStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal returns true when no edge leaves the status
func (s OrderStatus) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// transitions is the directed state graph. No edge is ever reversed.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPaid:      {OrderStatusRefunded},
	OrderStatusCancelled: {},
	OrderStatusFailed:    {},
	OrderStatusRefunded:  {},
}

// CanTransition reports whether from -> to is an edge of the state graph
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentOrder is a persisted purchase intent
type PaymentOrder struct {
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
	PaidAt               *time.Time  `json:"paid_at,omitempty"`
	FailedAt             *time.Time  `json:"failed_at,omitempty"`
	CancelledAt          *time.Time  `json:"cancelled_at,omitempty"`
	RefundedAt           *time.Time  `json:"refunded_at,omitempty"`
	GatewayTransactionID *string     `json:"gateway_transaction_id,omitempty"`
	RefundReason         *string     `json:"refund_reason,omitempty"`
	RefundedByAdminID    *string     `json:"refunded_by_admin_id,omitempty"`
	ID                   string      `json:"id"`
	MerchantUID          string      `json:"merchant_uid"`
	UserName             string      `json:"user_name,omitempty"`
	Phone                string      `json:"phone,omitempty"`
	ProductType          ProductType `json:"product_type"`
	Status               OrderStatus `json:"status"`
	UserID               int64       `json:"user_id"`
	Amount               int64       `json:"amount"`
}

// IsPaid returns true once money has been confirmed for the order
func (o *PaymentOrder) IsPaid() bool {
	return o.Status == OrderStatusPaid || o.Status == OrderStatusRefunded
}

// CanBeRefunded returns true only for paid orders
func (o *PaymentOrder) CanBeRefunded() bool {
	return o.Status == OrderStatusPaid
}

// GetGatewayTransactionID safely retrieves the gateway transaction ID
func (o *PaymentOrder) GetGatewayTransactionID() string {
	if o.GatewayTransactionID != nil {
		return *o.GatewayTransactionID
	}
	return ""
}

// ApplyTransition sets the status and the transition fields the way a store
// commits them: timestamps and the gateway transaction ID only when unset.
func (o *PaymentOrder) ApplyTransition(next OrderStatus, fields TransitionFields, at time.Time) {
	o.Status = next
	o.UpdatedAt = at
	setOnce(&o.GatewayTransactionID, fields.GatewayTransactionID)
	setOnce(&o.PaidAt, fields.PaidAt)
	setOnce(&o.FailedAt, fields.FailedAt)
	setOnce(&o.CancelledAt, fields.CancelledAt)
	setOnce(&o.RefundedAt, fields.RefundedAt)
	if fields.RefundReason != nil {
		o.RefundReason = copyPtr(fields.RefundReason)
	}
	if fields.RefundedByAdminID != nil {
		o.RefundedByAdminID = copyPtr(fields.RefundedByAdminID)
	}
}

// Clone returns a deep copy of the order
func (o *PaymentOrder) Clone() *PaymentOrder {
	c := *o
	c.PaidAt = copyPtr(o.PaidAt)
	c.FailedAt = copyPtr(o.FailedAt)
	c.CancelledAt = copyPtr(o.CancelledAt)
	c.RefundedAt = copyPtr(o.RefundedAt)
	c.GatewayTransactionID = copyPtr(o.GatewayTransactionID)
	c.RefundReason = copyPtr(o.RefundReason)
	c.RefundedByAdminID = copyPtr(o.RefundedByAdminID)
	return &c
}

func setOnce[T any](dst **T, value *T) {
	if *dst == nil && value != nil {
		*dst = copyPtr(value)
	}
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// NewOrder carries the fields supplied when a purchase intent is recorded
type NewOrder struct {
	ID          string
	MerchantUID string
	UserName    string
	Phone       string
	ProductType ProductType
	UserID      int64
	Amount      int64
}

// TransitionFields are the columns a state transition may set.
// Nil fields are left untouched. Timestamps and the gateway transaction ID
// are only written when currently unset.
type TransitionFields struct {
	GatewayTransactionID *string
	PaidAt               *time.Time
	FailedAt             *time.Time
	CancelledAt          *time.Time
	RefundedAt           *time.Time
	RefundReason         *string
	RefundedByAdminID    *string
}

// GatewayStatus is the provider-reported state of a transaction
type GatewayStatus string

const (
	GatewayStatusReady     GatewayStatus = "ready" // Checkout opened, not paid yet
	GatewayStatusPaid      GatewayStatus = "paid"
	GatewayStatusCancelled GatewayStatus = "cancelled"
	GatewayStatusFailed    GatewayStatus = "failed"
)

// TargetStatus maps a canonical gateway status to the order status it implies.
// ok is false for statuses that imply no transition.
func (g GatewayStatus) TargetStatus() (OrderStatus, bool) {
	switch g {
	case GatewayStatusPaid:
		return OrderStatusPaid, true
	case GatewayStatusCancelled:
		return OrderStatusCancelled, true
	case GatewayStatusFailed:
		return OrderStatusFailed, true
	}
	return "", false
}
