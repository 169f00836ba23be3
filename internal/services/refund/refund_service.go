package refund

import (
	"context"
	"fmt"
	"strings"

	"github.com/kevin07696/saju-payments/internal/domain"
	"github.com/kevin07696/saju-payments/internal/domain/ports"
	serviceports "github.com/kevin07696/saju-payments/internal/services/ports"
	"github.com/kevin07696/saju-payments/pkg/observability"
	"github.com/kevin07696/saju-payments/pkg/resilience"
	"github.com/kevin07696/saju-payments/pkg/timeutil"
)

const maxReasonLength = 500

// Service implements serviceports.RefundService
type Service struct {
	store    ports.OrderStore
	gateway  ports.GatewayClient
	logger   ports.Logger
	timeouts *resilience.TimeoutConfig
	clock    timeutil.Clock
}

var _ serviceports.RefundService = (*Service)(nil)

// NewService creates a new refund service
func NewService(store ports.OrderStore, gateway ports.GatewayClient, timeouts *resilience.TimeoutConfig, logger ports.Logger) *Service {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Service{
		store:    store,
		gateway:  gateway,
		logger:   logger,
		timeouts: timeouts,
		clock:    timeutil.Now,
	}
}

// Refund moves a paid order to refunded. The local refund commits even when
// the gateway cancellation fails; that case is flagged for manual follow-up.
func (s *Service) Refund(ctx context.Context, req *serviceports.RefundRequest) (*domain.PaymentOrder, error) {
	ctx, cancel := s.timeouts.ServiceContext(ctx)
	defer cancel()

	reason := strings.TrimSpace(req.Reason)
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, domain.NewMissingFieldError("orderId")
	}
	if reason == "" {
		return nil, domain.NewMissingFieldError("reason")
	}
	if len(reason) > maxReasonLength {
		return nil, domain.NewValidationError("reason", fmt.Sprintf("reason must be at most %d characters", maxReasonLength))
	}
	if strings.TrimSpace(req.AdminID) == "" {
		return nil, domain.ErrAuthMissing
	}

	order, err := s.store.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	// One guard covers already refunded, never paid, cancelled and failed
	if !order.CanBeRefunded() {
		observability.RecordRefund("rejected")
		return nil, domain.NewDomainError(domain.ErrorCodeOrderInvalidState,
			fmt.Sprintf("order %s is %s, only paid orders can be refunded", order.MerchantUID, order.Status)).
			WithDetail("current_status", string(order.Status))
	}

	gatewayCancelled := s.cancelAtGateway(ctx, order, req.AdminID, reason)

	// The local write runs even when the caller is gone or the service budget is spent
	commitCtx, cancelCommit := s.timeouts.CommitContext(ctx)
	defer cancelCommit()

	now := s.clock()
	adminID := req.AdminID
	fields := domain.TransitionFields{
		RefundedAt:        &now,
		RefundReason:      &reason,
		RefundedByAdminID: &adminID,
	}
	moved, err := s.store.CompareAndTransition(commitCtx, order.MerchantUID, domain.OrderStatusPaid, domain.OrderStatusRefunded, fields)
	if err != nil {
		return nil, fmt.Errorf("refund order %s: %w", order.MerchantUID, err)
	}
	if !moved {
		current, getErr := s.store.GetByID(commitCtx, req.OrderID)
		status := domain.OrderStatus("unknown")
		if getErr == nil {
			status = current.Status
		}
		observability.RecordRefund("rejected")
		return nil, domain.NewDomainError(domain.ErrorCodeOrderInvalidState,
			fmt.Sprintf("order %s changed to %s during refund", order.MerchantUID, status)).
			WithDetail("current_status", string(status))
	}

	refunded, err := s.store.GetByID(commitCtx, req.OrderID)
	if err != nil {
		s.logger.Warn("refund committed but reload failed",
			ports.String("merchant_uid", order.MerchantUID),
			ports.Err(err))
		refunded = order.Clone()
		refunded.ApplyTransition(domain.OrderStatusRefunded, fields, now)
	}

	if gatewayCancelled {
		observability.RecordRefund("refunded")
	} else {
		observability.RecordRefund("refunded_local_only")
	}
	s.logger.Info("order refunded",
		ports.String("merchant_uid", refunded.MerchantUID),
		ports.String("order_id", refunded.ID),
		ports.String("admin_id", req.AdminID),
		ports.Int64("amount", refunded.Amount),
		ports.Bool("gateway_cancelled", gatewayCancelled))

	return refunded, nil
}

// cancelAtGateway reports whether the provider confirmed the cancellation.
// The call is bounded by the gateway budget.
func (s *Service) cancelAtGateway(ctx context.Context, order *domain.PaymentOrder, adminID, reason string) bool {
	gatewayRef := order.GetGatewayTransactionID()
	if gatewayRef == "" {
		s.logManualReconciliation(order, adminID, "paid order has no gateway transaction id", nil)
		return false
	}

	gatewayCtx, cancel := s.timeouts.GatewayContext(ctx)
	defer cancel()

	if _, err := s.gateway.Cancel(gatewayCtx, gatewayRef, reason); err != nil {
		s.logManualReconciliation(order, adminID, "gateway cancellation failed", err)
		return false
	}
	return true
}

func (s *Service) logManualReconciliation(order *domain.PaymentOrder, adminID, msg string, err error) {
	fields := []ports.Field{
		ports.String("alert", "manual_gateway_reconciliation_required"),
		ports.String("merchant_uid", order.MerchantUID),
		ports.String("order_id", order.ID),
		ports.String("gateway_ref", order.GetGatewayTransactionID()),
		ports.String("admin_id", adminID),
		ports.Int64("amount", order.Amount),
	}
	if err != nil {
		fields = append(fields, ports.Err(err))
	}
	s.logger.Error(msg+", committing local refund", fields...)
	observability.RecordManualReconciliationRequired()
}
