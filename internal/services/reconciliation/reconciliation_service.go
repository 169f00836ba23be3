// Package reconciliation converges verify and webhook completion signals onto
// one order state, using the gateway as the only source of truth.
package reconciliation

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kevin07696/saju-payments/internal/domain"
	"github.com/kevin07696/saju-payments/internal/domain/ports"
	serviceports "github.com/kevin07696/saju-payments/internal/services/ports"
	"github.com/kevin07696/saju-payments/pkg/observability"
	"github.com/kevin07696/saju-payments/pkg/resilience"
	"github.com/kevin07696/saju-payments/pkg/timeutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/kevin07696/saju-payments/internal/services/reconciliation"

// Config contains reconciliation settings
type Config struct {
	// ResultURLBase is joined with the merchant UID to build the link sent to the user
	ResultURLBase string
}

// Service implements serviceports.ReconciliationService
type Service struct {
	store    ports.OrderStore
	gateway  ports.GatewayClient
	notifier ports.NotificationDispatcher
	logger   ports.Logger
	timeouts *resilience.TimeoutConfig
	config   Config
	clock    timeutil.Clock
	tracer   trace.Tracer
}

var _ serviceports.ReconciliationService = (*Service)(nil)

// NewService creates a new reconciliation service
func NewService(
	store ports.OrderStore,
	gateway ports.GatewayClient,
	notifier ports.NotificationDispatcher,
	timeouts *resilience.TimeoutConfig,
	cfg Config,
	logger ports.Logger,
) *Service {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Service{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		timeouts: timeouts,
		config:   cfg,
		clock:    timeutil.Now,
		tracer:   otel.Tracer(tracerName),
	}
}

// Reconcile confirms a completion signal against the gateway and applies at
// most one transition. The source is recorded but never changes the outcome.
func (s *Service) Reconcile(ctx context.Context, req *serviceports.ReconcileRequest) (*serviceports.ReconcileResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "reconciliation.Reconcile", trace.WithAttributes(
		attribute.String("order.merchant_uid", req.MerchantUID),
		attribute.String("gateway.ref", req.GatewayRef),
		attribute.String("reconcile.source", string(req.Source)),
	))
	defer span.End()

	ctx, cancel := s.timeouts.ServiceContext(ctx)
	defer cancel()

	result, err := s.reconcile(ctx, req)

	var label string
	if err != nil {
		label = strings.ToLower(string(domain.GetErrorCode(err)))
		if label == "" {
			label = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, label)
	} else {
		label = string(result.Outcome)
		span.SetAttributes(
			attribute.String("reconcile.outcome", label),
			attribute.String("order.status", string(result.Order.Status)),
		)
	}
	observability.RecordReconciliation(string(req.Source), label, time.Since(start).Seconds())

	return result, err
}

func (s *Service) reconcile(ctx context.Context, req *serviceports.ReconcileRequest) (*serviceports.ReconcileResult, error) {
	if strings.TrimSpace(req.MerchantUID) == "" {
		return nil, domain.NewMissingFieldError("merchantUid")
	}
	if strings.TrimSpace(req.GatewayRef) == "" {
		return nil, domain.NewMissingFieldError("gatewayRef")
	}

	// 1. Load the order
	order, err := s.store.GetByMerchantUID(ctx, req.MerchantUID)
	if err != nil {
		return nil, err
	}

	// 2. Canonical fetch. Nothing has been written yet, so failures leave state untouched.
	txn, err := s.gateway.FetchTransaction(ctx, req.GatewayRef, req.MerchantUID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeGatewayMismatch) {
			s.logSecurityEvent(req, "gateway transaction does not belong to order", err,
				ports.String("detail", "gateway_mismatch"))
			observability.RecordSecurityEvent("gateway_mismatch", string(req.Source))
		}
		return nil, err
	}

	// 3. Amount integrity against the amount stored at creation
	if txn.Amount != order.Amount {
		mismatch := domain.NewDomainError(domain.ErrorCodeOrderAmountMismatch,
			fmt.Sprintf("gateway amount %d does not match order amount %d", txn.Amount, order.Amount)).
			WithDetail("expected_amount", order.Amount).
			WithDetail("gateway_amount", txn.Amount)
		s.logSecurityEvent(req, "payment amount mismatch", mismatch,
			ports.Int64("expected_amount", order.Amount),
			ports.Int64("gateway_amount", txn.Amount))
		observability.RecordSecurityEvent("amount_mismatch", string(req.Source))
		return nil, mismatch
	}

	// 4. Map the canonical status
	target, ok := txn.Status.TargetStatus()
	if !ok {
		if txn.Status == domain.GatewayStatusReady {
			return nil, domain.NewDomainError(domain.ErrorCodePaymentNotCompleted,
				fmt.Sprintf("gateway transaction %s has not been paid", req.GatewayRef))
		}
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayInvalidResponse,
			fmt.Sprintf("unrecognized gateway status %q", txn.Status))
	}

	// 5 and 6. Duplicate delivery or conflicting state
	if result, err := s.checkCurrent(req, order, target); result != nil || err != nil {
		return result, err
	}

	// 7. Conditional transition
	fields := s.transitionFields(target, txn)
	moved, err := s.store.CompareAndTransition(ctx, req.MerchantUID, domain.OrderStatusPending, target, fields)
	if err != nil {
		return nil, fmt.Errorf("transition order %s: %w", req.MerchantUID, err)
	}
	if !moved {
		// A concurrent writer won; judge its result like any other prior state
		current, err := s.store.GetByMerchantUID(ctx, req.MerchantUID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("lost transition race",
			ports.String("merchant_uid", req.MerchantUID),
			ports.String("source", string(req.Source)),
			ports.String("current_status", string(current.Status)))
		if result, err := s.checkCurrent(req, current, target); result != nil || err != nil {
			return result, err
		}
		return nil, domain.NewDomainError(domain.ErrorCodeOrderStateConflict,
			fmt.Sprintf("order %s is still %s after a failed transition", req.MerchantUID, current.Status))
	}

	// Notify from what was written; the reload below is best effort
	updated := order.Clone()
	updated.ApplyTransition(target, fields, s.clock())

	s.logger.Info("order transitioned",
		ports.String("merchant_uid", req.MerchantUID),
		ports.String("gateway_ref", txn.GatewayRef),
		ports.String("from", string(domain.OrderStatusPending)),
		ports.String("to", string(target)),
		ports.String("source", string(req.Source)))

	// 8. Notify only on a fresh paid transition
	if target == domain.OrderStatusPaid {
		observability.RecordPaid(string(updated.ProductType), updated.Amount)
		s.notify(ctx, updated)
	}

	if stored, err := s.store.GetByMerchantUID(ctx, req.MerchantUID); err == nil {
		updated = stored
	} else {
		s.logger.Warn("reload after transition failed, returning committed fields",
			ports.String("merchant_uid", req.MerchantUID),
			ports.Err(err))
	}

	return &serviceports.ReconcileResult{Order: updated, Outcome: serviceports.OutcomeTransitioned}, nil
}

// checkCurrent returns a duplicate result when order already sits at target,
// a conflict when it left pending for somewhere else, and nil, nil when the
// transition should proceed
func (s *Service) checkCurrent(req *serviceports.ReconcileRequest, order *domain.PaymentOrder, target domain.OrderStatus) (*serviceports.ReconcileResult, error) {
	if order.Status == target {
		s.logger.Debug("duplicate completion signal",
			ports.String("merchant_uid", req.MerchantUID),
			ports.String("status", string(order.Status)),
			ports.String("source", string(req.Source)))
		return &serviceports.ReconcileResult{Order: order, Outcome: serviceports.OutcomeDuplicate}, nil
	}
	if order.Status != domain.OrderStatusPending {
		return nil, domain.NewDomainError(domain.ErrorCodeOrderStateConflict,
			fmt.Sprintf("order %s is %s, gateway reports %s", req.MerchantUID, order.Status, target)).
			WithDetail("current_status", string(order.Status)).
			WithDetail("target_status", string(target))
	}
	return nil, nil
}

func (s *Service) transitionFields(target domain.OrderStatus, txn *ports.GatewayTransaction) domain.TransitionFields {
	ref := txn.GatewayRef
	now := s.clock()
	fields := domain.TransitionFields{GatewayTransactionID: &ref}

	switch target {
	case domain.OrderStatusPaid:
		paidAt := now
		if txn.PaidAt != nil {
			paidAt = txn.PaidAt.UTC()
		}
		fields.PaidAt = &paidAt
	case domain.OrderStatusFailed:
		fields.FailedAt = &now
	case domain.OrderStatusCancelled:
		fields.CancelledAt = &now
	}
	return fields
}

func (s *Service) notify(ctx context.Context, order *domain.PaymentOrder) {
	resultURL := ""
	if s.config.ResultURLBase != "" {
		joined, err := url.JoinPath(s.config.ResultURLBase, order.MerchantUID)
		if err != nil {
			s.logger.Warn("invalid result url base", ports.Err(err))
		} else {
			resultURL = joined
		}
	}

	s.notifier.Dispatch(ctx, ports.ResultReadyNotification{
		MerchantUID: order.MerchantUID,
		UserID:      order.UserID,
		Phone:       order.Phone,
		UserName:    order.UserName,
		ResultURL:   resultURL,
	})
}

func (s *Service) logSecurityEvent(req *serviceports.ReconcileRequest, msg string, err error, fields ...ports.Field) {
	fields = append([]ports.Field{
		ports.String("security_event", domain.SecurityEventForgedCompletion),
		ports.String("merchant_uid", req.MerchantUID),
		ports.String("gateway_ref", req.GatewayRef),
		ports.String("source", string(req.Source)),
		ports.Err(err),
	}, fields...)
	s.logger.Error(msg, fields...)
}
