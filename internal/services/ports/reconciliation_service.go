package ports

import (
	"context"

	"github.com/kevin07696/saju-payments/internal/domain"
)

// Source names the channel a completion signal arrived on.
// It is used for logs and metrics only.
type Source string

const (
	SourceVerify  Source = "verify"
	SourceWebhook Source = "webhook"
)

// Outcome describes what a successful reconcile did
type Outcome string

const (
	OutcomeTransitioned Outcome = "transitioned"
	OutcomeDuplicate    Outcome = "duplicate"
)

// ReconcileRequest contains parameters for reconciling one completion signal
type ReconcileRequest struct {
	MerchantUID string
	GatewayRef  string
	Source      Source
}

// ReconcileResult is the order state after reconciliation
type ReconcileResult struct {
	Order   *domain.PaymentOrder
	Outcome Outcome
}

// ReconciliationService defines the port for converging completion signals
type ReconciliationService interface {
	// Reconcile confirms the signal against the gateway and performs at most
	// one state transition. Redundant calls are successful no-ops.
	Reconcile(ctx context.Context, req *ReconcileRequest) (*ReconcileResult, error)
}
