package ports

import (
	"context"
	"time"

	"github.com/kevin07696/saju-payments/internal/domain"
)

// Credential is a short-lived access token issued by the payment provider
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Expired reports whether the credential should be refreshed, leaving leeway before expiry
func (c Credential) Expired(now time.Time, leeway time.Duration) bool {
	return c.AccessToken == "" || !now.Add(leeway).Before(c.ExpiresAt)
}

// GatewayTransaction is the provider's canonical view of a transaction
type GatewayTransaction struct {
	PaidAt      *time.Time
	GatewayRef  string
	MerchantUID string
	Status      domain.GatewayStatus
	FailReason  string
	Amount      int64
}

// CancelResult is returned by a successful gateway cancellation
type CancelResult struct {
	CancelledAt     time.Time
	GatewayRef      string
	CancelledAmount int64
}

// GatewayClient defines the port for the external payment provider.
//
// Errors that mean "the provider could not be reached or answered in time"
// are reported as domain.ErrGatewayUnavailable.
type GatewayClient interface {
	// Authenticate returns a valid credential, refreshing the cached one before expiry
	Authenticate(ctx context.Context) (Credential, error)

	// Prepare registers the expected amount for a merchant UID before checkout
	Prepare(ctx context.Context, merchantUID string, amount int64) (string, error)

	// FetchTransaction always queries the provider directly.
	// gatewayRef is the provider's own transaction identifier.
	FetchTransaction(ctx context.Context, gatewayRef, merchantUID string) (*GatewayTransaction, error)

	// Cancel cancels (refunds) the full amount of a paid transaction
	Cancel(ctx context.Context, gatewayRef, reason string) (*CancelResult, error)
}
