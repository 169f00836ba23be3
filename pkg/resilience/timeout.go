package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the request path
//
// Timeout Hierarchy (from outermost to innermost):
//
//	HTTP Handler (30s)
//	  ↓
//	Reconcile / Refund (20s)
//	  ↓
//	Gateway call (10s, includes retries)
//	  ↓
//	Database query (2s)
//
// Webhook reconciliation, notification delivery and commits that follow a
// gateway side effect run on their own budgets because they outlive the
// request that started them.
type TimeoutConfig struct {
	HTTPHandler time.Duration
	Service     time.Duration

	// Webhook reconcile budget, independent of the provider's connection
	Webhook time.Duration

	GatewayCall         time.Duration
	NotificationAttempt time.Duration

	// Local write that must land after the gateway already acted
	Commit time.Duration
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:         30 * time.Second,
		Service:             20 * time.Second,
		Webhook:             15 * time.Second,
		GatewayCall:         10 * time.Second,
		NotificationAttempt: 5 * time.Second,
		Commit:              5 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:         5 * time.Second,
		Service:             4 * time.Second,
		Webhook:             3 * time.Second,
		GatewayCall:         2 * time.Second,
		NotificationAttempt: 1 * time.Second,
		Commit:              1 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// ServiceContext creates a context with timeout for service layer operations
func (tc *TimeoutConfig) ServiceContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Service)
}

// WebhookContext creates a webhook reconcile context that survives the
// caller disconnecting but keeps the caller's values for tracing.
func (tc *TimeoutConfig) WebhookContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), tc.Webhook)
}

// GatewayContext creates a context for one gateway operation, retries included
func (tc *TimeoutConfig) GatewayContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.GatewayCall)
}

// NotificationContext creates a context for a single notification delivery attempt
func (tc *TimeoutConfig) NotificationContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.NotificationAttempt)
}

// CommitContext creates a context for a local write that must not be lost to
// the caller's cancellation or an exhausted service budget.
func (tc *TimeoutConfig) CommitContext(parent context.Context) (context.Context, context.CancelFunc) {
	commit := tc.Commit
	if commit <= 0 {
		commit = 5 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(parent), commit)
}
