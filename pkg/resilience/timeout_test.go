package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutHierarchyPreservation(t *testing.T) {
	for name, cfg := range map[string]*TimeoutConfig{
		"default": DefaultTimeoutConfig(),
		"test":    TestTimeoutConfig(),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Less(t, cfg.Service, cfg.HTTPHandler)
			assert.Less(t, cfg.GatewayCall, cfg.Service)
			assert.Less(t, cfg.GatewayCall, cfg.Webhook)
			assert.Less(t, cfg.NotificationAttempt, cfg.GatewayCall)
		})
	}
}

func TestContextCreators(t *testing.T) {
	cfg := TestTimeoutConfig()

	tests := []struct {
		name     string
		create   func(context.Context) (context.Context, context.CancelFunc)
		expected time.Duration
	}{
		{"HandlerContext", cfg.HandlerContext, cfg.HTTPHandler},
		{"ServiceContext", cfg.ServiceContext, cfg.Service},
		{"WebhookContext", cfg.WebhookContext, cfg.Webhook},
		{"GatewayContext", cfg.GatewayContext, cfg.GatewayCall},
		{"NotificationContext", cfg.NotificationContext, cfg.NotificationAttempt},
		{"CommitContext", cfg.CommitContext, cfg.Commit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			ctx, cancel := tt.create(context.Background())
			defer cancel()

			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, start.Add(tt.expected), deadline, 100*time.Millisecond)
		})
	}
}

func TestWebhookContext_SurvivesParentCancellation(t *testing.T) {
	cfg := TestTimeoutConfig()

	type key struct{}
	parent, cancelParent := context.WithCancel(context.WithValue(context.Background(), key{}, "trace"))
	ctx, cancel := cfg.WebhookContext(parent)
	defer cancel()

	cancelParent()

	assert.NoError(t, ctx.Err())
	assert.Equal(t, "trace", ctx.Value(key{}))
}

func TestServiceContext_PropagatesCancellation(t *testing.T) {
	cfg := DefaultTimeoutConfig()
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := cfg.ServiceContext(parent)
	defer cancel()

	cancelParent()

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("child context was not cancelled")
	}
}

func TestCommitContext_SurvivesExpiredParent(t *testing.T) {
	cfg := TestTimeoutConfig()
	parent, cancelParent := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancelParent()
	<-parent.Done()

	ctx, cancel := cfg.CommitContext(parent)
	defer cancel()

	assert.NoError(t, ctx.Err())
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(cfg.Commit), deadline, 100*time.Millisecond)
}

func TestCommitContext_DefaultsWhenUnset(t *testing.T) {
	cfg := &TimeoutConfig{}
	ctx, cancel := cfg.CommitContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, 100*time.Millisecond)
}
