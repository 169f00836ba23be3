package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kevin07696/saju-payments/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPending(t *testing.T, s *OrderStore, uid string) *domain.PaymentOrder {
	t.Helper()
	order, err := s.Create(context.Background(), domain.NewOrder{
		MerchantUID: uid,
		UserID:      7,
		Amount:      9900,
		ProductType: domain.ProductTypeBasic,
	})
	require.NoError(t, err)
	return order
}

func TestOrderStore_Create(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()

	order := createPending(t, s, "saju_1000_7")
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)

	_, err := s.Create(ctx, domain.NewOrder{MerchantUID: "saju_1000_7", UserID: 8, Amount: 100, ProductType: domain.ProductTypePDF})
	assert.ErrorIs(t, err, domain.ErrOrderDuplicateKey)

	byID, err := s.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "saju_1000_7", byID.MerchantUID)

	_, err = s.GetByMerchantUID(ctx, "saju_missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = s.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderStore_NotFoundErrorsAreFresh(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()

	_, first := s.GetByMerchantUID(ctx, "saju_missing")
	_, second := s.GetByID(ctx, "missing")

	var a, b *domain.DomainError
	require.ErrorAs(t, first, &a)
	require.ErrorAs(t, second, &b)
	assert.NotSame(t, domain.ErrOrderNotFound, a)
	assert.NotSame(t, a, b)

	a.WithDetail("source", "webhook")
	assert.NotContains(t, domain.ErrOrderNotFound.Details, "source")
	assert.NotContains(t, b.Details, "source")
}

func TestApplyTransition_MatchesStoredRow(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()
	order := createPending(t, s, "saju_1000_7")

	ref := "imp_1"
	paidAt := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)
	fields := domain.TransitionFields{GatewayTransactionID: &ref, PaidAt: &paidAt}

	ok, err := s.CompareAndTransition(ctx, order.MerchantUID, domain.OrderStatusPending, domain.OrderStatusPaid, fields)
	require.NoError(t, err)
	require.True(t, ok)
	stored, err := s.GetByID(ctx, order.ID)
	require.NoError(t, err)

	local := order.Clone()
	local.ApplyTransition(domain.OrderStatusPaid, fields, stored.UpdatedAt)
	assert.Equal(t, stored, local)
}

func TestOrderStore_ReturnsCopies(t *testing.T) {
	s := NewOrderStore()
	order := createPending(t, s, "saju_1_1")

	order.Status = domain.OrderStatusPaid
	order.Amount = 1

	stored, err := s.GetByMerchantUID(context.Background(), "saju_1_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
	assert.Equal(t, int64(9900), stored.Amount)
}

func TestOrderStore_CompareAndTransition(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()
	createPending(t, s, "saju_1_1")

	ref := "imp_1"
	paidAt := time.Now().UTC()

	ok, err := s.CompareAndTransition(ctx, "saju_1_1", domain.OrderStatusPaid, domain.OrderStatusRefunded, domain.TransitionFields{})
	require.NoError(t, err)
	assert.False(t, ok, "expected status does not match")

	ok, err = s.CompareAndTransition(ctx, "saju_1_1", domain.OrderStatusPending, domain.OrderStatusPaid,
		domain.TransitionFields{GatewayTransactionID: &ref, PaidAt: &paidAt})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndTransition(ctx, "saju_1_1", domain.OrderStatusPending, domain.OrderStatusPaid,
		domain.TransitionFields{GatewayTransactionID: &ref, PaidAt: &paidAt})
	require.NoError(t, err)
	assert.False(t, ok, "second identical transition loses")

	other := "imp_2"
	refundedAt := paidAt.Add(time.Hour)
	ok, err = s.CompareAndTransition(ctx, "saju_1_1", domain.OrderStatusPaid, domain.OrderStatusRefunded,
		domain.TransitionFields{GatewayTransactionID: &other, RefundedAt: &refundedAt})
	require.NoError(t, err)
	assert.True(t, ok)

	order, err := s.GetByMerchantUID(ctx, "saju_1_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRefunded, order.Status)
	assert.Equal(t, "imp_1", order.GetGatewayTransactionID())
	assert.Equal(t, paidAt, *order.PaidAt)
	assert.Equal(t, refundedAt, *order.RefundedAt)

	ok, err = s.CompareAndTransition(ctx, "saju_1_1", domain.OrderStatusRefunded, domain.OrderStatusPaid, domain.TransitionFields{})
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrOrderInvalidState)

	ok, err = s.CompareAndTransition(ctx, "saju_missing", domain.OrderStatusPending, domain.OrderStatusPaid, domain.TransitionFields{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderStore_ConcurrentTransitionsHaveOneWinner(t *testing.T) {
	s := NewOrderStore()
	createPending(t, s, "saju_race")

	targets := []domain.OrderStatus{domain.OrderStatusPaid, domain.OrderStatusCancelled, domain.OrderStatusFailed}

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(next domain.OrderStatus) {
			defer wg.Done()
			now := time.Now().UTC()
			fields := domain.TransitionFields{}
			switch next {
			case domain.OrderStatusPaid:
				fields.PaidAt = &now
			case domain.OrderStatusCancelled:
				fields.CancelledAt = &now
			case domain.OrderStatusFailed:
				fields.FailedAt = &now
			}
			ok, err := s.CompareAndTransition(context.Background(), "saju_race", domain.OrderStatusPending, next, fields)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}(targets[i%len(targets)])
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestOrderStore_ListByStatus(t *testing.T) {
	s := NewOrderStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.nowFunc = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	createPending(t, s, "saju_a")
	createPending(t, s, "saju_b")
	createPending(t, s, "saju_c")

	orders, err := s.ListByStatus(context.Background(), domain.OrderStatusPending, base.Add(time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "saju_a", orders[0].MerchantUID)
	assert.Equal(t, "saju_b", orders[1].MerchantUID)

	orders, err = s.ListByStatus(context.Background(), domain.OrderStatusPending, base.Add(90*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	orders, err = s.ListByStatus(context.Background(), domain.OrderStatusPaid, base.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOrderStore_CanceledContext(t *testing.T) {
	s := NewOrderStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetByMerchantUID(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
