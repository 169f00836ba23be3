// Package memory provides an in-process OrderStore for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/saju-payments/internal/domain"
	"github.com/kevin07696/saju-payments/internal/domain/ports"
)

// OrderStore keeps orders in a mutex-guarded map. The mutex makes each
// CompareAndTransition atomic, matching the single-UPDATE semantics of the
// PostgreSQL store.
type OrderStore struct {
	mu      sync.RWMutex
	byUID   map[string]*domain.PaymentOrder
	byID    map[string]string // id -> merchant uid
	nowFunc func() time.Time
}

// NewOrderStore creates an empty store
func NewOrderStore() *OrderStore {
	return &OrderStore{
		byUID:   make(map[string]*domain.PaymentOrder),
		byID:    make(map[string]string),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

var _ ports.OrderStore = (*OrderStore)(nil)

// Create inserts a pending order
func (s *OrderStore) Create(ctx context.Context, order domain.NewOrder) (*domain.PaymentOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUID[order.MerchantUID]; exists {
		return nil, domain.NewDomainError(domain.ErrorCodeOrderDuplicateKey,
			fmt.Sprintf("merchant_uid %s already exists", order.MerchantUID))
	}

	id := order.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := s.nowFunc()

	stored := &domain.PaymentOrder{
		ID:          id,
		MerchantUID: order.MerchantUID,
		UserID:      order.UserID,
		UserName:    order.UserName,
		Phone:       order.Phone,
		Amount:      order.Amount,
		ProductType: order.ProductType,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.byUID[order.MerchantUID] = stored
	s.byID[id] = order.MerchantUID

	return stored.Clone(), nil
}

// GetByMerchantUID retrieves an order by its merchant UID
func (s *OrderStore) GetByMerchantUID(ctx context.Context, merchantUID string) (*domain.PaymentOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.byUID[merchantUID]
	if !ok {
		return nil, domain.NewOrderNotFoundError(merchantUID)
	}
	return order.Clone(), nil
}

// GetByID retrieves an order by its ID
func (s *OrderStore) GetByID(ctx context.Context, id string) (*domain.PaymentOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	uid, ok := s.byID[id]
	if !ok {
		return nil, domain.NewOrderNotFoundError(id)
	}
	return s.byUID[uid].Clone(), nil
}

// CompareAndTransition moves the order from expected to next under the store lock
func (s *OrderStore) CompareAndTransition(ctx context.Context, merchantUID string, expected, next domain.OrderStatus, fields domain.TransitionFields) (bool, error) {
	if !domain.CanTransition(expected, next) {
		return false, domain.NewDomainError(domain.ErrorCodeOrderInvalidState,
			fmt.Sprintf("transition %s -> %s is not allowed", expected, next))
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.byUID[merchantUID]
	if !ok || order.Status != expected {
		return false, nil
	}

	order.ApplyTransition(next, fields, s.nowFunc())

	return true, nil
}

// ListByStatus lists orders in a status created before olderThan, oldest first
func (s *OrderStore) ListByStatus(ctx context.Context, status domain.OrderStatus, olderThan time.Time, limit int32) ([]*domain.PaymentOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*domain.PaymentOrder, 0)
	for _, order := range s.byUID {
		if order.Status == status && order.CreatedAt.Before(olderThan) {
			orders = append(orders, order.Clone())
		}
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	if limit > 0 && len(orders) > int(limit) {
		orders = orders[:limit]
	}
	return orders, nil
}
