package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/saju-payments/internal/domain"
	"github.com/kevin07696/saju-payments/internal/domain/ports"
)

const orderColumns = `id::text, merchant_uid, user_id, user_name, phone, amount, product_type, status,
	gateway_transaction_id, refund_reason, refunded_by_admin_id,
	created_at, updated_at, paid_at, failed_at, cancelled_at, refunded_at`

const insertOrderSQL = `
INSERT INTO payment_orders (id, merchant_uid, user_id, user_name, phone, amount, product_type, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
RETURNING ` + orderColumns

const getOrderByMerchantUIDSQL = `SELECT ` + orderColumns + ` FROM payment_orders WHERE merchant_uid = $1`

const getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM payment_orders WHERE id = $1`

// Timestamps and the gateway transaction id are only filled when NULL.
// The status predicate in WHERE is the compare half of the swap.
const compareAndTransitionSQL = `
UPDATE payment_orders SET
	status                 = $3,
	gateway_transaction_id = COALESCE(gateway_transaction_id, $4),
	paid_at                = COALESCE(paid_at, $5),
	failed_at              = COALESCE(failed_at, $6),
	cancelled_at           = COALESCE(cancelled_at, $7),
	refunded_at            = COALESCE(refunded_at, $8),
	refund_reason          = COALESCE($9, refund_reason),
	refunded_by_admin_id   = COALESCE($10, refunded_by_admin_id),
	updated_at             = now()
WHERE merchant_uid = $1 AND status = $2
RETURNING id`

const listOrdersByStatusSQL = `
SELECT ` + orderColumns + `
FROM payment_orders
WHERE status = $1 AND created_at < $2
ORDER BY created_at ASC
LIMIT $3`

// OrderStore implements ports.OrderStore on PostgreSQL
type OrderStore struct {
	pool *Pool
	db   ports.DBTX
}

// NewOrderStore creates a new order store
func NewOrderStore(pool *Pool) *OrderStore {
	return &OrderStore{pool: pool, db: pool.DB()}
}

var _ ports.OrderStore = (*OrderStore)(nil)

// Create inserts a pending order
func (s *OrderStore) Create(ctx context.Context, order domain.NewOrder) (*domain.PaymentOrder, error) {
	ctx, cancel := s.pool.simpleQueryContext(ctx)
	defer cancel()

	id := order.ID
	if id == "" {
		id = uuid.New().String()
	}

	row := s.db.QueryRow(ctx, insertOrderSQL,
		id,
		order.MerchantUID,
		order.UserID,
		nullText(order.UserName),
		nullText(order.Phone),
		order.Amount,
		string(order.ProductType),
	)

	created, err := scanOrder(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.WrapError(domain.ErrorCodeOrderDuplicateKey,
				fmt.Sprintf("merchant_uid %s already exists", order.MerchantUID), err)
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "create order", err)
	}
	return created, nil
}

// GetByMerchantUID retrieves an order by its merchant UID
func (s *OrderStore) GetByMerchantUID(ctx context.Context, merchantUID string) (*domain.PaymentOrder, error) {
	ctx, cancel := s.pool.simpleQueryContext(ctx)
	defer cancel()

	order, err := scanOrder(s.db.QueryRow(ctx, getOrderByMerchantUIDSQL, merchantUID))
	if err != nil {
		return nil, mapReadError("get order by merchant uid", merchantUID, err)
	}
	return order, nil
}

// GetByID retrieves an order by its ID
func (s *OrderStore) GetByID(ctx context.Context, id string) (*domain.PaymentOrder, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NewOrderNotFoundError(id)
	}

	ctx, cancel := s.pool.simpleQueryContext(ctx)
	defer cancel()

	order, err := scanOrder(s.db.QueryRow(ctx, getOrderByIDSQL, id))
	if err != nil {
		return nil, mapReadError("get order by id", id, err)
	}
	return order, nil
}

// CompareAndTransition moves the order from expected to next in a single UPDATE
func (s *OrderStore) CompareAndTransition(ctx context.Context, merchantUID string, expected, next domain.OrderStatus, fields domain.TransitionFields) (bool, error) {
	if !domain.CanTransition(expected, next) {
		return false, domain.NewDomainError(domain.ErrorCodeOrderInvalidState,
			fmt.Sprintf("transition %s -> %s is not allowed", expected, next))
	}

	ctx, cancel := s.pool.simpleQueryContext(ctx)
	defer cancel()

	var id string
	err := s.db.QueryRow(ctx, compareAndTransitionSQL,
		merchantUID,
		string(expected),
		string(next),
		nullTextPtr(fields.GatewayTransactionID),
		nullTimestamp(fields.PaidAt),
		nullTimestamp(fields.FailedAt),
		nullTimestamp(fields.CancelledAt),
		nullTimestamp(fields.RefundedAt),
		nullTextPtr(fields.RefundReason),
		nullTextPtr(fields.RefundedByAdminID),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, domain.WrapError(domain.ErrorCodeDatabaseError, "compare and transition", err)
	}
	return true, nil
}

// ListByStatus lists orders in a status created before olderThan
func (s *OrderStore) ListByStatus(ctx context.Context, status domain.OrderStatus, olderThan time.Time, limit int32) ([]*domain.PaymentOrder, error) {
	ctx, cancel := s.pool.reportQueryContext(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, listOrdersByStatusSQL, string(status), olderThan.UTC(), limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list orders by status", err)
	}
	defer rows.Close()

	orders := make([]*domain.PaymentOrder, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "iterate orders", err)
	}
	return orders, nil
}

func mapReadError(op, key string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewOrderNotFoundError(key)
	}
	return domain.WrapError(domain.ErrorCodeDatabaseError, op, err)
}

// scanOrder converts a row selected with orderColumns to a domain model
func scanOrder(row pgx.Row) (*domain.PaymentOrder, error) {
	var order domain.PaymentOrder
	var productType, status string
	var userName, phone, gatewayTxnID, refundReason, refundedBy pgtype.Text
	var paidAt, failedAt, cancelledAt, refundedAt pgtype.Timestamptz

	err := row.Scan(
		&order.ID,
		&order.MerchantUID,
		&order.UserID,
		&userName,
		&phone,
		&order.Amount,
		&productType,
		&status,
		&gatewayTxnID,
		&refundReason,
		&refundedBy,
		&order.CreatedAt,
		&order.UpdatedAt,
		&paidAt,
		&failedAt,
		&cancelledAt,
		&refundedAt,
	)
	if err != nil {
		return nil, err
	}

	order.UserName = userName.String
	order.Phone = phone.String
	order.ProductType = domain.ProductType(productType)
	order.Status = domain.OrderStatus(status)
	order.GatewayTransactionID = textPtr(gatewayTxnID)
	order.RefundReason = textPtr(refundReason)
	order.RefundedByAdminID = textPtr(refundedBy)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	order.PaidAt = timestampPtr(paidAt)
	order.FailedAt = timestampPtr(failedAt)
	order.CancelledAt = timestampPtr(cancelledAt)
	order.RefundedAt = timestampPtr(refundedAt)

	return &order, nil
}
