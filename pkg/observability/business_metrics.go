package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_orders_created_total",
		Help: "Total number of payment orders created",
	}, []string{
		"product_type", // basic, pdf, premium
	})

	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Total reconciliation attempts by signal source and outcome",
	}, []string{
		"source",  // verify, webhook
		"outcome", // transitioned, duplicate, or an error code
	})

	reconciliationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_reconciliation_duration_seconds",
		Help:    "Time to reconcile a completion signal, gateway call included",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{
		"source",
	})

	paidAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_paid_amount_total",
		Help: "Sum of amounts of orders transitioned to paid, smallest currency unit",
	}, []string{
		"product_type",
	})

	securityEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_security_events_total",
		Help: "Completion signals rejected as forged or tampered",
	}, []string{
		"event",  // forged_completion, gateway_mismatch
		"source", // verify, webhook
	})

	refundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_refunds_total",
		Help: "Total refund attempts",
	}, []string{
		"status", // refunded, rejected
	})

	manualReconciliationTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_manual_gateway_reconciliation_total",
		Help: "Refunds recorded locally whose gateway cancellation failed",
	})

	gatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_requests_total",
		Help: "Payment gateway API calls",
	}, []string{
		"operation", // get_token, fetch, cancel, prepare
		"status",    // success, error code
	})

	gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_duration_seconds",
		Help:    "Payment gateway API call latency, retries included",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{
		"operation",
	})

	gatewayCircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payment_gateway_circuit_state",
		Help: "Gateway circuit breaker state (0=closed, 1=open, 2=half-open)",
	})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_notifications_total",
		Help: "Result-ready notification delivery outcomes",
	}, []string{
		"status", // delivered, retrying, failed, dropped
	})

	notificationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payment_notification_queue_depth",
		Help: "Notifications waiting for a delivery worker",
	})

	stalePendingOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payment_stale_pending_orders",
		Help: "Pending orders older than the stale threshold at the last scan",
	})
)

// RecordOrderCreated records a new pending order
func RecordOrderCreated(productType string) {
	ordersCreatedTotal.WithLabelValues(productType).Inc()
}

// RecordReconciliation records one reconcile call
func RecordReconciliation(source, outcome string, duration float64) {
	reconciliationsTotal.WithLabelValues(source, outcome).Inc()
	reconciliationDuration.WithLabelValues(source).Observe(duration)
}

// RecordPaid records revenue for a fresh paid transition
func RecordPaid(productType string, amount int64) {
	paidAmountTotal.WithLabelValues(productType).Add(float64(amount))
}

// RecordSecurityEvent records a rejected forged or tampered completion signal
func RecordSecurityEvent(event, source string) {
	securityEventsTotal.WithLabelValues(event, source).Inc()
}

// RecordRefund records a refund attempt
func RecordRefund(status string) {
	refundsTotal.WithLabelValues(status).Inc()
}

// RecordManualReconciliationRequired records a refund whose gateway cancel must be repeated by hand
func RecordManualReconciliationRequired() {
	manualReconciliationTotal.Inc()
}

// RecordGatewayRequest records one logical gateway operation
func RecordGatewayRequest(operation, status string, duration float64) {
	gatewayRequestsTotal.WithLabelValues(operation, status).Inc()
	gatewayRequestDuration.WithLabelValues(operation).Observe(duration)
}

// SetGatewayCircuitState publishes the breaker state
func SetGatewayCircuitState(state int) {
	gatewayCircuitState.Set(float64(state))
}

// RecordNotification records a notification delivery outcome
func RecordNotification(status string) {
	notificationsTotal.WithLabelValues(status).Inc()
}

// SetNotificationQueueDepth publishes the dispatcher backlog
func SetNotificationQueueDepth(depth int) {
	notificationQueueDepth.Set(float64(depth))
}

// SetStalePendingOrders publishes the size of the last stale pending scan
func SetStalePendingOrders(count int) {
	stalePendingOrders.Set(float64(count))
}
