// Package notification delivers result-ready notifications off the request path.
package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kevin07696/saju-payments/internal/domain/ports"
	"github.com/kevin07696/saju-payments/pkg/observability"
	"github.com/kevin07696/saju-payments/pkg/resilience"
	"go.opentelemetry.io/otel/trace"
)

// ErrDispatcherStopped is logged for notifications dispatched after shutdown began
var ErrDispatcherStopped = errors.New("notification dispatcher stopped")

// Config contains configuration for the dispatcher
type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
}

// DefaultConfig returns default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		QueueSize:   1000,
		MaxAttempts: 5,
	}
}

// Dispatcher implements ports.NotificationDispatcher with a bounded queue
// drained by a fixed worker pool. Each delivery is retried with backoff;
// failures are logged and never reach the caller.
type Dispatcher struct {
	publisher ports.NotificationPublisher
	logger    ports.Logger
	timeouts  *resilience.TimeoutConfig
	backoff   resilience.BackoffStrategy
	config    Config

	queue   chan queued
	stopped chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ ports.NotificationDispatcher = (*Dispatcher)(nil)

// queued pairs a notification with the trace it was dispatched under
type queued struct {
	notification ports.ResultReadyNotification
	spanContext  trace.SpanContext
}

// NewDispatcher creates a dispatcher. Call Start before dispatching.
func NewDispatcher(publisher ports.NotificationPublisher, cfg Config, timeouts *resilience.TimeoutConfig, logger ports.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}

	return &Dispatcher{
		publisher: publisher,
		logger:    logger,
		timeouts:  timeouts,
		backoff:   resilience.NotificationBackoff(),
		config:    cfg,
		queue:     make(chan queued, cfg.QueueSize),
		stopped:   make(chan struct{}),
	}
}

// Start launches the worker pool
func (d *Dispatcher) Start() {
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("Notification dispatcher started",
		ports.Int("workers", d.config.Workers),
		ports.Int("queue_size", d.config.QueueSize),
	)
}

// Dispatch enqueues a notification without blocking. A full queue drops the
// notification with an error log; the order state is unaffected either way.
func (d *Dispatcher) Dispatch(ctx context.Context, notification ports.ResultReadyNotification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Error("Dropping notification",
			ports.String("merchant_uid", notification.MerchantUID),
			ports.Err(ErrDispatcherStopped),
		)
		observability.RecordNotification("dropped")
		return
	}

	select {
	case d.queue <- queued{notification: notification, spanContext: trace.SpanContextFromContext(ctx)}:
		observability.SetNotificationQueueDepth(len(d.queue))
	default:
		d.logger.Error("Notification queue full, dropping notification",
			ports.String("merchant_uid", notification.MerchantUID),
			ports.Int("queue_size", d.config.QueueSize),
		)
		observability.RecordNotification("dropped")
	}
}

// Shutdown stops accepting notifications and waits for queued ones to be
// delivered. When ctx expires first, pending retries are abandoned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Notification dispatcher drained")
		return nil
	case <-ctx.Done():
		close(d.stopped)
		d.logger.Warn("Notification dispatcher shutdown timed out",
			ports.Int("pending", len(d.queue)),
		)
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for item := range d.queue {
		observability.SetNotificationQueueDepth(len(d.queue))
		d.deliver(id, item)
	}
}

// deliver retries one notification until it succeeds, attempts run out or the
// dispatcher is force-stopped
func (d *Dispatcher) deliver(workerID int, item queued) {
	notification := item.notification
	parent := trace.ContextWithSpanContext(context.Background(), item.spanContext)

	var lastErr error
	for attempt := 0; attempt < d.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := d.backoff.NextDelay(attempt - 1)
			select {
			case <-d.stopped:
				d.logger.Error("Notification abandoned during shutdown",
					ports.String("merchant_uid", notification.MerchantUID),
					ports.Int("attempts", attempt),
					ports.Err(lastErr),
				)
				observability.RecordNotification("abandoned")
				return
			case <-time.After(delay):
			}
		}

		ctx, cancel := d.timeouts.NotificationContext(parent)
		lastErr = d.publisher.Publish(ctx, notification)
		cancel()

		if lastErr == nil {
			d.logger.Info("Notification delivered",
				ports.String("merchant_uid", notification.MerchantUID),
				ports.Int64("user_id", notification.UserID),
				ports.Int("attempts", attempt+1),
				ports.Int("worker", workerID),
			)
			observability.RecordNotification("delivered")
			return
		}

		d.logger.Warn("Notification attempt failed",
			ports.String("merchant_uid", notification.MerchantUID),
			ports.Int("attempt", attempt+1),
			ports.Err(lastErr),
		)
		observability.RecordNotification("retry")
	}

	d.logger.Error("Notification delivery failed after retries",
		ports.String("merchant_uid", notification.MerchantUID),
		ports.Int64("user_id", notification.UserID),
		ports.Int("attempts", d.config.MaxAttempts),
		ports.Err(lastErr),
	)
	observability.RecordNotification("failed")
}
