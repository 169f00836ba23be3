// Package kafka publishes result-ready notification tasks for the delivery worker.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/kevin07696/saju-payments/internal/domain/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config contains configuration for the Kafka producer
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
	// Retries performed by sarama for one send
	MaxRetries int
}

// resultReadyEvent is the message body consumed by the delivery worker
type resultReadyEvent struct {
	EventType string `json:"event_type"`
	ports.ResultReadyNotification
	OccurredAt time.Time `json:"occurred_at"`
}

// NotificationPublisher implements ports.NotificationPublisher on a sarama SyncProducer
type NotificationPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

var _ ports.NotificationPublisher = (*NotificationPublisher)(nil)

// NewSyncProducer builds a producer that waits for all in-sync replicas
func NewSyncProducer(cfg Config, logger *zap.Logger) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = cfg.MaxRetries

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)
	return producer, nil
}

// NewNotificationPublisher wraps producer. The publisher owns the producer and closes it.
func NewNotificationPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *NotificationPublisher {
	return &NotificationPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Publish sends one notification task keyed by merchant UID
func (p *NotificationPublisher) Publish(ctx context.Context, notification ports.ResultReadyNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(resultReadyEvent{
		EventType:               "result_ready",
		ResultReadyNotification: notification,
		OccurredAt:              time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// Inject trace context into Kafka message headers
	carrier := make(headerCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)

	msg := &sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(notification.MerchantUID),
		Value:   sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader(carrier),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send notification for %s: %w", notification.MerchantUID, err)
	}

	traceID := ""
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		traceID = sc.TraceID().String()
	}

	p.logger.Debug("Notification task published",
		zap.String("trace_id", traceID),
		zap.String("topic", p.topic),
		zap.String("merchant_uid", notification.MerchantUID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer
func (p *NotificationPublisher) Close() error {
	return p.producer.Close()
}

// headerCarrier adapts Kafka record headers to propagation.TextMapCarrier
type headerCarrier []sarama.RecordHeader

func (c headerCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{
		Key:   []byte(key),
		Value: []byte(value),
	})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
