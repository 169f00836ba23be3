package notification

import (
	"context"

	"github.com/kevin07696/saju-payments/internal/domain/ports"
)

// LogPublisher records notifications in the log instead of sending them.
// Used when no message broker is configured.
type LogPublisher struct {
	logger ports.Logger
}

var _ ports.NotificationPublisher = (*LogPublisher)(nil)

// NewLogPublisher creates a log-only publisher
func NewLogPublisher(logger ports.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the notification
func (p *LogPublisher) Publish(ctx context.Context, notification ports.ResultReadyNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.Info("Result ready notification",
		ports.String("merchant_uid", notification.MerchantUID),
		ports.Int64("user_id", notification.UserID),
		ports.String("result_url", notification.ResultURL),
	)
	return nil
}
