package ports

import "context"

// ResultReadyNotification tells a user their purchased result is available
type ResultReadyNotification struct {
	MerchantUID string `json:"merchant_uid"`
	Phone       string `json:"phone"`
	UserName    string `json:"user_name"`
	ResultURL   string `json:"result_url"`
	UserID      int64  `json:"user_id"`
}

// NotificationDispatcher hands a notification to the delivery collaborator.
//
// Dispatch must not block on delivery and never reports delivery failures to
// the caller; retries and failure logging belong to the dispatcher. ctx
// supplies the trace to continue; its cancellation does not affect delivery.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, notification ResultReadyNotification)
}

// NotificationPublisher delivers one notification attempt to the outbound channel
type NotificationPublisher interface {
	Publish(ctx context.Context, notification ResultReadyNotification) error
}
