package mocks

import (
	"context"
	"sync"

	"github.com/kevin07696/saju-payments/internal/domain/ports"
)

// MockNotificationDispatcher captures dispatched notifications
type MockNotificationDispatcher struct {
	mu   sync.Mutex
	sent []ports.ResultReadyNotification
}

var _ ports.NotificationDispatcher = (*MockNotificationDispatcher)(nil)

// NewMockNotificationDispatcher creates a new mock dispatcher
func NewMockNotificationDispatcher() *MockNotificationDispatcher {
	return &MockNotificationDispatcher{}
}

// Dispatch records the notification
func (m *MockNotificationDispatcher) Dispatch(_ context.Context, notification ports.ResultReadyNotification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, notification)
}

// Sent returns a snapshot of dispatched notifications
func (m *MockNotificationDispatcher) Sent() []ports.ResultReadyNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ResultReadyNotification(nil), m.sent...)
}
