package mocks

import (
	"sync"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
)

// NotificationRecord records a notification delivered to the mock notifier
type NotificationRecord struct {
	AccountID uint
	Message   *models.Message
}

// MockNotifier implements sync.Notifier and records every delivery. Safe
// for concurrent use; the engine notifies from sync goroutines.
type MockNotifier struct {
	mu            sync.Mutex
	Notifications []NotificationRecord
}

// NewMockNotifier creates a new MockNotifier instance
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{
		Notifications: make([]NotificationRecord, 0),
	}
}

// NotifyNewMessage records a new-message notification
func (m *MockNotifier) NotifyNewMessage(accountID uint, message *models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, NotificationRecord{
		AccountID: accountID,
		Message:   message,
	})
}

// GetNotifications returns all recorded notifications
func (m *MockNotifier) GetNotifications() []NotificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NotificationRecord, len(m.Notifications))
	copy(out, m.Notifications)
	return out
}

// ClearNotifications clears all recorded notifications
func (m *MockNotifier) ClearNotifications() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = m.Notifications[:0]
}
