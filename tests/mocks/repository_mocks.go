package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"github.com/lodestone-crm/lodestone-backend/internal/sync"
)

// MockAccountRepository implements repository.AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

// Create creates a new email account
func (m *MockAccountRepository) Create(ctx context.Context, account *models.EmailAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// GetByID retrieves an account by its ID
func (m *MockAccountRepository) GetByID(ctx context.Context, id uint) (*models.EmailAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailAccount), args.Error(1)
}

// GetByEmail retrieves an account by its email address
func (m *MockAccountRepository) GetByEmail(ctx context.Context, address string) (*models.EmailAccount, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailAccount), args.Error(1)
}

// GetBySubscriptionID retrieves the account owning a push subscription
func (m *MockAccountRepository) GetBySubscriptionID(ctx context.Context, subID string) (*models.EmailAccount, error) {
	args := m.Called(ctx, subID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailAccount), args.Error(1)
}

// List retrieves accounts with pagination
func (m *MockAccountRepository) List(ctx context.Context, limit, offset int) ([]models.EmailAccount, int64, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.EmailAccount), args.Get(1).(int64), args.Error(2)
}

// ListSchedulable retrieves accounts due for a poll
func (m *MockAccountRepository) ListSchedulable(ctx context.Context, now time.Time) ([]models.EmailAccount, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EmailAccount), args.Error(1)
}

// Update updates an existing account
func (m *MockAccountRepository) Update(ctx context.Context, account *models.EmailAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// UpdateCredentials replaces the account's credential reference
func (m *MockAccountRepository) UpdateCredentials(ctx context.Context, id uint, credentialRef string) error {
	args := m.Called(ctx, id, credentialRef)
	return args.Error(0)
}

// Deactivate disables an account
func (m *MockAccountRepository) Deactivate(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// SetRealtime toggles push notifications for an account
func (m *MockAccountRepository) SetRealtime(ctx context.Context, id uint, enabled bool) error {
	args := m.Called(ctx, id, enabled)
	return args.Error(0)
}

// SetSubscription records push subscription details
func (m *MockAccountRepository) SetSubscription(ctx context.Context, id uint, subID, clientState string, expiry *time.Time) error {
	args := m.Called(ctx, id, subID, clientState, expiry)
	return args.Error(0)
}

// TryBeginSync attempts to take the per-account sync lock
func (m *MockAccountRepository) TryBeginSync(ctx context.Context, id uint) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// FinishSyncSuccess releases the sync lock after a successful run
func (m *MockAccountRepository) FinishSyncSuccess(ctx context.Context, id uint, at time.Time, nextSyncAt time.Time) error {
	args := m.Called(ctx, id, at, nextSyncAt)
	return args.Error(0)
}

// FinishSyncFailure releases the sync lock into the failed state
func (m *MockAccountRepository) FinishSyncFailure(ctx context.Context, id uint, syncErr string, failures int, nextSyncAt time.Time) error {
	args := m.Called(ctx, id, syncErr, failures, nextSyncAt)
	return args.Error(0)
}

// FinishSyncAuthExpired releases the sync lock into the auth_expired state
func (m *MockAccountRepository) FinishSyncAuthExpired(ctx context.Context, id uint, syncErr string) error {
	args := m.Called(ctx, id, syncErr)
	return args.Error(0)
}

// MockMessageRepository implements repository.MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Upsert inserts or merges a message
func (m *MockMessageRepository) Upsert(ctx context.Context, message *models.Message) (bool, error) {
	args := m.Called(ctx, message)
	return args.Bool(0), args.Error(1)
}

// GetByID retrieves a message by its ID
func (m *MockMessageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

// GetByProviderMessageID retrieves a message by its global provider ID
func (m *MockMessageRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error) {
	args := m.Called(ctx, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

// AttachThread links a message to its thread
func (m *MockMessageRepository) AttachThread(ctx context.Context, messageID, threadID uint) error {
	args := m.Called(ctx, messageID, threadID)
	return args.Error(0)
}

// ListByAccount retrieves messages for an account with pagination
func (m *MockMessageRepository) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]models.MessageListItem, int64, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.MessageListItem), args.Get(1).(int64), args.Error(2)
}

// MarkAsRead marks a message as read
func (m *MockMessageRepository) MarkAsRead(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MarkAsUnread marks a message as unread
func (m *MockMessageRepository) MarkAsUnread(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// SoftDelete hides a message from the read surface
func (m *MockMessageRepository) SoftDelete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// CountUnread counts unread messages for an account
func (m *MockMessageRepository) CountUnread(ctx context.Context, accountID uint) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

// MockThreadRepository implements repository.ThreadRepository
type MockThreadRepository struct {
	mock.Mock
}

// Upsert creates or bumps a thread aggregate
func (m *MockThreadRepository) Upsert(ctx context.Context, accountID uint, providerThreadID, subject, lastSender string, lastMessageAt time.Time) (uint, error) {
	args := m.Called(ctx, accountID, providerThreadID, subject, lastSender, lastMessageAt)
	return args.Get(0).(uint), args.Error(1)
}

// GetByID retrieves a thread by its ID
func (m *MockThreadRepository) GetByID(ctx context.Context, id uint) (*models.Thread, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

// ListByAccount retrieves threads for an account with pagination
func (m *MockThreadRepository) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]models.Thread, int64, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.Thread), args.Get(1).(int64), args.Error(2)
}

// MockCursorRepository implements repository.CursorRepository
type MockCursorRepository struct {
	mock.Mock
}

// Get retrieves the cursor for an account/provider pair
func (m *MockCursorRepository) Get(ctx context.Context, accountID uint, provider string) (*models.SyncCursor, error) {
	args := m.Called(ctx, accountID, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncCursor), args.Error(1)
}

// Upsert inserts or replaces the cursor value
func (m *MockCursorRepository) Upsert(ctx context.Context, accountID uint, provider, value string) error {
	args := m.Called(ctx, accountID, provider, value)
	return args.Error(0)
}

// Delete removes the cursor for an account/provider pair
func (m *MockCursorRepository) Delete(ctx context.Context, accountID uint, provider string) error {
	args := m.Called(ctx, accountID, provider)
	return args.Error(0)
}

// MockSyncEngine implements handlers.SyncEngine
type MockSyncEngine struct {
	mock.Mock
}

// RunSync runs a sync for an account
func (m *MockSyncEngine) RunSync(ctx context.Context, accountID uint, mode sync.Mode) (*sync.Summary, error) {
	args := m.Called(ctx, accountID, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.Summary), args.Error(1)
}

// RegisterPush enables provider push for an account
func (m *MockSyncEngine) RegisterPush(ctx context.Context, accountID uint, notificationURL string) error {
	args := m.Called(ctx, accountID, notificationURL)
	return args.Error(0)
}
