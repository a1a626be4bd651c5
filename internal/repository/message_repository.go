package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository defines the interface for canonical message data access.
// Upsert is the single dedup primitive: every ingestion path goes through
// the unique constraint on provider_message_id.
type MessageRepository interface {
	Upsert(ctx context.Context, message *models.Message) (inserted bool, err error)
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error)
	AttachThread(ctx context.Context, messageID, threadID uint) error
	ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]models.MessageListItem, int64, error)
	MarkAsRead(ctx context.Context, id uint) error
	MarkAsUnread(ctx context.Context, id uint) error
	SoftDelete(ctx context.Context, id uint) error
	CountUnread(ctx context.Context, accountID uint) (int64, error)
}

// messageRepository implements MessageRepository using GORM
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository instance
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Upsert inserts the message if its provider message ID has never been seen,
// otherwise merges the mutable fields into the existing row. INSERT ... ON
// CONFLICT DO NOTHING leaves RowsAffected at zero on a re-observation, which
// is the only signal the caller needs to suppress downstream dispatch.
func (r *messageRepository) Upsert(ctx context.Context, message *models.Message) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_message_id"}},
		DoNothing: true,
	}).Create(message)
	if result.Error != nil {
		return false, fmt.Errorf("failed to upsert message: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// Re-observation: merge mutable fields onto the canonical row.
	updates := map[string]interface{}{
		"is_read": message.IsRead,
	}
	if message.Snippet != "" {
		updates["snippet"] = message.Snippet
	}
	if message.BodyText != "" {
		updates["body_text"] = message.BodyText
	}
	if message.BodyHTML != "" {
		updates["body_html"] = message.BodyHTML
	}
	merge := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("provider_message_id = ?", message.ProviderMessageID).
		Updates(updates)
	if merge.Error != nil {
		return false, fmt.Errorf("failed to merge message: %w", merge.Error)
	}
	return false, nil
}

// AttachThread links a freshly inserted message to its thread row
func (r *messageRepository) AttachThread(ctx context.Context, messageID, threadID uint) error {
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("thread_id", threadID)
	if result.Error != nil {
		return fmt.Errorf("failed to attach thread: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a message by its ID, excluding soft-deleted rows
func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	result := r.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		First(&message, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message by ID: %w", result.Error)
	}
	return &message, nil
}

// GetByProviderMessageID retrieves a message by its global provider ID
func (r *messageRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error) {
	var message models.Message
	result := r.db.WithContext(ctx).
		Where("provider_message_id = ?", providerMessageID).
		First(&message)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message by provider ID: %w", result.Error)
	}
	return &message, nil
}

// ListByAccount retrieves messages for an account with pagination, ordered by
// received_at descending, excluding soft-deleted rows
func (r *messageRepository) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]models.MessageListItem, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("account_id = ? AND is_deleted = ?", accountID, false).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	var results []models.MessageListItem
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("id, account_id, sender_email, sender_name, subject, snippet, category, is_read, received_at").
		Where("account_id = ? AND is_deleted = ?", accountID, false).
		Order("received_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(&results)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", result.Error)
	}
	return results, total, nil
}

// MarkAsRead marks a message as read
func (r *messageRepository) MarkAsRead(ctx context.Context, id uint) error {
	return r.setRead(ctx, id, true)
}

// MarkAsUnread marks a message as unread
func (r *messageRepository) MarkAsUnread(ctx context.Context, id uint) error {
	return r.setRead(ctx, id, false)
}

func (r *messageRepository) setRead(ctx context.Context, id uint, read bool) error {
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Update("is_read", read)
	if result.Error != nil {
		return fmt.Errorf("failed to update read state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete hides a message from the read surface. Sync never calls this;
// the canonical row stays so the dedup constraint keeps holding.
func (r *messageRepository) SoftDelete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Update("is_deleted", true)
	if result.Error != nil {
		return fmt.Errorf("failed to delete message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUnread counts unread messages for an account
func (r *messageRepository) CountUnread(ctx context.Context, accountID uint) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("account_id = ? AND is_read = ? AND is_deleted = ?", accountID, false, false).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", result.Error)
	}
	return count, nil
}
