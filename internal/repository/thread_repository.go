package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ThreadRepository defines the interface for conversation thread data access
type ThreadRepository interface {
	Upsert(ctx context.Context, accountID uint, providerThreadID, subject, lastSender string, lastMessageAt time.Time) (uint, error)
	GetByID(ctx context.Context, id uint) (*models.Thread, error)
	ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]models.Thread, int64, error)
}

// threadRepository implements ThreadRepository using GORM
type threadRepository struct {
	db *gorm.DB
}

// NewThreadRepository creates a new ThreadRepository instance
func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepository{db: db}
}

// Upsert creates the thread on first sight or folds a new message into an
// existing one, bumping message_count in the database so concurrent inserts
// do not lose increments. The count tracks inserts, not the messages table,
// and is eventually consistent with it.
func (r *threadRepository) Upsert(ctx context.Context, accountID uint, providerThreadID, subject, lastSender string, lastMessageAt time.Time) (uint, error) {
	thread := models.Thread{
		AccountID:        accountID,
		ProviderThreadID: providerThreadID,
		Subject:          subject,
		LastSender:       lastSender,
		MessageCount:     1,
		LastMessageAt:    lastMessageAt,
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "provider_thread_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"message_count":   gorm.Expr("message_count + ?", 1),
			"last_sender":     lastSender,
			"last_message_at": lastMessageAt,
		}),
	}).Create(&thread)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to upsert thread: %w", result.Error)
	}

	// On conflict the insert does not report the existing row's ID.
	if thread.ID == 0 {
		var existing models.Thread
		if err := r.db.WithContext(ctx).
			Select("id").
			Where("account_id = ? AND provider_thread_id = ?", accountID, providerThreadID).
			First(&existing).Error; err != nil {
			return 0, fmt.Errorf("failed to resolve thread ID: %w", err)
		}
		return existing.ID, nil
	}
	return thread.ID, nil
}

// GetByID retrieves a thread by its ID
func (r *threadRepository) GetByID(ctx context.Context, id uint) (*models.Thread, error) {
	var thread models.Thread
	result := r.db.WithContext(ctx).First(&thread, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get thread by ID: %w", result.Error)
	}
	return &thread, nil
}

// ListByAccount retrieves threads for an account ordered by last activity
func (r *threadRepository) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]models.Thread, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Thread{}).
		Where("account_id = ?", accountID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count threads: %w", err)
	}

	var threads []models.Thread
	result := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("last_message_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&threads)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list threads: %w", result.Error)
	}
	return threads, total, nil
}
