package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CursorRepository defines the interface for sync cursor data access.
// A cursor is only ever advanced after the page it covers has been
// persisted, so a crash between page and cursor re-fetches that page.
type CursorRepository interface {
	Get(ctx context.Context, accountID uint, provider string) (*models.SyncCursor, error)
	Upsert(ctx context.Context, accountID uint, provider, value string) error
	Delete(ctx context.Context, accountID uint, provider string) error
}

// cursorRepository implements CursorRepository using GORM
type cursorRepository struct {
	db *gorm.DB
}

// NewCursorRepository creates a new CursorRepository instance
func NewCursorRepository(db *gorm.DB) CursorRepository {
	return &cursorRepository{db: db}
}

// Get retrieves the cursor for an account/provider pair
func (r *cursorRepository) Get(ctx context.Context, accountID uint, provider string) (*models.SyncCursor, error) {
	var cursor models.SyncCursor
	result := r.db.WithContext(ctx).
		Where("account_id = ? AND provider = ?", accountID, provider).
		First(&cursor)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cursor: %w", result.Error)
	}
	return &cursor, nil
}

// Upsert inserts or replaces the cursor value for an account/provider pair
func (r *cursorRepository) Upsert(ctx context.Context, accountID uint, provider, value string) error {
	cursor := models.SyncCursor{
		AccountID: accountID,
		Provider:  provider,
		Value:     value,
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&cursor)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert cursor: %w", result.Error)
	}
	return nil
}

// Delete removes the cursor for an account/provider pair. Used when a
// provider invalidates its token family (IMAP UIDVALIDITY change).
func (r *cursorRepository) Delete(ctx context.Context, accountID uint, provider string) error {
	result := r.db.WithContext(ctx).
		Where("account_id = ? AND provider = ?", accountID, provider).
		Delete(&models.SyncCursor{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete cursor: %w", result.Error)
	}
	return nil
}
