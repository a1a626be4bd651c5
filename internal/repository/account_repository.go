package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"gorm.io/gorm"
)

// AccountRepository defines the interface for email account data access.
// TryBeginSync/FinishSync implement the per-account mutual exclusion lock
// as a database compare-and-set so that it holds across processes.
type AccountRepository interface {
	Create(ctx context.Context, account *models.EmailAccount) error
	GetByID(ctx context.Context, id uint) (*models.EmailAccount, error)
	GetByEmail(ctx context.Context, address string) (*models.EmailAccount, error)
	GetBySubscriptionID(ctx context.Context, subID string) (*models.EmailAccount, error)
	List(ctx context.Context, limit, offset int) ([]models.EmailAccount, int64, error)
	ListSchedulable(ctx context.Context, now time.Time) ([]models.EmailAccount, error)
	Update(ctx context.Context, account *models.EmailAccount) error
	UpdateCredentials(ctx context.Context, id uint, credentialRef string) error
	Deactivate(ctx context.Context, id uint) error
	SetRealtime(ctx context.Context, id uint, enabled bool) error
	SetSubscription(ctx context.Context, id uint, subID, clientState string, expiry *time.Time) error
	TryBeginSync(ctx context.Context, id uint) (bool, error)
	FinishSyncSuccess(ctx context.Context, id uint, at time.Time, nextSyncAt time.Time) error
	FinishSyncFailure(ctx context.Context, id uint, syncErr string, failures int, nextSyncAt time.Time) error
	FinishSyncAuthExpired(ctx context.Context, id uint, syncErr string) error
}

// accountRepository implements AccountRepository using GORM
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new AccountRepository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create creates a new email account
func (r *accountRepository) Create(ctx context.Context, account *models.EmailAccount) error {
	result := r.db.WithContext(ctx).Create(account)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create account: %w", result.Error)
	}
	return nil
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id uint) (*models.EmailAccount, error) {
	var account models.EmailAccount
	result := r.db.WithContext(ctx).First(&account, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by ID: %w", result.Error)
	}
	return &account, nil
}

// GetByEmail retrieves an account by its email address
func (r *accountRepository) GetByEmail(ctx context.Context, address string) (*models.EmailAccount, error) {
	var account models.EmailAccount
	result := r.db.WithContext(ctx).Where("email_address = ?", address).First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by email: %w", result.Error)
	}
	return &account, nil
}

// GetBySubscriptionID retrieves the account owning a push subscription
func (r *accountRepository) GetBySubscriptionID(ctx context.Context, subID string) (*models.EmailAccount, error) {
	var account models.EmailAccount
	result := r.db.WithContext(ctx).Where("subscription_id = ?", subID).First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by subscription: %w", result.Error)
	}
	return &account, nil
}

// List retrieves accounts with pagination, newest first
func (r *accountRepository) List(ctx context.Context, limit, offset int) ([]models.EmailAccount, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.EmailAccount{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count accounts: %w", err)
	}

	var accounts []models.EmailAccount
	result := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&accounts)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list accounts: %w", result.Error)
	}
	return accounts, total, nil
}

// ListSchedulable returns active accounts that are due for a poll: not
// currently running, not suspended on expired credentials, and past their
// next_sync_at (or never synced).
func (r *accountRepository) ListSchedulable(ctx context.Context, now time.Time) ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	result := r.db.WithContext(ctx).
		Where("active = ?", true).
		Where("sync_state NOT IN ?", []string{models.SyncStateRunning, models.SyncStateAuthExpired}).
		Where("next_sync_at IS NULL OR next_sync_at <= ?", now).
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list schedulable accounts: %w", result.Error)
	}
	return accounts, nil
}

// Update saves all fields of the account
func (r *accountRepository) Update(ctx context.Context, account *models.EmailAccount) error {
	result := r.db.WithContext(ctx).Save(account)
	if result.Error != nil {
		return fmt.Errorf("failed to update account: %w", result.Error)
	}
	return nil
}

// UpdateCredentials replaces the account's credential reference. An account
// suspended on expired credentials goes back to idle with a cleared schedule
// so the next scheduler tick picks it up immediately.
func (r *accountRepository) UpdateCredentials(ctx context.Context, id uint, credentialRef string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.EmailAccount{}).
			Where("id = ?", id).
			Update("credential_ref", credentialRef)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&models.EmailAccount{}).
			Where("id = ? AND sync_state = ?", id, models.SyncStateAuthExpired).
			Updates(map[string]interface{}{
				"sync_state":           models.SyncStateIdle,
				"sync_status":          "reauthorized",
				"last_sync_error":      "",
				"consecutive_failures": 0,
				"next_sync_at":         nil,
			}).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	return nil
}

// Deactivate soft-disables an account so the scheduler skips it
func (r *accountRepository) Deactivate(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.EmailAccount{}).
		Where("id = ?", id).
		Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRealtime toggles push notifications for an account
func (r *accountRepository) SetRealtime(ctx context.Context, id uint, enabled bool) error {
	result := r.db.WithContext(ctx).Model(&models.EmailAccount{}).
		Where("id = ?", id).
		Update("realtime_enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("failed to set realtime flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSubscription records provider push subscription details for an account
func (r *accountRepository) SetSubscription(ctx context.Context, id uint, subID, clientState string, expiry *time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.EmailAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"subscription_id":     subID,
			"client_state":        clientState,
			"subscription_expiry": expiry,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishSyncAuthExpired releases the sync lock into the auth_expired state.
// next_sync_at is cleared because the account is out of the rotation until
// UpdateCredentials brings it back; backoff bookkeeping does not apply.
func (r *accountRepository) FinishSyncAuthExpired(ctx context.Context, id uint, syncErr string) error {
	result := r.db.WithContext(ctx).Model(&models.EmailAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_state":      models.SyncStateAuthExpired,
			"sync_status":     "auth_expired",
			"last_sync_error": syncErr,
			"next_sync_at":    nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record auth expiry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TryBeginSync attempts to take the per-account sync lock. The conditional
// UPDATE succeeds for at most one caller; a false return means another
// sync currently holds the account.
func (r *accountRepository) TryBeginSync(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.EmailAccount{}).
		Where("id = ? AND active = ? AND sync_state <> ?", id, true, models.SyncStateRunning).
		Updates(map[string]interface{}{
			"sync_state":  models.SyncStateRunning,
			"sync_status": "syncing",
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to begin sync: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// FinishSyncSuccess releases the sync lock, clears failure bookkeeping and
// schedules the next poll
func (r *accountRepository) FinishSyncSuccess(ctx context.Context, id uint, at time.Time, nextSyncAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.EmailAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_state":           models.SyncStateIdle,
			"sync_status":          "ok",
			"last_sync_at":         at,
			"last_sync_error":      "",
			"consecutive_failures": 0,
			"next_sync_at":         nextSyncAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish sync: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishSyncFailure releases the sync lock into the failed state and records
// the backoff schedule
func (r *accountRepository) FinishSyncFailure(ctx context.Context, id uint, syncErr string, failures int, nextSyncAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.EmailAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_state":           models.SyncStateFailed,
			"sync_status":          "failed",
			"last_sync_error":      syncErr,
			"consecutive_failures": failures,
			"next_sync_at":         nextSyncAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record sync failure: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
