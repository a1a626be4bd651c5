package models

import (
	"time"
)

// SyncCursor is the per-account resume token for incremental sync.
// One row per (account, provider); Value is opaque to everything except
// the driver that issued it. The row is only written after the page it
// covers has been durably persisted.
type SyncCursor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"not null;uniqueIndex:idx_cursor_account_provider" json:"account_id"`
	Provider  string    `gorm:"not null;size:16;uniqueIndex:idx_cursor_account_provider" json:"provider"`
	Value     string    `gorm:"not null;size:2048" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Account EmailAccount `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for SyncCursor
func (SyncCursor) TableName() string {
	return "sync_cursors"
}
