package models

import (
	"time"
)

// Thread groups messages that share a provider conversation identifier.
// MessageCount is maintained by an increment-on-insert upsert and is
// eventually consistent with the messages table.
type Thread struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	AccountID        uint      `gorm:"not null;uniqueIndex:idx_thread_account_provider" json:"account_id"`
	ProviderThreadID string    `gorm:"not null;size:512;uniqueIndex:idx_thread_account_provider" json:"provider_thread_id"`
	Subject          string    `json:"subject,omitempty"`
	LastSender       string    `gorm:"size:255" json:"last_sender,omitempty"`
	MessageCount     int64     `gorm:"default:1" json:"message_count"`
	LastMessageAt    time.Time `gorm:"index" json:"last_message_at"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Account EmailAccount `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Thread
func (Thread) TableName() string {
	return "threads"
}
