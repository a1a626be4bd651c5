package models

import (
	"time"
)

// Message is the canonical deduplicated form of an email observed on any
// provider. ProviderMessageID is globally unique; the database constraint
// on it is what makes ingestion idempotent.
type Message struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	AccountID         uint   `gorm:"not null;index" json:"account_id"`
	ProviderMessageID string `gorm:"uniqueIndex;not null;size:512" json:"provider_message_id"`
	ProviderThreadID  string `gorm:"index;size:512" json:"provider_thread_id,omitempty"`
	ThreadID          *uint  `gorm:"index" json:"thread_id,omitempty"`

	SenderEmail     string `gorm:"not null;size:255" json:"sender_email"`
	SenderName      string `gorm:"size:255" json:"sender_name,omitempty"`
	RecipientEmails string `gorm:"size:2048" json:"recipient_emails,omitempty"`
	Subject         string `json:"subject,omitempty"`
	Snippet         string `gorm:"size:512" json:"snippet,omitempty"`
	BodyText        string `json:"body_text,omitempty"`
	BodyHTML        string `json:"-"`
	BodyRef         string `gorm:"size:512" json:"-"`

	IsRead    bool `gorm:"default:false" json:"is_read"`
	IsDeleted bool `gorm:"default:false;index" json:"-"`

	// Classification fields populated by the downstream pipeline.
	Category      string     `gorm:"size:64" json:"category,omitempty"`
	CategoryScore *float64   `json:"category_score,omitempty"`
	ClassifiedAt  *time.Time `json:"classified_at,omitempty"`

	ReceivedAt time.Time `gorm:"not null;index" json:"received_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Account EmailAccount `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
	Thread  *Thread      `gorm:"foreignKey:ThreadID" json:"-"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// MessageListItem is a lightweight version for list views
type MessageListItem struct {
	ID          uint      `json:"id"`
	AccountID   uint      `json:"account_id"`
	SenderEmail string    `json:"sender_email"`
	SenderName  string    `json:"sender_name,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
	Category    string    `json:"category,omitempty"`
	IsRead      bool      `json:"is_read"`
	ReceivedAt  time.Time `json:"received_at"`
}
