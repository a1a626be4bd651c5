package models

import (
	"time"
)

// Provider kinds supported by the sync engine.
const (
	ProviderGraph = "graph"
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// Account sync states. Transitions are idle -> running -> idle on success
// and idle -> running -> failed on error; failed accounts re-enter running
// once their backoff window elapses. auth_expired takes the account out of
// the polling rotation entirely until its credentials are replaced.
const (
	SyncStateIdle        = "idle"
	SyncStateRunning     = "running"
	SyncStateFailed      = "failed"
	SyncStateAuthExpired = "auth_expired"
)

// EmailAccount represents a connected mailbox owned by a tenant.
type EmailAccount struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	TenantID      string `gorm:"not null;index;size:64" json:"tenant_id"`
	Provider      string `gorm:"not null;size:16" json:"provider"`
	EmailAddress  string `gorm:"uniqueIndex;not null;size:255" json:"email_address"`
	DisplayName   string `gorm:"size:255" json:"display_name,omitempty"`
	CredentialRef string `gorm:"not null;size:255" json:"-"`

	// IMAP-only connection settings; empty for API providers.
	IMAPHost string `gorm:"size:255" json:"imap_host,omitempty"`
	IMAPPort int    `json:"imap_port,omitempty"`

	Active           bool `gorm:"default:true" json:"active"`
	RealtimeEnabled  bool `gorm:"default:false" json:"realtime_enabled"`
	PollIntervalSecs int  `gorm:"default:300" json:"poll_interval_secs"`

	SyncState           string     `gorm:"not null;default:idle;size:16" json:"sync_state"`
	SyncStatus          string     `gorm:"size:255" json:"sync_status,omitempty"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	LastSyncError       string     `gorm:"size:1024" json:"last_sync_error,omitempty"`
	ConsecutiveFailures int        `gorm:"default:0" json:"consecutive_failures"`
	NextSyncAt          *time.Time `json:"next_sync_at,omitempty"`

	// Push subscription bookkeeping. SubscriptionID holds the Graph
	// subscription id or the Gmail watch expiration marker; ClientState is
	// the per-account secret echoed back in Graph notifications.
	SubscriptionID     string     `gorm:"size:255" json:"-"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry,omitempty"`
	ClientState        string     `gorm:"size:64" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for EmailAccount
func (EmailAccount) TableName() string {
	return "email_accounts"
}

// PollInterval returns the account's polling interval as a duration.
func (a *EmailAccount) PollInterval() time.Duration {
	if a.PollIntervalSecs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(a.PollIntervalSecs) * time.Second
}

// AccountWithCounts is used for API responses that include message totals.
type AccountWithCounts struct {
	EmailAccount
	MessageCount int64 `json:"message_count"`
	UnreadCount  int64 `json:"unread_count"`
}
