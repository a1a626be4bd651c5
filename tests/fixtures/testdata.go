package fixtures

import (
	"fmt"
	"time"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
)

// AccountBuilder creates test EmailAccount instances with fluent API
type AccountBuilder struct {
	account models.EmailAccount
}

// NewAccountBuilder creates a new AccountBuilder with sensible defaults
func NewAccountBuilder() *AccountBuilder {
	now := time.Now()
	return &AccountBuilder{
		account: models.EmailAccount{
			ID:            1,
			TenantID:      "tenant-1",
			Provider:      models.ProviderGraph,
			EmailAddress:  "user@example.com",
			DisplayName:   "Test User",
			CredentialRef: "cred-1",
			Active:        true,
			SyncState:     models.SyncStateIdle,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
}

// WithID sets the account ID
func (b *AccountBuilder) WithID(id uint) *AccountBuilder {
	b.account.ID = id
	return b
}

// WithTenant sets the tenant ID
func (b *AccountBuilder) WithTenant(tenantID string) *AccountBuilder {
	b.account.TenantID = tenantID
	return b
}

// WithProvider sets the provider kind
func (b *AccountBuilder) WithProvider(provider string) *AccountBuilder {
	b.account.Provider = provider
	return b
}

// WithEmail sets the email address
func (b *AccountBuilder) WithEmail(email string) *AccountBuilder {
	b.account.EmailAddress = email
	return b
}

// WithCredentialRef sets the credential reference
func (b *AccountBuilder) WithCredentialRef(ref string) *AccountBuilder {
	b.account.CredentialRef = ref
	return b
}

// WithIMAP sets the IMAP connection settings
func (b *AccountBuilder) WithIMAP(host string, port int) *AccountBuilder {
	b.account.Provider = models.ProviderIMAP
	b.account.IMAPHost = host
	b.account.IMAPPort = port
	return b
}

// WithActive sets the account active status
func (b *AccountBuilder) WithActive(active bool) *AccountBuilder {
	b.account.Active = active
	return b
}

// WithSyncState sets the sync lock state
func (b *AccountBuilder) WithSyncState(state string) *AccountBuilder {
	b.account.SyncState = state
	return b
}

// WithPollInterval sets the poll interval in seconds
func (b *AccountBuilder) WithPollInterval(secs int) *AccountBuilder {
	b.account.PollIntervalSecs = secs
	return b
}

// WithSubscription sets the push subscription bookkeeping
func (b *AccountBuilder) WithSubscription(subID, clientState string, expiry *time.Time) *AccountBuilder {
	b.account.SubscriptionID = subID
	b.account.ClientState = clientState
	b.account.SubscriptionExpiry = expiry
	b.account.RealtimeEnabled = true
	return b
}

// Build returns the constructed EmailAccount
func (b *AccountBuilder) Build() *models.EmailAccount {
	return &b.account
}

// BuildValue returns the constructed EmailAccount as a value (not pointer)
func (b *AccountBuilder) BuildValue() models.EmailAccount {
	return b.account
}

// MessageBuilder creates test Message instances with fluent API
type MessageBuilder struct {
	message models.Message
}

// NewMessageBuilder creates a new MessageBuilder with sensible defaults
func NewMessageBuilder() *MessageBuilder {
	now := time.Now()
	return &MessageBuilder{
		message: models.Message{
			ID:                1,
			AccountID:         1,
			ProviderMessageID: "provider-msg-1",
			ProviderThreadID:  "provider-thread-1",
			SenderEmail:       "sender@external.com",
			SenderName:        "Test Sender",
			RecipientEmails:   "user@example.com",
			Subject:           "Test Subject",
			Snippet:           "This is a test email...",
			BodyText:          "This is a test email body.",
			BodyHTML:          "<p>This is a test email body.</p>",
			IsRead:            false,
			ReceivedAt:        now,
		},
	}
}

// WithID sets the message ID
func (b *MessageBuilder) WithID(id uint) *MessageBuilder {
	b.message.ID = id
	return b
}

// WithAccountID sets the account ID
func (b *MessageBuilder) WithAccountID(accountID uint) *MessageBuilder {
	b.message.AccountID = accountID
	return b
}

// WithProviderMessageID sets the dedup key
func (b *MessageBuilder) WithProviderMessageID(id string) *MessageBuilder {
	b.message.ProviderMessageID = id
	return b
}

// WithProviderThreadID sets the provider conversation identifier
func (b *MessageBuilder) WithProviderThreadID(id string) *MessageBuilder {
	b.message.ProviderThreadID = id
	return b
}

// WithSender sets the sender email and name
func (b *MessageBuilder) WithSender(email, name string) *MessageBuilder {
	b.message.SenderEmail = email
	b.message.SenderName = name
	return b
}

// WithSubject sets the message subject
func (b *MessageBuilder) WithSubject(subject string) *MessageBuilder {
	b.message.Subject = subject
	return b
}

// WithSnippet sets the message snippet
func (b *MessageBuilder) WithSnippet(snippet string) *MessageBuilder {
	b.message.Snippet = snippet
	return b
}

// WithBody sets both text and HTML body
func (b *MessageBuilder) WithBody(text, html string) *MessageBuilder {
	b.message.BodyText = text
	b.message.BodyHTML = html
	return b
}

// WithRead sets the read status
func (b *MessageBuilder) WithRead(isRead bool) *MessageBuilder {
	b.message.IsRead = isRead
	return b
}

// WithCategory sets the downstream classification result
func (b *MessageBuilder) WithCategory(category string, score float64) *MessageBuilder {
	b.message.Category = category
	b.message.CategoryScore = &score
	now := time.Now()
	b.message.ClassifiedAt = &now
	return b
}

// WithReceivedAt sets the received timestamp
func (b *MessageBuilder) WithReceivedAt(t time.Time) *MessageBuilder {
	b.message.ReceivedAt = t
	return b
}

// Build returns the constructed Message
func (b *MessageBuilder) Build() *models.Message {
	return &b.message
}

// BuildValue returns the constructed Message as a value (not pointer)
func (b *MessageBuilder) BuildValue() models.Message {
	return b.message
}

// ThreadBuilder creates test Thread instances with fluent API
type ThreadBuilder struct {
	thread models.Thread
}

// NewThreadBuilder creates a new ThreadBuilder with sensible defaults
func NewThreadBuilder() *ThreadBuilder {
	now := time.Now()
	return &ThreadBuilder{
		thread: models.Thread{
			ID:               1,
			AccountID:        1,
			ProviderThreadID: "provider-thread-1",
			Subject:          "Test Subject",
			LastSender:       "sender@external.com",
			MessageCount:     1,
			LastMessageAt:    now,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
	}
}

// WithID sets the thread ID
func (b *ThreadBuilder) WithID(id uint) *ThreadBuilder {
	b.thread.ID = id
	return b
}

// WithAccountID sets the account ID
func (b *ThreadBuilder) WithAccountID(accountID uint) *ThreadBuilder {
	b.thread.AccountID = accountID
	return b
}

// WithProviderThreadID sets the provider conversation identifier
func (b *ThreadBuilder) WithProviderThreadID(id string) *ThreadBuilder {
	b.thread.ProviderThreadID = id
	return b
}

// WithMessageCount sets the aggregate message count
func (b *ThreadBuilder) WithMessageCount(count int64) *ThreadBuilder {
	b.thread.MessageCount = count
	return b
}

// WithLastMessage sets the last sender and timestamp
func (b *ThreadBuilder) WithLastMessage(sender string, at time.Time) *ThreadBuilder {
	b.thread.LastSender = sender
	b.thread.LastMessageAt = at
	return b
}

// Build returns the constructed Thread
func (b *ThreadBuilder) Build() *models.Thread {
	return &b.thread
}

// BuildValue returns the constructed Thread as a value (not pointer)
func (b *ThreadBuilder) BuildValue() models.Thread {
	return b.thread
}

// Helper functions for creating multiple test entities

// CreateAccounts creates a slice of accounts with sequential IDs
func CreateAccounts(count int) []models.EmailAccount {
	accounts := make([]models.EmailAccount, count)
	for i := 0; i < count; i++ {
		accounts[i] = NewAccountBuilder().
			WithID(uint(i + 1)).
			WithEmail(fmt.Sprintf("user%d@example.com", i+1)).
			WithCredentialRef(fmt.Sprintf("cred-%d", i+1)).
			BuildValue()
	}
	return accounts
}

// CreateMessages creates a slice of messages for a given account
func CreateMessages(accountID uint, count int) []models.Message {
	messages := make([]models.Message, count)
	for i := 0; i < count; i++ {
		messages[i] = NewMessageBuilder().
			WithID(uint(i + 1)).
			WithAccountID(accountID).
			WithProviderMessageID(fmt.Sprintf("provider-msg-%d", i+1)).
			WithSubject(generateSubject(i)).
			WithReceivedAt(time.Now().Add(-time.Duration(i) * time.Hour)).
			BuildValue()
	}
	return messages
}

func generateSubject(index int) string {
	subjects := []string{
		"Welcome to our service",
		"Your order confirmation",
		"Important update",
		"Newsletter",
		"Account notification",
	}
	return subjects[index%len(subjects)]
}
