// Package providers defines the capability interface every mail provider
// driver implements, plus the normalized message form drivers hand to the
// sync engine.
package providers

import (
	"context"
	"errors"
	"time"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
)

// ErrPushNotSupported is returned by RegisterPush on poll-only drivers.
var ErrPushNotSupported = errors.New("provider does not support push notifications")

// EmailMessage is the provider-agnostic form of an observed message.
// ProviderMessageID must be stable and globally unique; it is the dedup key.
type EmailMessage struct {
	ProviderMessageID string
	ProviderThreadID  string
	SenderEmail       string
	SenderName        string
	Recipients        []string
	Subject           string
	Snippet           string
	BodyText          string
	BodyHTML          string
	IsRead            bool
	ReceivedAt        time.Time
}

// Page is one unit of sync progress. NextCursor is the opaque resume token
// covering everything up to and including the page's messages; the caller
// must persist the messages before advancing to it.
type Page struct {
	Messages   []EmailMessage
	NextCursor string
	HasMore    bool
}

// PushRegistration describes an active provider subscription.
type PushRegistration struct {
	SubscriptionID string
	ClientState    string
	ExpiresAt      *time.Time
}

// Driver is the capability interface for a mail provider.
type Driver interface {
	// Kind returns the provider kind this driver serves.
	Kind() string

	// FetchHistorical walks the mailbox from the beginning (or resumes from
	// a mid-backfill cursor) one page at a time.
	FetchHistorical(ctx context.Context, account *models.EmailAccount, cursor string) (*Page, error)

	// FetchIncremental returns changes since the cursor. A cursor the
	// provider no longer honors yields apperrors.ErrCursorExpired.
	FetchIncremental(ctx context.Context, account *models.EmailAccount, cursor string) (*Page, error)

	// SupportsPush reports whether the provider can deliver webhooks.
	SupportsPush() bool

	// RegisterPush sets up a provider subscription delivering to
	// notificationURL. Poll-only drivers return ErrPushNotSupported.
	RegisterPush(ctx context.Context, account *models.EmailAccount, notificationURL string) (*PushRegistration, error)
}

// Registry holds one driver per provider kind.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry builds a registry from the given drivers.
func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{drivers: make(map[string]Driver, len(drivers))}
	for _, d := range drivers {
		r.drivers[d.Kind()] = d
	}
	return r
}

// Get returns the driver for a provider kind.
func (r *Registry) Get(kind string) (Driver, bool) {
	d, ok := r.drivers[kind]
	return d, ok
}
