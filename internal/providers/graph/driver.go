// Package graph implements the delta-cursor driver for Microsoft 365
// accounts. The cursor is the raw @odata.nextLink / @odata.deltaLink URL;
// a 410 Gone from the delta endpoint means the token family is dead and a
// historical rebuild is required.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	apperrors "github.com/lodestone-crm/lodestone-backend/internal/errors"
	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"github.com/lodestone-crm/lodestone-backend/internal/providers"
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	deltaPageSize  = 50

	// Graph caps message subscriptions at about three days.
	subscriptionTTL = 70 * time.Hour
)

// Driver implements providers.Driver for Microsoft Graph.
type Driver struct {
	creds   providers.CredentialSource
	baseURL string
	client  *http.Client
}

// Option configures a Driver.
type Option func(*Driver)

// WithBaseURL overrides the Graph endpoint. Used in tests.
func WithBaseURL(url string) Option {
	return func(d *Driver) { d.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the base HTTP client used beneath the OAuth2
// transport.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Driver) { d.client = client }
}

// New creates a Graph driver.
func New(creds providers.CredentialSource, opts ...Option) *Driver {
	d := &Driver{
		creds:   creds,
		baseURL: defaultBaseURL,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Kind implements providers.Driver.
func (d *Driver) Kind() string {
	return models.ProviderGraph
}

// SupportsPush implements providers.Driver.
func (d *Driver) SupportsPush() bool {
	return true
}

func (d *Driver) httpClient(ctx context.Context, account *models.EmailAccount) (*http.Client, error) {
	token, err := d.creds.OAuthToken(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCredentialsExpired, err)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.client)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)), nil
}

// deltaResponse is the wire shape of a messages delta page.
type deltaResponse struct {
	Value     []graphMessage `json:"value"`
	NextLink  string         `json:"@odata.nextLink"`
	DeltaLink string         `json:"@odata.deltaLink"`
}

type graphMessage struct {
	ID               string           `json:"id"`
	ConversationID   string           `json:"conversationId"`
	Subject          string           `json:"subject"`
	BodyPreview      string           `json:"bodyPreview"`
	IsRead           bool             `json:"isRead"`
	ReceivedDateTime time.Time        `json:"receivedDateTime"`
	From             *graphRecipient  `json:"from"`
	ToRecipients     []graphRecipient `json:"toRecipients"`
	Body             *graphBody       `json:"body"`
}

type graphRecipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// FetchHistorical implements providers.Driver. An empty cursor starts a
// fresh delta walk over the inbox; otherwise the cursor is the link URL of
// the next page.
func (d *Driver) FetchHistorical(ctx context.Context, account *models.EmailAccount, cursor string) (*providers.Page, error) {
	url := cursor
	if url == "" {
		url = fmt.Sprintf("%s/me/mailFolders/inbox/messages/delta?$top=%d", d.baseURL, deltaPageSize)
	}
	return d.fetchDelta(ctx, account, url)
}

// FetchIncremental implements providers.Driver. The cursor is a deltaLink.
func (d *Driver) FetchIncremental(ctx context.Context, account *models.EmailAccount, cursor string) (*providers.Page, error) {
	if cursor == "" {
		return nil, fmt.Errorf("%w: empty delta cursor", apperrors.ErrCursorExpired)
	}
	return d.fetchDelta(ctx, account, cursor)
}

func (d *Driver) fetchDelta(ctx context.Context, account *models.EmailAccount, url string) (*providers.Page, error) {
	client, err := d.httpClient(ctx, account)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build delta request: %w", err)
	}
	req.Header.Set("Prefer", fmt.Sprintf("odata.maxpagesize=%d", deltaPageSize))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var delta deltaResponse
	if err := json.NewDecoder(resp.Body).Decode(&delta); err != nil {
		return nil, fmt.Errorf("failed to decode delta response: %w", err)
	}

	page := &providers.Page{}
	for _, m := range delta.Value {
		// Deletions and flag-only changes arrive without an id payload
		// worth storing; skip anything without a stable identity.
		if m.ID == "" {
			continue
		}
		page.Messages = append(page.Messages, normalize(m))
	}

	switch {
	case delta.NextLink != "":
		page.NextCursor = delta.NextLink
		page.HasMore = true
	case delta.DeltaLink != "":
		page.NextCursor = delta.DeltaLink
		page.HasMore = false
	default:
		return nil, fmt.Errorf("delta response carried neither nextLink nor deltaLink")
	}
	return page, nil
}

// subscriptionRequest is the wire shape of a Graph change subscription.
type subscriptionRequest struct {
	ChangeType         string `json:"changeType"`
	NotificationURL    string `json:"notificationUrl"`
	Resource           string `json:"resource"`
	ExpirationDateTime string `json:"expirationDateTime"`
	ClientState        string `json:"clientState"`
}

type subscriptionResponse struct {
	ID                 string `json:"id"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

// RegisterPush implements providers.Driver. The generated clientState is
// echoed back in every notification and checked by the webhook receiver.
func (d *Driver) RegisterPush(ctx context.Context, account *models.EmailAccount, notificationURL string) (*providers.PushRegistration, error) {
	client, err := d.httpClient(ctx, account)
	if err != nil {
		return nil, err
	}

	clientState := uuid.NewString()
	body, err := json.Marshal(subscriptionRequest{
		ChangeType:         "created",
		NotificationURL:    notificationURL,
		Resource:           "/me/mailFolders('inbox')/messages",
		ExpirationDateTime: time.Now().UTC().Add(subscriptionTTL).Format(time.RFC3339),
		ClientState:        clientState,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subscription: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/subscriptions", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to build subscription request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, classifyStatus(resp)
	}

	var sub subscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscription response: %w", err)
	}

	reg := &providers.PushRegistration{
		SubscriptionID: sub.ID,
		ClientState:    clientState,
	}
	if expiry, err := time.Parse(time.RFC3339, sub.ExpirationDateTime); err == nil {
		expiry = expiry.UTC()
		reg.ExpiresAt = &expiry
	}
	return reg, nil
}

// classifyStatus maps Graph HTTP failures onto the sync error taxonomy.
func classifyStatus(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: graph returned 401: %s", apperrors.ErrCredentialsExpired, snippet)
	case resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: graph returned 410: %s", apperrors.ErrCursorExpired, snippet)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: graph returned %d: %s", apperrors.ErrTransient, resp.StatusCode, snippet)
	default:
		return fmt.Errorf("graph returned %d: %s", resp.StatusCode, snippet)
	}
}

// normalize converts a Graph message to the provider-agnostic form.
func normalize(m graphMessage) providers.EmailMessage {
	msg := providers.EmailMessage{
		ProviderMessageID: m.ID,
		ProviderThreadID:  m.ConversationID,
		Subject:           m.Subject,
		Snippet:           m.BodyPreview,
		IsRead:            m.IsRead,
		ReceivedAt:        m.ReceivedDateTime.UTC(),
	}
	if m.From != nil {
		msg.SenderEmail = m.From.EmailAddress.Address
		msg.SenderName = m.From.EmailAddress.Name
	}
	for _, r := range m.ToRecipients {
		msg.Recipients = append(msg.Recipients, r.EmailAddress.Address)
	}
	if m.Body != nil {
		if strings.EqualFold(m.Body.ContentType, "html") {
			msg.BodyHTML = m.Body.Content
		} else {
			msg.BodyText = m.Body.Content
		}
	}
	return msg
}
