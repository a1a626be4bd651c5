// Package gmail implements the history-cursor driver for Gmail accounts.
// The cursor is the mailbox history ID; Gmail forgets history after roughly
// a week, which surfaces as a 404 and forces a historical rebuild.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	apperrors "github.com/lodestone-crm/lodestone-backend/internal/errors"
	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"github.com/lodestone-crm/lodestone-backend/internal/providers"
)

const (
	historicalPageSize = 50
	historyPageSize    = 100

	// Mid-backfill cursors carry the list page token; a bare number is a
	// history ID ready for incremental sync.
	pageCursorPrefix = "page:"
)

// Driver implements providers.Driver for Gmail.
type Driver struct {
	creds       providers.CredentialSource
	oauthCfg    *oauth2.Config
	pubsubTopic string
}

// New creates a Gmail driver. pubsubTopic is the Cloud Pub/Sub topic Gmail
// watch notifications are published to.
func New(creds providers.CredentialSource, clientID, clientSecret, pubsubTopic string) *Driver {
	return &Driver{
		creds: creds,
		oauthCfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{gmail.GmailReadonlyScope},
		},
		pubsubTopic: pubsubTopic,
	}
}

// Kind implements providers.Driver.
func (d *Driver) Kind() string {
	return models.ProviderGmail
}

// SupportsPush implements providers.Driver.
func (d *Driver) SupportsPush() bool {
	return true
}

func (d *Driver) service(ctx context.Context, account *models.EmailAccount) (*gmail.Service, error) {
	token, err := d.creds.OAuthToken(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCredentialsExpired, err)
	}
	httpClient := d.oauthCfg.Client(ctx, token)
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return svc, nil
}

// FetchHistorical implements providers.Driver. It pages through the full
// mailbox; the final page's cursor is the profile history ID so incremental
// sync can take over.
func (d *Driver) FetchHistorical(ctx context.Context, account *models.EmailAccount, cursor string) (*providers.Page, error) {
	svc, err := d.service(ctx, account)
	if err != nil {
		return nil, err
	}

	call := svc.Users.Messages.List(account.EmailAddress).
		IncludeSpamTrash(false).
		MaxResults(historicalPageSize)
	if strings.HasPrefix(cursor, pageCursorPrefix) {
		call = call.PageToken(strings.TrimPrefix(cursor, pageCursorPrefix))
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	page := &providers.Page{}
	for _, m := range resp.Messages {
		full, err := svc.Users.Messages.Get(account.EmailAddress, m.Id).
			Format("metadata").
			MetadataHeaders("From", "To", "Subject", "Date").
			Context(ctx).Do()
		if err != nil {
			return nil, classify(err)
		}
		page.Messages = append(page.Messages, normalize(full))
	}

	if resp.NextPageToken != "" {
		page.NextCursor = pageCursorPrefix + resp.NextPageToken
		page.HasMore = true
		return page, nil
	}

	// Backfill done: snapshot the history ID as the incremental cursor.
	profile, err := svc.Users.GetProfile(account.EmailAddress).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	page.NextCursor = strconv.FormatUint(profile.HistoryId, 10)
	page.HasMore = false
	return page, nil
}

// FetchIncremental implements providers.Driver using the history API.
func (d *Driver) FetchIncremental(ctx context.Context, account *models.EmailAccount, cursor string) (*providers.Page, error) {
	startHistoryID, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: unusable history cursor %q", apperrors.ErrCursorExpired, cursor)
	}

	svc, err := d.service(ctx, account)
	if err != nil {
		return nil, err
	}

	latest := startHistoryID
	seen := make(map[string]bool)
	page := &providers.Page{}

	pageToken := ""
	for {
		call := svc.Users.History.List(account.EmailAddress).
			StartHistoryId(startHistoryID).
			HistoryTypes("messageAdded").
			MaxResults(historyPageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, classify(err)
		}

		for _, h := range resp.History {
			if h.Id > latest {
				latest = h.Id
			}
			for _, added := range h.MessagesAdded {
				id := added.Message.Id
				if seen[id] {
					continue
				}
				seen[id] = true

				full, err := svc.Users.Messages.Get(account.EmailAddress, id).
					Format("metadata").
					MetadataHeaders("From", "To", "Subject", "Date").
					Context(ctx).Do()
				if err != nil {
					// The message can be gone again by the time we fetch it.
					var gerr *googleapi.Error
					if errors.As(err, &gerr) && gerr.Code == 404 {
						continue
					}
					return nil, classify(err)
				}
				page.Messages = append(page.Messages, normalize(full))
			}
		}

		if resp.HistoryId > latest {
			latest = resp.HistoryId
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	page.NextCursor = strconv.FormatUint(latest, 10)
	page.HasMore = false
	return page, nil
}

// RegisterPush implements providers.Driver. Gmail pushes through Cloud
// Pub/Sub, so the notification URL is fixed by the topic's subscription and
// ignored here.
func (d *Driver) RegisterPush(ctx context.Context, account *models.EmailAccount, _ string) (*providers.PushRegistration, error) {
	svc, err := d.service(ctx, account)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Users.Watch(account.EmailAddress, &gmail.WatchRequest{
		TopicName: d.pubsubTopic,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	expiry := time.UnixMilli(resp.Expiration).UTC()
	return &providers.PushRegistration{
		SubscriptionID: strconv.FormatUint(resp.HistoryId, 10),
		ExpiresAt:      &expiry,
	}, nil
}

// classify maps Gmail API failures onto the sync error taxonomy.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401:
			return fmt.Errorf("%w: %v", apperrors.ErrCredentialsExpired, err)
		case gerr.Code == 404:
			return fmt.Errorf("%w: %v", apperrors.ErrCursorExpired, err)
		}
	}
	return fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
}

// normalize converts a Gmail message to the provider-agnostic form.
func normalize(m *gmail.Message) providers.EmailMessage {
	msg := providers.EmailMessage{
		ProviderMessageID: m.Id,
		ProviderThreadID:  m.ThreadId,
		Snippet:           m.Snippet,
		IsRead:            true,
		ReceivedAt:        time.UnixMilli(m.InternalDate).UTC(),
	}

	for _, label := range m.LabelIds {
		if label == "UNREAD" {
			msg.IsRead = false
		}
	}

	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch h.Name {
			case "From":
				if addr, err := mail.ParseAddress(h.Value); err == nil {
					msg.SenderEmail = addr.Address
					msg.SenderName = addr.Name
				} else {
					msg.SenderEmail = h.Value
				}
			case "To":
				if addrs, err := mail.ParseAddressList(h.Value); err == nil {
					for _, a := range addrs {
						msg.Recipients = append(msg.Recipients, a.Address)
					}
				}
			case "Subject":
				msg.Subject = h.Value
			}
		}
	}
	return msg
}
