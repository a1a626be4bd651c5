// Package imap implements the poll-only UID driver for plain IMAP accounts.
// The cursor is "<uidvalidity>:<lastuid>"; a UIDVALIDITY change means every
// stored UID is meaningless and the mailbox must be re-walked.
package imap

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"

	apperrors "github.com/lodestone-crm/lodestone-backend/internal/errors"
	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"github.com/lodestone-crm/lodestone-backend/internal/providers"
)

const (
	batchSize   = 50
	snippetSize = 200
)

// Driver implements providers.Driver for generic IMAP servers.
type Driver struct {
	creds providers.CredentialSource

	// dial is swapped out in tests.
	dial func(addr string) (*client.Client, error)
}

// New creates an IMAP driver.
func New(creds providers.CredentialSource) *Driver {
	return &Driver{
		creds: creds,
		dial: func(addr string) (*client.Client, error) {
			return client.DialTLS(addr, nil)
		},
	}
}

// Kind implements providers.Driver.
func (d *Driver) Kind() string {
	return models.ProviderIMAP
}

// SupportsPush implements providers.Driver.
func (d *Driver) SupportsPush() bool {
	return false
}

// RegisterPush implements providers.Driver.
func (d *Driver) RegisterPush(_ context.Context, _ *models.EmailAccount, _ string) (*providers.PushRegistration, error) {
	return nil, providers.ErrPushNotSupported
}

func (d *Driver) connect(ctx context.Context, account *models.EmailAccount) (*client.Client, *imap.MailboxStatus, error) {
	password, err := d.creds.Password(ctx, account)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrCredentialsExpired, err)
	}

	port := account.IMAPPort
	if port == 0 {
		port = 993
	}
	addr := fmt.Sprintf("%s:%d", account.IMAPHost, port)

	c, err := d.dial(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dial %s: %v", apperrors.ErrTransient, addr, err)
	}

	if err := c.Login(account.EmailAddress, password); err != nil {
		c.Logout()
		return nil, nil, fmt.Errorf("%w: login rejected: %v", apperrors.ErrCredentialsExpired, err)
	}

	mbox, err := c.Select("INBOX", true)
	if err != nil {
		c.Logout()
		return nil, nil, fmt.Errorf("%w: select inbox: %v", apperrors.ErrTransient, err)
	}
	return c, mbox, nil
}

// FetchHistorical implements providers.Driver. A cursor from a previous
// UIDVALIDITY generation is discarded and the walk restarts from UID 1.
func (d *Driver) FetchHistorical(ctx context.Context, account *models.EmailAccount, cursor string) (*providers.Page, error) {
	c, mbox, err := d.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	var lastUID uint32
	if cursor != "" {
		if validity, uid, err := parseCursor(cursor); err == nil && validity == mbox.UidValidity {
			lastUID = uid
		}
	}
	return d.fetchFrom(account, c, mbox, lastUID)
}

// FetchIncremental implements providers.Driver.
func (d *Driver) FetchIncremental(ctx context.Context, account *models.EmailAccount, cursor string) (*providers.Page, error) {
	validity, lastUID, err := parseCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: unusable uid cursor %q", apperrors.ErrCursorExpired, cursor)
	}

	c, mbox, err := d.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if validity != mbox.UidValidity {
		return nil, fmt.Errorf("%w: uidvalidity changed from %d to %d", apperrors.ErrCursorExpired, validity, mbox.UidValidity)
	}
	return d.fetchFrom(account, c, mbox, lastUID)
}

// fetchFrom pulls up to one batch of messages above lastUID.
func (d *Driver) fetchFrom(account *models.EmailAccount, c *client.Client, mbox *imap.MailboxStatus, lastUID uint32) (*providers.Page, error) {
	from := lastUID + 1
	if mbox.UidNext <= from {
		return &providers.Page{
			NextCursor: formatCursor(mbox.UidValidity, lastUID),
			HasMore:    false,
		}, nil
	}

	to := mbox.UidNext - 1
	hasMore := false
	if to-from+1 > batchSize {
		to = from + batchSize - 1
		hasMore = true
	}

	seqset := new(imap.SeqSet)
	seqset.AddRange(from, to)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, batchSize)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	page := &providers.Page{HasMore: hasMore}
	for msg := range messages {
		page.Messages = append(page.Messages, normalize(account, mbox.UidValidity, msg, section))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: uid fetch: %v", apperrors.ErrTransient, err)
	}

	// Expunged UIDs leave gaps; the cursor still advances over them.
	page.NextCursor = formatCursor(mbox.UidValidity, to)
	return page, nil
}

func parseCursor(cursor string) (uint32, uint32, error) {
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed cursor %q", cursor)
	}
	validity, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	uid, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(validity), uint32(uid), nil
}

func formatCursor(validity, uid uint32) string {
	return fmt.Sprintf("%d:%d", validity, uid)
}

// normalize converts a fetched IMAP message to the provider-agnostic form.
// The RFC 5322 Message-ID serves as the global identifier when present;
// otherwise a synthetic one is derived from the mailbox coordinates.
func normalize(account *models.EmailAccount, validity uint32, msg *imap.Message, section *imap.BodySectionName) providers.EmailMessage {
	out := providers.EmailMessage{
		ProviderMessageID: fmt.Sprintf("imap:%s:%d:%d", account.EmailAddress, validity, msg.Uid),
		ReceivedAt:        time.Now().UTC(),
	}

	for _, flag := range msg.Flags {
		if flag == imap.SeenFlag {
			out.IsRead = true
		}
	}

	if env := msg.Envelope; env != nil {
		if env.MessageId != "" {
			out.ProviderMessageID = env.MessageId
		}
		out.Subject = env.Subject
		if !env.Date.IsZero() {
			out.ReceivedAt = env.Date.UTC()
		}
		if len(env.From) > 0 {
			out.SenderEmail = env.From[0].Address()
			out.SenderName = env.From[0].PersonalName
		}
		for _, to := range env.To {
			out.Recipients = append(out.Recipients, to.Address())
		}
		// IMAP has no conversation identifier; thread on the reply chain.
		if env.InReplyTo != "" {
			out.ProviderThreadID = env.InReplyTo
		} else {
			out.ProviderThreadID = out.ProviderMessageID
		}
	}

	if body := msg.GetBody(section); body != nil {
		if parsed, err := enmime.ReadEnvelope(body); err == nil {
			out.BodyText = parsed.Text
			out.BodyHTML = parsed.HTML
			out.Snippet = makeSnippet(parsed.Text)
		}
	}
	return out
}

func makeSnippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= snippetSize {
		return text
	}
	// Trim on a rune boundary so a multibyte character is never cut in half.
	cut := snippetSize
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
