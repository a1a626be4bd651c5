// Package sync drives incremental and historical mail synchronization for
// connected accounts: it owns the per-account lock, cursor advancement,
// the CursorExpired fallback and the dispatch of newly stored messages.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lodestone-crm/lodestone-backend/internal/dispatch"
	apperrors "github.com/lodestone-crm/lodestone-backend/internal/errors"
	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"github.com/lodestone-crm/lodestone-backend/internal/providers"
	"github.com/lodestone-crm/lodestone-backend/internal/repository"
	"github.com/lodestone-crm/lodestone-backend/internal/storage"
)

// inlineBodyLimit is the largest HTML body kept in the database row. Anything
// bigger is offloaded to the body store when one is configured.
const inlineBodyLimit = 64 * 1024

// Mode selects what a sync run does.
type Mode string

const (
	// ModeAuto runs incremental when a cursor exists, historical otherwise.
	ModeAuto Mode = "auto"
	// ModeIncremental applies changes since the stored cursor; a fresh
	// account with no cursor gets a historical backfill instead.
	ModeIncremental Mode = "incremental"
	// ModeHistorical rebuilds from the beginning of the mailbox.
	ModeHistorical Mode = "historical"
)

// ParseMode validates a user-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModeIncremental, ModeHistorical:
		return Mode(s), nil
	case "":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("%w: unknown sync mode %q", apperrors.ErrInvalidInput, s)
	}
}

// Summary reports what a sync run did.
type Summary struct {
	Inserted       int  `json:"inserted"`
	Updated        int  `json:"updated"`
	Skipped        int  `json:"skipped"`
	CursorAdvanced bool `json:"cursorAdvanced"`
}

// Notifier receives a callback for every newly stored message. The
// websocket hub implements it; tests use a recorder.
type Notifier interface {
	NotifyNewMessage(accountID uint, message *models.Message)
}

// Engine is the sync orchestrator.
type Engine struct {
	accounts   repository.AccountRepository
	cursors    repository.CursorRepository
	messages   repository.MessageRepository
	threads    repository.ThreadRepository
	registry   *providers.Registry
	dispatcher dispatch.Dispatcher
	notifier   Notifier
	bodies     storage.BodyStore
	logger     *slog.Logger
	retry      RetryPolicy
	maxBackoff time.Duration
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Accounts   repository.AccountRepository
	Cursors    repository.CursorRepository
	Messages   repository.MessageRepository
	Threads    repository.ThreadRepository
	Registry   *providers.Registry
	Dispatcher dispatch.Dispatcher
	Notifier   Notifier
	// Bodies is optional; without it large HTML bodies stay inline.
	Bodies storage.BodyStore
	Logger *slog.Logger
	Retry      RetryPolicy
	MaxBackoff time.Duration
}

// NewEngine creates a sync engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Hour
	}
	return &Engine{
		accounts:   cfg.Accounts,
		cursors:    cfg.Cursors,
		messages:   cfg.Messages,
		threads:    cfg.Threads,
		registry:   cfg.Registry,
		dispatcher: cfg.Dispatcher,
		notifier:   cfg.Notifier,
		bodies:     cfg.Bodies,
		logger:     cfg.Logger,
		retry:      cfg.Retry,
		maxBackoff: cfg.MaxBackoff,
	}
}

// RunSync synchronizes one account. It takes the per-account lock, runs the
// requested mode, and releases the lock into idle or failed-backoff state.
// A second caller while the lock is held gets ErrSyncAlreadyRunning.
func (e *Engine) RunSync(ctx context.Context, accountID uint, mode Mode) (*Summary, error) {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, err
	}
	if !account.Active {
		return nil, apperrors.ErrAccountInactive
	}

	ok, err := e.accounts.TryBeginSync(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrSyncAlreadyRunning
	}

	summary, syncErr := e.run(ctx, account, mode)
	now := time.Now().UTC()

	if syncErr != nil {
		// Dead credentials never heal on their own; retrying them just burns
		// provider quota. Park the account outside the polling rotation until
		// a credential update brings it back.
		if apperrors.IsCredentialsExpired(syncErr) {
			if err := e.accounts.FinishSyncAuthExpired(ctx, account.ID, syncErr.Error()); err != nil {
				e.logger.Error("failed to record auth expiry",
					slog.Uint64("account_id", uint64(account.ID)),
					slog.String("error", err.Error()))
			}
			e.logger.Warn("sync suspended, credentials expired",
				slog.Uint64("account_id", uint64(account.ID)),
				slog.String("provider", account.Provider),
				slog.String("error", syncErr.Error()))
			return summary, syncErr
		}

		failures := account.ConsecutiveFailures + 1
		delay := Backoff(account.PollInterval(), failures, e.maxBackoff)
		if err := e.accounts.FinishSyncFailure(ctx, account.ID, syncErr.Error(), failures, now.Add(delay)); err != nil {
			e.logger.Error("failed to record sync failure",
				slog.Uint64("account_id", uint64(account.ID)),
				slog.String("error", err.Error()))
		}
		e.logger.Warn("sync failed",
			slog.Uint64("account_id", uint64(account.ID)),
			slog.String("provider", account.Provider),
			slog.Int("consecutive_failures", failures),
			slog.Duration("backoff", delay),
			slog.String("error", syncErr.Error()))
		return summary, syncErr
	}

	if err := e.accounts.FinishSyncSuccess(ctx, account.ID, now, now.Add(account.PollInterval())); err != nil {
		e.logger.Error("failed to record sync success",
			slog.Uint64("account_id", uint64(account.ID)),
			slog.String("error", err.Error()))
	}
	e.logger.Info("sync completed",
		slog.Uint64("account_id", uint64(account.ID)),
		slog.String("provider", account.Provider),
		slog.Int("inserted", summary.Inserted),
		slog.Int("updated", summary.Updated),
		slog.Int("skipped", summary.Skipped),
		slog.Bool("cursor_advanced", summary.CursorAdvanced))
	return summary, nil
}

func (e *Engine) run(ctx context.Context, account *models.EmailAccount, mode Mode) (*Summary, error) {
	summary := &Summary{}

	driver, ok := e.registry.Get(account.Provider)
	if !ok {
		return summary, fmt.Errorf("no driver registered for provider %q", account.Provider)
	}

	cursorVal := ""
	cursor, err := e.cursors.Get(ctx, account.ID, account.Provider)
	if err == nil {
		cursorVal = cursor.Value
	} else if !errors.Is(err, repository.ErrNotFound) {
		return summary, err
	}

	switch mode {
	case ModeHistorical:
		return summary, e.runHistorical(ctx, account, driver, "", summary)
	case ModeIncremental:
		// Nothing to be incremental against yet; backfill first.
		if cursorVal == "" {
			return summary, e.runHistorical(ctx, account, driver, "", summary)
		}
	case ModeAuto:
		if cursorVal == "" {
			return summary, e.runHistorical(ctx, account, driver, "", summary)
		}
	}

	err = e.runIncremental(ctx, account, driver, cursorVal, summary)
	if apperrors.IsCursorExpired(err) {
		// The provider no longer honors the stored cursor. Fall back to a
		// historical walk, handing the driver the stale cursor in case it is
		// a mid-backfill resume token; dedup makes the re-walk harmless.
		e.logger.Info("cursor expired, falling back to historical sync",
			slog.Uint64("account_id", uint64(account.ID)),
			slog.String("provider", account.Provider))
		return summary, e.runHistorical(ctx, account, driver, cursorVal, summary)
	}
	return summary, err
}

// runHistorical walks the mailbox page by page, persisting each page before
// advancing the cursor so a crash resumes mid-backfill instead of restarting.
func (e *Engine) runHistorical(ctx context.Context, account *models.EmailAccount, driver providers.Driver, cursor string, summary *Summary) error {
	restarted := false
	for {
		var page *providers.Page
		err := e.retry.Run(ctx, func() error {
			var fetchErr error
			page, fetchErr = driver.FetchHistorical(ctx, account, cursor)
			return fetchErr
		})
		if err != nil {
			// The resume cursor itself can be stale. Restart from the
			// beginning once; a second expiry is a real failure.
			if apperrors.IsCursorExpired(err) && cursor != "" && !restarted {
				restarted = true
				cursor = ""
				continue
			}
			return err
		}

		if err := e.persistPage(ctx, account, page.Messages, summary); err != nil {
			return err
		}
		if page.NextCursor != "" {
			if err := e.cursors.Upsert(ctx, account.ID, account.Provider, page.NextCursor); err != nil {
				return err
			}
			summary.CursorAdvanced = true
			cursor = page.NextCursor
		}
		if !page.HasMore {
			return nil
		}
	}
}

// runIncremental applies changes since the cursor.
func (e *Engine) runIncremental(ctx context.Context, account *models.EmailAccount, driver providers.Driver, cursor string, summary *Summary) error {
	for {
		var page *providers.Page
		err := e.retry.Run(ctx, func() error {
			var fetchErr error
			page, fetchErr = driver.FetchIncremental(ctx, account, cursor)
			return fetchErr
		})
		if err != nil {
			return err
		}

		if err := e.persistPage(ctx, account, page.Messages, summary); err != nil {
			return err
		}
		if page.NextCursor != "" && page.NextCursor != cursor {
			if err := e.cursors.Upsert(ctx, account.ID, account.Provider, page.NextCursor); err != nil {
				return err
			}
			summary.CursorAdvanced = true
			cursor = page.NextCursor
		}
		if !page.HasMore {
			return nil
		}
	}
}

// persistPage stores a page of normalized messages. Inserts flow onward to
// the thread aggregate, the dispatcher and the notifier; re-observations
// only merge and stay silent downstream.
func (e *Engine) persistPage(ctx context.Context, account *models.EmailAccount, msgs []providers.EmailMessage, summary *Summary) error {
	for i := range msgs {
		m := &msgs[i]
		if m.ProviderMessageID == "" {
			summary.Skipped++
			continue
		}

		record := &models.Message{
			AccountID:         account.ID,
			ProviderMessageID: m.ProviderMessageID,
			ProviderThreadID:  m.ProviderThreadID,
			SenderEmail:       m.SenderEmail,
			SenderName:        m.SenderName,
			RecipientEmails:   strings.Join(m.Recipients, ","),
			Subject:           m.Subject,
			Snippet:           m.Snippet,
			BodyText:          m.BodyText,
			BodyHTML:          m.BodyHTML,
			IsRead:            m.IsRead,
			ReceivedAt:        m.ReceivedAt,
		}

		if e.bodies != nil && len(record.BodyHTML) > inlineBodyLimit {
			ref, err := e.bodies.Save([]byte(record.BodyHTML))
			if err != nil {
				// Keep the body inline rather than lose it.
				e.logger.Warn("body offload failed",
					slog.String("provider_message_id", m.ProviderMessageID),
					slog.String("error", err.Error()))
			} else {
				record.BodyRef = ref
				record.BodyHTML = ""
			}
		}

		inserted, err := e.messages.Upsert(ctx, record)
		if err != nil {
			// A store rejection is a bug or corrupt data, never retryable.
			return fmt.Errorf("persist message %s: %w", m.ProviderMessageID, err)
		}

		if !inserted {
			summary.Updated++
			continue
		}
		summary.Inserted++

		if m.ProviderThreadID != "" {
			threadID, err := e.threads.Upsert(ctx, account.ID, m.ProviderThreadID, m.Subject, m.SenderEmail, m.ReceivedAt)
			if err != nil {
				return fmt.Errorf("upsert thread for %s: %w", m.ProviderMessageID, err)
			}
			if err := e.messages.AttachThread(ctx, record.ID, threadID); err != nil {
				return fmt.Errorf("attach thread for %s: %w", m.ProviderMessageID, err)
			}
		}

		if e.dispatcher != nil {
			event := dispatch.MessageEvent{
				MessageID:  record.ID,
				AccountID:  account.ID,
				ReceivedAt: record.ReceivedAt,
			}
			if err := e.dispatcher.Dispatch(ctx, event); err != nil {
				e.logger.Warn("dispatch failed",
					slog.Uint64("message_id", uint64(record.ID)),
					slog.String("error", err.Error()))
			}
		}
		if e.notifier != nil {
			e.notifier.NotifyNewMessage(account.ID, record)
		}
	}
	return nil
}

// RegisterPush enables provider push for an account and records the
// subscription. Poll-only providers report ErrPushNotSupported.
func (e *Engine) RegisterPush(ctx context.Context, accountID uint, notificationURL string) error {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrAccountNotFound
		}
		return err
	}

	driver, ok := e.registry.Get(account.Provider)
	if !ok {
		return fmt.Errorf("no driver registered for provider %q", account.Provider)
	}
	if !driver.SupportsPush() {
		return providers.ErrPushNotSupported
	}

	reg, err := driver.RegisterPush(ctx, account, notificationURL)
	if err != nil {
		return err
	}
	if err := e.accounts.SetSubscription(ctx, account.ID, reg.SubscriptionID, reg.ClientState, reg.ExpiresAt); err != nil {
		return err
	}
	return e.accounts.SetRealtime(ctx, account.ID, true)
}
