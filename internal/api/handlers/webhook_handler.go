package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lodestone-crm/lodestone-backend/internal/api/response"
	apperrors "github.com/lodestone-crm/lodestone-backend/internal/errors"
	seclog "github.com/lodestone-crm/lodestone-backend/internal/logger"
	"github.com/lodestone-crm/lodestone-backend/internal/repository"
	syncengine "github.com/lodestone-crm/lodestone-backend/internal/sync"
)

const (
	// webhookSyncTimeout bounds the background sync a notification triggers
	webhookSyncTimeout = 5 * time.Minute

	// debounceWindow collapses notification bursts for the same account.
	// Incremental sync picks up everything since the cursor anyway, so one
	// run covers the whole burst.
	debounceWindow = 2 * time.Second
)

// WebhookHandler receives provider push notifications. Notifications are
// treated as hints only: the handler acks fast and triggers an incremental
// sync in the background, never trusting the payload's message content.
type WebhookHandler struct {
	accountRepo repository.AccountRepository
	engine      SyncEngine
	logger      *slog.Logger
	security    *seclog.SecurityLogger

	mu        sync.Mutex
	lastSeen  map[uint]time.Time
	triggerWG sync.WaitGroup
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(accountRepo repository.AccountRepository, engine SyncEngine, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		accountRepo: accountRepo,
		engine:      engine,
		logger:      logger,
		security:    seclog.NewSecurityLoggerWithHandler(logger.Handler()),
		lastSeen:    make(map[uint]time.Time),
	}
}

// graphNotification is a single change notification from Microsoft Graph
type graphNotification struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientState    string `json:"clientState"`
	ChangeType     string `json:"changeType"`
	Resource       string `json:"resource"`
}

type graphEnvelope struct {
	Value []graphNotification `json:"value"`
}

// Graph handles POST /webhooks/graph. The endpoint serves both the
// subscription validation handshake and change notifications.
func (h *WebhookHandler) Graph(c echo.Context) error {
	// Subscription handshake: Graph expects the token echoed back as plain
	// text within 10 seconds or the subscription is rejected.
	if token := c.QueryParam("validationToken"); token != "" {
		return c.String(http.StatusOK, token)
	}

	// Malformed payloads are acked, not rejected: Graph retries anything
	// but a 2xx and a broken payload will never parse better next time.
	var envelope graphEnvelope
	if err := json.NewDecoder(c.Request().Body).Decode(&envelope); err != nil {
		h.logger.Warn("discarding malformed graph notification",
			slog.String("error", fmt.Errorf("%w: %v", apperrors.ErrMalformedWebhook, err).Error()))
		return c.NoContent(http.StatusAccepted)
	}

	for _, n := range envelope.Value {
		account, err := h.accountRepo.GetBySubscriptionID(c.Request().Context(), n.SubscriptionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				h.logger.Warn("notification for unknown subscription",
					slog.String("subscription_id", n.SubscriptionID))
				continue
			}
			return response.InternalError(c, "failed to resolve subscription")
		}

		// The clientState secret proves the notification came from our
		// subscription and not from anyone who guessed the URL.
		if account.ClientState == "" || account.ClientState != n.ClientState {
			h.security.WebhookSpoofAttempt(c.RealIP(), "graph", n.SubscriptionID)
			continue
		}

		h.triggerSync(account.ID)
	}

	// Graph expects a fast 202 regardless of what we did with the batch.
	return c.NoContent(http.StatusAccepted)
}

// pubSubEnvelope is the Cloud Pub/Sub push wrapper around a Gmail
// notification
type pubSubEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// gmailNotification is the decoded Gmail watch payload
type gmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Gmail handles POST /webhooks/gmail with a Cloud Pub/Sub push delivery.
// Anything but a 2xx makes Pub/Sub redeliver forever, so malformed payloads
// and unknown accounts are logged and acked rather than rejected.
func (h *WebhookHandler) Gmail(c echo.Context) error {
	var envelope pubSubEnvelope
	if err := json.NewDecoder(c.Request().Body).Decode(&envelope); err != nil {
		return h.discardGmail(c, err)
	}

	raw, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		return h.discardGmail(c, err)
	}

	var notification gmailNotification
	if err := json.Unmarshal(raw, &notification); err != nil {
		return h.discardGmail(c, err)
	}
	if notification.EmailAddress == "" {
		return h.discardGmail(c, errors.New("payload missing emailAddress"))
	}

	account, err := h.accountRepo.GetByEmail(c.Request().Context(), notification.EmailAddress)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.logger.Warn("notification for unknown account",
				slog.String("email", notification.EmailAddress))
			return c.NoContent(http.StatusNoContent)
		}
		return response.InternalError(c, "failed to resolve account")
	}

	h.logger.Debug("gmail notification received",
		slog.Uint64("account_id", uint64(account.ID)),
		slog.String("history_id", strconv.FormatUint(notification.HistoryID, 10)))

	h.triggerSync(account.ID)
	return c.NoContent(http.StatusNoContent)
}

// discardGmail acks a Pub/Sub delivery whose payload cannot be used
func (h *WebhookHandler) discardGmail(c echo.Context, cause error) error {
	h.logger.Warn("discarding malformed gmail notification",
		slog.String("error", fmt.Errorf("%w: %v", apperrors.ErrMalformedWebhook, cause).Error()))
	return c.NoContent(http.StatusNoContent)
}

// triggerSync starts an incremental sync in the background unless one was
// already triggered for the account within the debounce window. Losing the
// database lock race to another sync is expected and silent.
func (h *WebhookHandler) triggerSync(accountID uint) {
	now := time.Now()

	h.mu.Lock()
	if last, ok := h.lastSeen[accountID]; ok && now.Sub(last) < debounceWindow {
		h.mu.Unlock()
		return
	}
	h.lastSeen[accountID] = now
	for id, seen := range h.lastSeen {
		if now.Sub(seen) > time.Minute {
			delete(h.lastSeen, id)
		}
	}
	h.mu.Unlock()

	h.triggerWG.Add(1)
	go func() {
		defer h.triggerWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), webhookSyncTimeout)
		defer cancel()

		_, err := h.engine.RunSync(ctx, accountID, syncengine.ModeAuto)
		if err != nil && !errors.Is(err, apperrors.ErrSyncAlreadyRunning) {
			h.logger.Warn("webhook-triggered sync failed",
				slog.Uint64("account_id", uint64(accountID)),
				slog.String("error", err.Error()))
		}
	}()
}

// Wait blocks until every background sync the handler triggered has
// finished. Tests use it; shutdown can too.
func (h *WebhookHandler) Wait() {
	h.triggerWG.Wait()
}
