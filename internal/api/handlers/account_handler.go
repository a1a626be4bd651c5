package handlers

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lodestone-crm/lodestone-backend/internal/api/response"
	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"github.com/lodestone-crm/lodestone-backend/internal/providers"
	"github.com/lodestone-crm/lodestone-backend/internal/repository"
	"github.com/lodestone-crm/lodestone-backend/internal/validator"
)

// AccountHandler handles email account HTTP requests
type AccountHandler struct {
	accountRepo repository.AccountRepository
	messageRepo repository.MessageRepository
	engine      SyncEngine
	webhookBase string
}

// NewAccountHandler creates a new AccountHandler. webhookBase is the public
// base URL provider push notifications are delivered to.
func NewAccountHandler(accountRepo repository.AccountRepository, messageRepo repository.MessageRepository, engine SyncEngine, webhookBase string) *AccountHandler {
	return &AccountHandler{
		accountRepo: accountRepo,
		messageRepo: messageRepo,
		engine:      engine,
		webhookBase: webhookBase,
	}
}

// CreateAccountRequest represents the request body for connecting an account
type CreateAccountRequest struct {
	TenantID         string `json:"tenant_id"`
	Provider         string `json:"provider"`
	EmailAddress     string `json:"email_address"`
	DisplayName      string `json:"display_name"`
	CredentialRef    string `json:"credential_ref"`
	IMAPHost         string `json:"imap_host"`
	IMAPPort         int    `json:"imap_port"`
	PollIntervalSecs int    `json:"poll_interval_secs"`
}

// Create handles POST /api/accounts
func (h *AccountHandler) Create(c echo.Context) error {
	var req CreateAccountRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if req.TenantID == "" {
		return response.BadRequest(c, "tenant_id is required")
	}
	if err := validator.ValidateEmail(req.EmailAddress); err != nil {
		return response.BadRequest(c, "invalid email address")
	}
	if req.CredentialRef == "" {
		return response.BadRequest(c, "credential_ref is required")
	}

	switch req.Provider {
	case models.ProviderGraph, models.ProviderGmail:
	case models.ProviderIMAP:
		if req.IMAPHost == "" {
			return response.BadRequest(c, "imap_host is required for imap accounts")
		}
	default:
		return response.BadRequest(c, "unknown provider")
	}

	account := &models.EmailAccount{
		TenantID:         validator.SanitizeString(req.TenantID, 64),
		Provider:         req.Provider,
		EmailAddress:     req.EmailAddress,
		DisplayName:      validator.SanitizeString(req.DisplayName, 255),
		CredentialRef:    req.CredentialRef,
		IMAPHost:         req.IMAPHost,
		IMAPPort:         req.IMAPPort,
		Active:           true,
		PollIntervalSecs: req.PollIntervalSecs,
		SyncState:        models.SyncStateIdle,
	}

	if err := h.accountRepo.Create(c.Request().Context(), account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return response.Conflict(c, "account already connected")
		}
		return response.InternalError(c, "failed to create account")
	}

	return response.Created(c, account)
}

// List handles GET /api/accounts
func (h *AccountHandler) List(c echo.Context) error {
	limit, offset := paginationParams(c)

	accounts, total, err := h.accountRepo.List(c.Request().Context(), limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list accounts")
	}

	return response.Paginated(c, accounts, total, limit, offset)
}

// Get handles GET /api/accounts/:id
func (h *AccountHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	account, err := h.accountRepo.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "account not found")
		}
		return response.InternalError(c, "failed to get account")
	}

	unread, err := h.messageRepo.CountUnread(c.Request().Context(), account.ID)
	if err != nil {
		return response.InternalError(c, "failed to count unread messages")
	}

	return response.Success(c, models.AccountWithCounts{
		EmailAccount: *account,
		UnreadCount:  unread,
	})
}

// UpdateCredentialsRequest represents the request body for re-authorizing
// an account
type UpdateCredentialsRequest struct {
	CredentialRef string `json:"credential_ref"`
}

// UpdateCredentials handles PUT /api/accounts/:id/credentials. Replacing the
// credential reference lifts an auth_expired suspension and puts the account
// back into the polling rotation.
func (h *AccountHandler) UpdateCredentials(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	var req UpdateCredentialsRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if req.CredentialRef == "" {
		return response.BadRequest(c, "credential_ref is required")
	}

	if err := h.accountRepo.UpdateCredentials(c.Request().Context(), uint(id), req.CredentialRef); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "account not found")
		}
		return response.InternalError(c, "failed to update credentials")
	}

	return response.SuccessWithMessage(c, nil, "credentials updated")
}

// Delete handles DELETE /api/accounts/:id. The account is deactivated, not
// removed; its messages stay queryable and the dedup constraint keeps holding.
func (h *AccountHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	if err := h.accountRepo.Deactivate(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "account not found")
		}
		return response.InternalError(c, "failed to deactivate account")
	}

	return response.NoContent(c)
}

// EnableRealtime handles POST /api/accounts/:id/realtime. It registers a
// push subscription with the provider; poll-only providers get 400.
func (h *AccountHandler) EnableRealtime(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	err = h.engine.RegisterPush(c.Request().Context(), uint(id), h.webhookBase+"/webhooks/graph")
	if err != nil {
		if errors.Is(err, providers.ErrPushNotSupported) {
			return response.BadRequest(c, "provider does not support push notifications")
		}
		return response.Error(c, err)
	}

	return response.SuccessWithMessage(c, nil, "realtime notifications enabled")
}

// DisableRealtime handles DELETE /api/accounts/:id/realtime
func (h *AccountHandler) DisableRealtime(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	if err := h.accountRepo.SetRealtime(c.Request().Context(), uint(id), false); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "account not found")
		}
		return response.InternalError(c, "failed to disable realtime")
	}

	return response.SuccessWithMessage(c, nil, "realtime notifications disabled")
}

// paginationParams reads limit/offset query parameters with sane bounds
func paginationParams(c echo.Context) (int, int) {
	limit := validator.DefaultLimit
	offset := 0

	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil {
			offset = parsed
		}
	}

	return validator.ValidatePagination(limit, offset)
}
