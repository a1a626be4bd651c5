package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lodestone-crm/lodestone-backend/internal/api/response"
	"github.com/lodestone-crm/lodestone-backend/internal/repository"
	"github.com/lodestone-crm/lodestone-backend/internal/storage"
)

// MessageHandler handles message-related HTTP requests
type MessageHandler struct {
	messageRepo repository.MessageRepository
	accountRepo repository.AccountRepository
	bodies      storage.BodyStore
}

// NewMessageHandler creates a new MessageHandler. The body store may be nil
// when body offloading is disabled.
func NewMessageHandler(messageRepo repository.MessageRepository, accountRepo repository.AccountRepository, bodies storage.BodyStore) *MessageHandler {
	return &MessageHandler{
		messageRepo: messageRepo,
		accountRepo: accountRepo,
		bodies:      bodies,
	}
}

// List handles GET /api/accounts/:account_id/messages
func (h *MessageHandler) List(c echo.Context) error {
	accountID, err := strconv.ParseUint(c.Param("account_id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	// Verify account exists
	_, err = h.accountRepo.GetByID(c.Request().Context(), uint(accountID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "account not found")
		}
		return response.InternalError(c, "failed to get account")
	}

	limit, offset := paginationParams(c)

	messages, total, err := h.messageRepo.ListByAccount(c.Request().Context(), uint(accountID), limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list messages")
	}

	return response.Paginated(c, messages, total, limit, offset)
}

// Get handles GET /api/messages/:id
func (h *MessageHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid message ID")
	}

	message, err := h.messageRepo.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.InternalError(c, "failed to get message")
	}

	return response.Success(c, message)
}

// GetBody handles GET /api/messages/:id/body. It serves the full HTML body,
// resolving offloaded bodies through the store, and falls back to plain text.
func (h *MessageHandler) GetBody(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid message ID")
	}

	message, err := h.messageRepo.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.InternalError(c, "failed to get message")
	}

	if message.BodyRef != "" && h.bodies != nil {
		body, err := h.bodies.Get(message.BodyRef)
		if err != nil {
			if errors.Is(err, storage.ErrBodyNotFound) {
				return response.NotFound(c, "message body not found")
			}
			return response.InternalError(c, "failed to load message body")
		}
		return c.HTMLBlob(http.StatusOK, body)
	}
	if message.BodyHTML != "" {
		return c.HTML(http.StatusOK, message.BodyHTML)
	}
	if message.BodyText != "" {
		return c.String(http.StatusOK, message.BodyText)
	}
	return response.NotFound(c, "message has no body")
}

// MarkAsRead handles PATCH /api/messages/:id/read
func (h *MessageHandler) MarkAsRead(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid message ID")
	}

	if err := h.messageRepo.MarkAsRead(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.InternalError(c, "failed to mark message as read")
	}

	return response.SuccessWithMessage(c, nil, "message marked as read")
}

// MarkAsUnread handles PATCH /api/messages/:id/unread
func (h *MessageHandler) MarkAsUnread(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid message ID")
	}

	if err := h.messageRepo.MarkAsUnread(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.InternalError(c, "failed to mark message as unread")
	}

	return response.SuccessWithMessage(c, nil, "message marked as unread")
}

// Delete handles DELETE /api/messages/:id
func (h *MessageHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid message ID")
	}

	if err := h.messageRepo.SoftDelete(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.InternalError(c, "failed to delete message")
	}

	return response.NoContent(c)
}
