package handlers

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lodestone-crm/lodestone-backend/internal/api/response"
	"github.com/lodestone-crm/lodestone-backend/internal/repository"
)

// ThreadHandler handles conversation thread HTTP requests
type ThreadHandler struct {
	threadRepo  repository.ThreadRepository
	accountRepo repository.AccountRepository
}

// NewThreadHandler creates a new ThreadHandler
func NewThreadHandler(threadRepo repository.ThreadRepository, accountRepo repository.AccountRepository) *ThreadHandler {
	return &ThreadHandler{
		threadRepo:  threadRepo,
		accountRepo: accountRepo,
	}
}

// List handles GET /api/accounts/:account_id/threads
func (h *ThreadHandler) List(c echo.Context) error {
	accountID, err := strconv.ParseUint(c.Param("account_id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	_, err = h.accountRepo.GetByID(c.Request().Context(), uint(accountID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "account not found")
		}
		return response.InternalError(c, "failed to get account")
	}

	limit, offset := paginationParams(c)

	threads, total, err := h.threadRepo.ListByAccount(c.Request().Context(), uint(accountID), limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list threads")
	}

	return response.Paginated(c, threads, total, limit, offset)
}

// Get handles GET /api/threads/:id
func (h *ThreadHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid thread ID")
	}

	thread, err := h.threadRepo.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "thread not found")
		}
		return response.InternalError(c, "failed to get thread")
	}

	return response.Success(c, thread)
}
