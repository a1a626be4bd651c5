package handlers

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lodestone-crm/lodestone-backend/internal/api/response"
	"github.com/lodestone-crm/lodestone-backend/internal/sync"
)

// SyncEngine is the part of the sync orchestrator the API layer drives.
type SyncEngine interface {
	RunSync(ctx context.Context, accountID uint, mode sync.Mode) (*sync.Summary, error)
	RegisterPush(ctx context.Context, accountID uint, notificationURL string) error
}

// SyncHandler handles manual sync trigger HTTP requests
type SyncHandler struct {
	engine SyncEngine
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(engine SyncEngine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// Trigger handles POST /api/accounts/:id/sync?mode=auto|incremental|historical.
// The sync runs inline and the summary is returned; a concurrent run
// surfaces as 409 through the error mapping.
func (h *SyncHandler) Trigger(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	mode, err := sync.ParseMode(c.QueryParam("mode"))
	if err != nil {
		return response.BadRequest(c, "unknown sync mode")
	}

	summary, err := h.engine.RunSync(c.Request().Context(), uint(id), mode)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, summary)
}
