// handlers_activity.go - Activity journal handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rosy-tax/reviewer/internal/models"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// ActivityHandlerImpl implements the ActivityHandler interface
type ActivityHandlerImpl struct {
	log ActivityLog
}

// NewActivityHandler creates a new activity handler. A nil log serves an
// empty list.
func NewActivityHandler(log ActivityLog) ActivityHandler {
	return &ActivityHandlerImpl{log: log}
}

// HandleRecentActivity returns recent review events, newest first.
// Optional query parameters: limit, session.
func (h *ActivityHandlerImpl) HandleRecentActivity(c echo.Context) error {
	limit := defaultActivityLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return NewBadRequestError("invalid limit", err)
		}
		limit = n
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	if h.log == nil {
		return c.JSON(http.StatusOK, []models.Event{})
	}

	var (
		events []models.Event
		err    error
	)
	if sid := c.QueryParam("session"); sid != "" {
		events, err = h.log.ForSession(c.Request().Context(), sid, limit)
	} else {
		events, err = h.log.Recent(c.Request().Context(), limit)
	}
	if err != nil {
		return NewInternalError("failed to read activity", err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return c.JSON(http.StatusOK, events)
}
