// handlers_download.go - Finalized PDF download handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rosy-tax/reviewer/internal/models"
	"github.com/rosy-tax/reviewer/internal/storage"
)

// DownloadHandlerImpl implements the DownloadHandler interface
type DownloadHandlerImpl struct {
	store storage.Store
}

// NewDownloadHandler creates a new download handler instance
func NewDownloadHandler(store storage.Store) DownloadHandler {
	return &DownloadHandlerImpl{store: store}
}

// HandleGetDownload streams a stored PDF as an attachment named draft_1040.pdf
func (h *DownloadHandlerImpl) HandleGetDownload(c echo.Context) error {
	id := c.Param("id")
	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("download", id)
	}

	rc, err := h.store.Open(id)
	if err != nil {
		return NewNotFoundError("download", id)
	}
	defer rc.Close()

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, `attachment; filename="`+models.DraftFileName+`"`)
	header.Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	return c.Stream(http.StatusOK, "application/pdf", rc)
}

// HandleListDownloads returns the most recent downloads, newest first
func (h *DownloadHandlerImpl) HandleListDownloads(c echo.Context) error {
	limit := 20
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return NewValidationError("limit must be a positive integer")
		}
		limit = n
	}

	list, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("listing downloads", err)
	}
	if list == nil {
		list = []*models.DownloadInfo{}
	}
	return c.JSON(http.StatusOK, list)
}

// HandleDeleteDownload removes a stored PDF
func (h *DownloadHandlerImpl) HandleDeleteDownload(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		return NewNotFoundError("download", id)
	}
	return c.NoContent(http.StatusNoContent)
}
