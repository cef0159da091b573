// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/rosy-tax/reviewer/internal/models"
	"github.com/rosy-tax/reviewer/internal/session"
)

// SessionHandler handles review session operations
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleGetSessionMsgpack(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleUpload(c echo.Context) error
	HandleSaveFile(c echo.Context) error
	HandleFinalize(c echo.Context) error
}

// DownloadHandler serves finalized PDFs
type DownloadHandler interface {
	HandleGetDownload(c echo.Context) error
	HandleListDownloads(c echo.Context) error
	HandleDeleteDownload(c echo.Context) error
}

// ActivityHandler exposes the activity journal
type ActivityHandler interface {
	HandleRecentActivity(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// StatusStreamHandler streams session status lines over WebSocket
type StatusStreamHandler interface {
	HandleStatusStream(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Create() *session.Session
	Get(id string) (*session.Session, bool)
	Delete(id string) bool
	Count() int
}

// ActivityLog reads recorded review events, newest first
type ActivityLog interface {
	Recent(ctx context.Context, limit int) ([]models.Event, error)
	ForSession(ctx context.Context, sessionID string, limit int) ([]models.Event, error)
}

var _ SessionManager = (*session.Manager)(nil)
