// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/rosy-tax/reviewer/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions      SessionManager
	Store         storage.Store
	Activity      ActivityLog
	Version       string
	ExtractionURL string
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Session  SessionHandler
	Download DownloadHandler
	Activity ActivityHandler
	Status   StatusStreamHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.ExtractionURL, deps.Sessions),
		Session:  NewSessionHandler(deps.Sessions),
		Download: NewDownloadHandler(deps.Store),
		Activity: NewActivityHandler(deps.Activity),
		Status:   NewWebSocketHandler(deps.Sessions),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Review sessions
	sessionGroup := apiGroup.Group("/sessions")
	sessionGroup.POST("", handlers.Session.HandleCreateSession)
	sessionGroup.GET("/:id", handlers.Session.HandleGetSession)
	sessionGroup.DELETE("/:id", handlers.Session.HandleDeleteSession)
	sessionGroup.GET("/:id/msgpack", handlers.Session.HandleGetSessionMsgpack)
	sessionGroup.POST("/:id/upload", handlers.Session.HandleUpload)
	sessionGroup.PUT("/:id/files/:index", handlers.Session.HandleSaveFile)
	sessionGroup.POST("/:id/finalize", handlers.Session.HandleFinalize)
	sessionGroup.GET("/:id/status/ws", handlers.Status.HandleStatusStream)

	// Finalized PDFs
	apiGroup.GET("/downloads", handlers.Download.HandleListDownloads)
	apiGroup.GET("/downloads/:id", handlers.Download.HandleGetDownload)
	apiGroup.DELETE("/downloads/:id", handlers.Download.HandleDeleteDownload)

	// Activity journal
	apiGroup.GET("/activity", handlers.Activity.HandleRecentActivity)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}
