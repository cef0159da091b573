package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/rosy-tax/reviewer/internal/api"
	"github.com/rosy-tax/reviewer/internal/review"
	"github.com/rosy-tax/reviewer/internal/session"
)

const (
	// CookieName holds the review session id of a browser.
	CookieName = "review_session"

	// FieldPrefix prefixes the input names of a review block.
	FieldPrefix = "field:"

	cookieMaxAge = 24 * time.Hour
)

// FilingStatusSuggestions pre-populate the filing status input. Any other
// value is accepted and passed through.
var FilingStatusSuggestions = []string{"single", "married", "married_separate", "head_of_household"}

// Sessions resolves the browser's review session.
type Sessions interface {
	GetOrCreate(id string) (*session.Session, bool)
}

// Handler serves the review page.
type Handler struct {
	sessions Sessions
}

// NewHandler creates the page handler.
func NewHandler(sessions Sessions) *Handler {
	return &Handler{sessions: sessions}
}

// PageData is what the index template draws.
type PageData struct {
	SessionID      string
	View           review.View
	FilingStatuses []string
	FilingStatus   string
	AggregatedID   string
}

// Register mounts the page routes.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.HandleIndex)
	e.POST("/upload", h.HandleUpload)
	e.POST("/files/:index/save", h.HandleSave)
	e.POST("/finalize", h.HandleFinalize)
}

// HandleIndex renders the page from the caller's session.
func (h *Handler) HandleIndex(c echo.Context) error {
	s := h.session(c)
	view := s.Controller.Render()

	filingStatus := view.FilingStatus
	if filingStatus == "" {
		filingStatus = FilingStatusSuggestions[0]
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Render(http.StatusOK, "index.html", PageData{
		SessionID:      s.ID,
		View:           view,
		FilingStatuses: FilingStatusSuggestions,
		FilingStatus:   filingStatus,
		AggregatedID:   review.AggregatedAreaID,
	})
}

// HandleUpload submits the upload form and redirects back to the page.
func (h *Handler) HandleUpload(c echo.Context) error {
	s := h.session(c)

	req, err := api.ReadUploadRequest(c)
	if err != nil {
		return api.NewBadRequestError("invalid multipart form", err)
	}

	if _, err := s.Controller.Submit(c.Request().Context(), req); err != nil {
		logOutcome(s.ID, "upload", err)
	}
	return c.Redirect(http.StatusSeeOther, "/#result")
}

// HandleSave stores one review block's inputs.
func (h *Handler) HandleSave(c echo.Context) error {
	s := h.session(c)

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return api.NewBadRequestError("invalid file index", err)
	}

	params, err := c.FormParams()
	if err != nil {
		return api.NewBadRequestError("invalid form", err)
	}
	values := make(map[string]string)
	for name, vals := range params {
		if key, ok := strings.CutPrefix(name, FieldPrefix); ok && len(vals) > 0 {
			values[key] = vals[0]
		}
	}

	if err := s.Controller.Save(c.Request().Context(), index, values); err != nil {
		logOutcome(s.ID, "save", err)
	}
	return c.Redirect(http.StatusSeeOther, "/#"+review.AggregatedAreaID)
}

// HandleFinalize reads the filing status from the upload form at click time
// and generates the PDF.
func (h *Handler) HandleFinalize(c echo.Context) error {
	s := h.session(c)

	if _, err := s.Controller.Finalize(c.Request().Context(), c.FormValue("filing_status")); err != nil {
		logOutcome(s.ID, "finalize", err)
	}
	return c.Redirect(http.StatusSeeOther, "/#"+review.AggregatedAreaID)
}

// session returns the cookie's session, issuing a new cookie when needed.
func (h *Handler) session(c echo.Context) *session.Session {
	var id string
	if cookie, err := c.Cookie(CookieName); err == nil {
		id = cookie.Value
	}

	s, created := h.sessions.GetOrCreate(id)
	if created {
		c.SetCookie(&http.Cookie{
			Name:     CookieName,
			Value:    s.ID,
			Path:     "/",
			MaxAge:   int(cookieMaxAge.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return s
}

// logOutcome logs a failed action. The user sees it through the status line.
func logOutcome(sessionID, action string, err error) {
	ev := log.Warn()
	var vErr *review.ValidationError
	if errors.As(err, &vErr) || errors.Is(err, review.ErrBusy) {
		ev = log.Debug()
	}
	ev.Err(err).Str("session", sessionID).Str("action", action).Msg("page action failed")
}
