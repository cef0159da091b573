// handlers_session.go - Review session handlers
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rosy-tax/reviewer/internal/extraction"
	"github.com/rosy-tax/reviewer/internal/models"
	"github.com/rosy-tax/reviewer/internal/review"
	"github.com/rosy-tax/reviewer/internal/session"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions SessionManager
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(sessions SessionManager) SessionHandler {
	return &SessionHandlerImpl{sessions: sessions}
}

// sessionResponse is the body of every session endpoint
type sessionResponse struct {
	ID   string      `json:"id"`
	View review.View `json:"view"`
}

// finalizeResponse adds the stored PDF to the session view
type finalizeResponse struct {
	ID       string               `json:"id"`
	Download *models.DownloadInfo `json:"download"`
	URL      string               `json:"url"`
	View     review.View          `json:"view"`
}

type saveFieldsRequest struct {
	Fields map[string]string `json:"fields"`
}

type finalizeRequest struct {
	FilingStatus *string `json:"filing_status"`
}

// HandleCreateSession starts a new review session
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	s := h.sessions.Create()
	return c.JSON(http.StatusCreated, sessionResponse{ID: s.ID, View: s.Controller.Render()})
}

// HandleGetSession returns the rendered view of a session
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionResponse{ID: s.ID, View: s.Controller.Render()})
}

// HandleGetSessionMsgpack returns the rendered view encoded as MessagePack
func (h *SessionHandlerImpl) HandleGetSessionMsgpack(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}

	data, err := EncodeMsgpack(sessionResponse{ID: s.ID, View: s.Controller.Render()})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleDeleteSession discards a session
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.Delete(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleUpload submits the multipart files to the extraction server
func (h *SessionHandlerImpl) HandleUpload(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}

	req, err := ReadUploadRequest(c)
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}

	if _, err := s.Controller.Submit(c.Request().Context(), req); err != nil {
		return FromReviewError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse{ID: s.ID, View: s.Controller.Render()})
}

// HandleSaveFile writes edited fields into one per-file entry
func (h *SessionHandlerImpl) HandleSaveFile(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return NewBadRequestError("invalid file index", err)
	}

	var req saveFieldsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := s.Controller.Save(c.Request().Context(), index, req.Fields); err != nil {
		return FromReviewError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse{ID: s.ID, View: s.Controller.Render()})
}

// HandleFinalize generates the final PDF. Without a filing_status in the
// body the value of the last upload is used.
func (h *SessionHandlerImpl) HandleFinalize(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}

	var req finalizeRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
	}
	filingStatus := s.Controller.State().FilingStatus
	if req.FilingStatus != nil {
		filingStatus = *req.FilingStatus
	}

	info, err := s.Controller.Finalize(c.Request().Context(), filingStatus)
	if err != nil {
		return FromReviewError(err)
	}
	return c.JSON(http.StatusOK, finalizeResponse{
		ID:       s.ID,
		Download: info,
		URL:      DownloadURL(info.ID),
		View:     s.Controller.Render(),
	})
}

func (h *SessionHandlerImpl) lookup(c echo.Context) (*session.Session, error) {
	id := c.Param("id")
	s, ok := h.sessions.Get(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	return s, nil
}

// DownloadURL is the path serving a stored PDF.
func DownloadURL(id string) string {
	return "/api/downloads/" + id
}

// EncodeMsgpack encodes v with MessagePack, reusing the json tags as keys.
func EncodeMsgpack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadUploadRequest collects the repeated "files" parts and the taxpayer
// fields of a multipart form. A form that is not multipart yields no files.
func ReadUploadRequest(c echo.Context) (models.UploadRequest, error) {
	req := models.UploadRequest{
		FilingStatus: c.FormValue("filing_status"),
		Withholding:  c.FormValue("withholding"),
	}

	form, err := c.MultipartForm()
	if errors.Is(err, http.ErrNotMultipart) {
		return req, nil
	}
	if err != nil {
		return req, err
	}

	for _, fh := range form.File[extraction.FilesField] {
		f, err := fh.Open()
		if err != nil {
			return req, fmt.Errorf("opening %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return req, fmt.Errorf("reading %s: %w", fh.Filename, err)
		}
		// browsers send an empty part when no file was chosen
		if fh.Filename == "" && len(data) == 0 {
			continue
		}
		req.Files = append(req.Files, models.UploadFile{Name: fh.Filename, Data: data})
	}
	return req, nil
}
