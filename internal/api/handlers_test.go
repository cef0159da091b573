package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rosy-tax/reviewer/internal/extraction"
	"github.com/rosy-tax/reviewer/internal/models"
	"github.com/rosy-tax/reviewer/internal/review"
	"github.com/rosy-tax/reviewer/internal/session"
	"github.com/rosy-tax/reviewer/internal/testutil"
)

type testEnv struct {
	e        *echo.Echo
	sessions *session.Manager
	backend  *testutil.MockBackend
	store    *testutil.MockStorage
	activity *fakeActivity
}

type fakeActivity struct {
	events []models.Event
}

func (f *fakeActivity) Record(_ context.Context, ev models.Event) error {
	f.events = append([]models.Event{ev}, f.events...)
	return nil
}

func (f *fakeActivity) Recent(_ context.Context, limit int) ([]models.Event, error) {
	if limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeActivity) ForSession(_ context.Context, id string, limit int) ([]models.Event, error) {
	var out []models.Event
	for _, ev := range f.events {
		if ev.SessionID == id && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	var r models.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(testutil.SampleResultJSON), &r))

	env := &testEnv{
		backend:  testutil.NewMockBackend(&r),
		store:    testutil.NewMockStorage(),
		activity: &fakeActivity{},
	}
	env.sessions = session.NewManager(env.backend, env.store, session.WithRecorder(env.activity))

	env.e = echo.New()
	SetupMiddleware(env.e)
	RegisterRoutes(env.e, NewHandlers(&Dependencies{
		Sessions:      env.sessions,
		Store:         env.store,
		Activity:      env.activity,
		Version:       "test",
		ExtractionURL: "http://extract.test",
	}))
	return env
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func uploadBody(t *testing.T, files map[string]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile(extraction.FilesField, name)
		require.NoError(t, err)
		part.Write([]byte(content))
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionResponse {
	t.Helper()
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeSession(t, rec)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, review.PhaseIdle, created.View.Phase)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/sessions/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestUploadSaveFinalizeFlow(t *testing.T) {
	env := newTestEnv(t)
	s := env.sessions.Create()

	// upload
	body, ct := uploadBody(t, map[string]string{"w2.txt": "wages"}, map[string]string{
		"filing_status": "single",
		"withholding":   "",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+s.ID+"/upload", body)
	req.Header.Set(echo.HeaderContentType, ct)
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	view := decodeSession(t, rec).View
	assert.Equal(t, review.StatusProcessed, view.Status)
	require.NotNil(t, view.Result)
	require.Len(t, view.Result.Files, 2)
	require.Len(t, env.backend.UploadCalls, 1)
	assert.Equal(t, "w2.txt", env.backend.UploadCalls[0].Files[0].Name)
	assert.Equal(t, "single", env.backend.UploadCalls[0].FilingStatus)

	// save
	req = httptest.NewRequest(http.MethodPut, "/api/sessions/"+s.ID+"/files/0",
		strings.NewReader(`{"fields":{"wages":"51,000.00"}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decodeSession(t, rec).View
	assert.Equal(t, "Updated fields for w2.txt", view.Status)
	assert.Contains(t, view.Result.Files[0].Inputs, review.InputView{Name: "wages", Value: "51,000.00"})

	// finalize
	req = httptest.NewRequest(http.MethodPost, "/api/sessions/"+s.ID+"/finalize",
		strings.NewReader(`{"filing_status":"married_joint"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fin finalizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fin))
	require.NotNil(t, fin.Download)
	assert.Equal(t, "/api/downloads/"+fin.Download.ID, fin.URL)
	assert.Equal(t, review.StatusReady, fin.View.Status)
	require.Len(t, env.backend.FinalizeCalls, 1)
	assert.Equal(t, "married_joint", env.backend.FinalizeCalls[0].FilingStatus)
	wages, _ := env.backend.FinalizeCalls[0].PerFile[0].Fields.Get("wages")
	assert.Equal(t, "51,000.00", wages)

	// download
	rec = env.do(httptest.NewRequest(http.MethodGet, fin.URL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="draft_1040.pdf"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, testutil.SamplePDF, rec.Body.Bytes())

	// activity
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/activity?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var events []models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, models.EventFinalize, events[0].Kind)
	assert.Equal(t, models.EventSave, events[1].Kind)
}

func TestFinalize_DefaultsToLastFilingStatus(t *testing.T) {
	env := newTestEnv(t)
	s := env.sessions.Create()
	_, err := s.Controller.Submit(context.Background(), models.UploadRequest{
		Files:        []models.UploadFile{{Name: "w2.txt", Data: []byte("x")}},
		FilingStatus: "head_of_household",
	})
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/sessions/"+s.ID+"/finalize", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "head_of_household", env.backend.FinalizeCalls[0].FilingStatus)
}

func TestDownloadListAndDelete(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddFile("d1", models.DraftFileName, testutil.SamplePDF)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/downloads", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.DownloadInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "d1", list[0].ID)
	assert.Equal(t, int64(len(testutil.SamplePDF)), list[0].Size)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/downloads?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/downloads/d1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, env.store.GetFileCount())

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/downloads/d1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/downloads", nil))
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestSessionErrors(t *testing.T) {
	env := newTestEnv(t)
	s := env.sessions.Create()

	tests := []struct {
		name       string
		setup      func()
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "upload without files",
			method:     http.MethodPost,
			path:       "/api/sessions/" + s.ID + "/upload",
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "save before upload",
			method:     http.MethodPut,
			path:       "/api/sessions/" + s.ID + "/files/0",
			body:       `{"fields":{"a":"b"}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "bad index",
			method:     http.MethodPut,
			path:       "/api/sessions/" + s.ID + "/files/abc",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "finalize before upload",
			method:     http.MethodPost,
			path:       "/api/sessions/" + s.ID + "/finalize",
			body:       `{"filing_status":"single"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "upload rejected by server",
			setup: func() {
				env.backend.UploadFunc = func(context.Context, models.UploadRequest) (*models.ExtractionResult, error) {
					return nil, &extraction.UploadError{StatusCode: 400, Message: "bad file"}
				}
			},
			method:     http.MethodPost,
			path:       "/api/sessions/" + s.ID + "/upload",
			body:       "multipart",
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPLOAD_FAILED",
		},
		{
			name: "server unreachable",
			setup: func() {
				env.backend.UploadFunc = func(context.Context, models.UploadRequest) (*models.ExtractionResult, error) {
					return nil, &extraction.NetworkError{Message: "connection refused"}
				}
			},
			method:     http.MethodPost,
			path:       "/api/sessions/" + s.ID + "/upload",
			body:       "multipart",
			wantStatus: http.StatusBadGateway,
			wantCode:   "NETWORK_ERROR",
		},
		{
			name:       "unknown download",
			method:     http.MethodGet,
			path:       "/api/downloads/nope",
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "unknown session websocket",
			method:     http.MethodGet,
			path:       "/api/sessions/nope/status/ws",
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			var req *http.Request
			switch tt.body {
			case "":
				req = httptest.NewRequest(tt.method, tt.path, nil)
			case "multipart":
				body, ct := uploadBody(t, map[string]string{"w2.txt": "x"}, nil)
				req = httptest.NewRequest(tt.method, tt.path, body)
				req.Header.Set(echo.HeaderContentType, ct)
			default:
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
				req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			}

			rec := env.do(req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestFromReviewError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{review.ErrBusy, http.StatusConflict, "CONFLICT"},
		{&review.ValidationError{Message: "no files"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{&extraction.UploadError{StatusCode: 400, Message: "x"}, http.StatusBadGateway, "UPLOAD_FAILED"},
		{&extraction.NetworkError{Message: "x"}, http.StatusBadGateway, "NETWORK_ERROR"},
		{&extraction.FinalizeError{StatusCode: 500}, http.StatusBadGateway, "FINALIZE_FAILED"},
		{&extraction.FinalizeError{Err: &extraction.NetworkError{Message: "x"}}, http.StatusBadGateway, "FINALIZE_FAILED"},
		{&review.DownloadError{Message: "x"}, http.StatusBadGateway, "DOWNLOAD_FAILED"},
		{NewNotFoundError("session", "x"), http.StatusNotFound, "NOT_FOUND"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		apiErr := FromReviewError(tt.err)
		assert.Equal(t, tt.wantStatus, apiErr.Status, "%T", tt.err)
		assert.Equal(t, tt.wantCode, apiErr.Code, "%T", tt.err)
	}
}

func TestConcurrentFinalizeIsConflict(t *testing.T) {
	env := newTestEnv(t)
	s := env.sessions.Create()
	_, err := s.Controller.Submit(context.Background(), models.UploadRequest{
		Files: []models.UploadFile{{Name: "w2.txt", Data: []byte("x")}},
	})
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	env.backend.FinalizeFunc = func(context.Context, models.FinalizeRequest) (io.ReadCloser, error) {
		close(started)
		<-release
		return io.NopCloser(bytes.NewReader(testutil.SamplePDF)), nil
	}

	done := make(chan int, 1)
	go func() {
		done <- env.do(httptest.NewRequest(http.MethodPost, "/api/sessions/"+s.ID+"/finalize", nil)).Code
	}()
	<-started

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/sessions/"+s.ID+"/finalize", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decodeError(t, rec).Code)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, 1, env.backend.FinalizeCount())
}

func TestSessionMsgpack(t *testing.T) {
	env := newTestEnv(t)
	s := env.sessions.Create()
	_, err := s.Controller.Submit(context.Background(), models.UploadRequest{
		Files: []models.UploadFile{{Name: "w2.txt", Data: []byte("x")}},
	})
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+s.ID+"/msgpack", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var decoded sessionResponse
	dec := msgpack.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	dec.SetCustomStructTag("json")
	require.NoError(t, dec.Decode(&decoded))
	assert.Equal(t, s.ID, decoded.ID)
	assert.Equal(t, s.Controller.Render(), decoded.View)
}

func TestStatusStream(t *testing.T) {
	env := newTestEnv(t)
	s := env.sessions.Create()

	srv := httptest.NewServer(env.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + s.ID + "/status/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	_, err = s.Controller.Submit(context.Background(), models.UploadRequest{
		Files: []models.UploadFile{{Name: "w2.txt", Data: []byte("x")}},
	})
	require.NoError(t, err)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got []string
	for len(got) < 3 {
		var msg WSMessage
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type == MsgTypeStatus {
			got = append(got, msg.Status)
		}
	}
	assert.Equal(t, []string{review.StatusPreparing, review.StatusUploading, review.StatusProcessed}, got)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing}))
	var pong WSMessage
	require.NoError(t, ws.ReadJSON(&pong))
	assert.Equal(t, MsgTypePong, pong.Type)

	env.sessions.Delete(s.ID)
	var closed WSMessage
	require.NoError(t, ws.ReadJSON(&closed))
	assert.Equal(t, MsgTypeClosed, closed.Type)
}
