package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosy-tax/reviewer/internal/api"
	"github.com/rosy-tax/reviewer/internal/models"
	"github.com/rosy-tax/reviewer/internal/session"
	"github.com/rosy-tax/reviewer/internal/testutil"
)

type pageEnv struct {
	e       *echo.Echo
	backend *testutil.MockBackend
	cookie  *http.Cookie
}

func newPageEnv(t *testing.T) *pageEnv {
	t.Helper()
	var r models.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(testutil.SampleResultJSON), &r))
	backend := testutil.NewMockBackend(&r)
	mgr := session.NewManager(backend, testutil.NewMockStorage())

	renderer, err := NewRenderer()
	require.NoError(t, err)

	e := echo.New()
	e.Renderer = renderer
	api.SetupMiddleware(e)
	require.NoError(t, RegisterStaticRoutes(e))
	NewHandler(mgr).Register(e)
	return &pageEnv{e: e, backend: backend}
}

func (p *pageEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if p.cookie != nil {
		req.AddCookie(p.cookie)
	}
	rec := httptest.NewRecorder()
	p.e.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			p.cookie = c
		}
	}
	return rec
}

func (p *pageEnv) page(t *testing.T) string {
	t.Helper()
	rec := p.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func (p *pageEnv) postMultipart(t *testing.T, path string, files map[string]string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		part.Write([]byte(content))
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return p.do(t, req)
}

func TestIndex_InitialPage(t *testing.T) {
	p := newPageEnv(t)

	html := p.page(t)

	require.NotNil(t, p.cookie, "a session cookie is issued")
	assert.True(t, p.cookie.HttpOnly)
	for _, id := range []string{"upload-form", "files", "filing_status", "withholding", "status", "result"} {
		assert.Contains(t, html, `id="`+id+`"`)
	}
	assert.NotContains(t, html, `id="aggregated-area"`)
	assert.Contains(t, html, `value="single"`)
}

func TestIndex_ReusesSessionCookie(t *testing.T) {
	p := newPageEnv(t)
	p.page(t)
	first := p.cookie.Value

	rec := p.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, first, p.cookie.Value)
}

func TestUpload_NoFiles(t *testing.T) {
	p := newPageEnv(t)
	p.page(t)

	rec := p.postMultipart(t, "/upload", nil, map[string]string{"filing_status": "single"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	assert.Contains(t, p.page(t), "Please select one or more files to upload.")
	assert.Equal(t, 0, p.backend.UploadCount())
}

func TestReviewWorkflow(t *testing.T) {
	p := newPageEnv(t)
	p.page(t)

	rec := p.postMultipart(t, "/upload",
		map[string]string{"w2.txt": "Employer: Acme"},
		map[string]string{"filing_status": "married", "withholding": ""})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	html := p.page(t)
	assert.Contains(t, html, "Processing complete")
	assert.Equal(t, 2, strings.Count(html, `class="review-block"`))
	assert.Contains(t, html, "File 1: w2.txt")
	assert.Contains(t, html, "File 2: 1099.txt")
	assert.Contains(t, html, `name="field:employer" value="Acme Corp"`)
	assert.Equal(t, 1, strings.Count(html, `id="aggregated-area"`))
	assert.Contains(t, html, `value="married"`)
	assert.Equal(t, "0", p.backend.UploadCalls[0].NormalizedWithholding())

	// save twice; still exactly one aggregated block
	for _, v := range []string{"51,000.00", "52,000.00"} {
		form := url.Values{"field:wages": {v}}
		req := httptest.NewRequest(http.MethodPost, "/files/0/save", strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		rec = p.do(t, req)
		require.Equal(t, http.StatusSeeOther, rec.Code)
	}

	html = p.page(t)
	assert.Contains(t, html, "Updated fields for w2.txt")
	assert.Contains(t, html, `name="field:wages" value="52,000.00"`)
	assert.Contains(t, html, `name="field:amount" value="1,200.00"`)
	assert.Equal(t, 1, strings.Count(html, `id="aggregated-area"`))

	// finalize reads the filing status from the upload form
	rec = p.postMultipart(t, "/finalize", nil, map[string]string{"filing_status": "head_of_household"})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	require.Equal(t, 1, p.backend.FinalizeCount())
	call := p.backend.FinalizeCalls[0]
	assert.Equal(t, "head_of_household", call.FilingStatus)
	wages, _ := call.PerFile[0].Fields.Get("wages")
	assert.Equal(t, "52,000.00", wages)

	html = p.page(t)
	assert.Contains(t, html, "Final PDF ready")
	assert.Contains(t, html, `href="/api/downloads/`)
	assert.Contains(t, html, `download="draft_1040.pdf"`)
}

func TestSave_BadIndex(t *testing.T) {
	p := newPageEnv(t)
	p.page(t)

	req := httptest.NewRequest(http.MethodPost, "/files/x/save", strings.NewReader(""))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := p.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaticAssets(t *testing.T) {
	p := newPageEnv(t)

	rec := p.do(t, httptest.NewRequest(http.MethodGet, "/static/status.js", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/status/ws")
}
