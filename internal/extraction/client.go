// Package extraction is the HTTP client for the document-extraction server.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/rosy-tax/reviewer/internal/metrics"
	"github.com/rosy-tax/reviewer/internal/models"
)

const (
	UploadPath   = "/upload"
	FinalizePath = "/finalize"

	// FilesField is the repeated multipart field name carrying the documents.
	FilesField = "files"

	fallbackUploadMessage = "server error"
)

// Client talks to one extraction server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets an overall request timeout. Zero keeps the transport default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d, Transport: c.httpClient.Transport}
		}
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address the client was built for.
func (c *Client) BaseURL() string { return c.baseURL }

// Upload posts the files and taxpayer fields as multipart form data and
// decodes the extraction result. It makes exactly one attempt.
func (c *Client) Upload(ctx context.Context, req models.UploadRequest) (*models.ExtractionResult, error) {
	body, contentType, err := encodeUpload(req)
	if err != nil {
		return nil, fmt.Errorf("encoding upload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+UploadPath, body)
	if err != nil {
		return nil, &NetworkError{Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.ObserveBackend("upload", "transport_error", time.Since(start))
		log.Warn().Err(err).Str("endpoint", UploadPath).Msg("extraction server unreachable")
		return nil, &NetworkError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveBackend("upload", "http_error", time.Since(start))
		msg := uploadErrorMessage(resp)
		log.Warn().Int("status", resp.StatusCode).Str("error", msg).Msg("upload rejected")
		return nil, &UploadError{StatusCode: resp.StatusCode, Message: msg}
	}

	var result models.ExtractionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.ObserveBackend("upload", "decode_error", time.Since(start))
		return nil, &NetworkError{Message: err.Error(), Err: err}
	}
	metrics.ObserveBackend("upload", "ok", time.Since(start))

	log.Debug().
		Str("doc_type", result.DocType).
		Int("per_file", len(result.PerFile)).
		Dur("took", time.Since(start)).
		Msg("upload processed")
	return &result, nil
}

// Finalize posts the reviewed per-file fields and returns the PDF body. The
// caller owns and must close the returned reader.
func (c *Client) Finalize(ctx context.Context, req models.FinalizeRequest) (io.ReadCloser, error) {
	if req.PerFile == nil {
		req.PerFile = []models.PerFileResult{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding finalize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+FinalizePath, bytes.NewReader(payload))
	if err != nil {
		return nil, &FinalizeError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.ObserveBackend("finalize", "transport_error", time.Since(start))
		log.Warn().Err(err).Str("endpoint", FinalizePath).Msg("extraction server unreachable")
		return nil, &FinalizeError{Err: &NetworkError{Message: err.Error(), Err: err}}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		metrics.ObserveBackend("finalize", "http_error", time.Since(start))
		return nil, &FinalizeError{StatusCode: resp.StatusCode}
	}
	metrics.ObserveBackend("finalize", "ok", time.Since(start))
	return resp.Body, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeUpload(req models.UploadRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, f := range req.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FilesField, quoteEscaper.Replace(f.Name)))
		h.Set("Content-Type", mimetype.Detect(f.Data).String())
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := mw.WriteField("filing_status", req.FilingStatus); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("withholding", req.NormalizedWithholding()); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// uploadErrorMessage prefers the body's "error" field and falls back to the
// status text when the body is absent or not JSON.
func uploadErrorMessage(resp *http.Response) string {
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(bytes.TrimSpace(data)) > 0 {
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			return payload.Error
		}
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return fallbackUploadMessage
}
