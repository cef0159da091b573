// extraction_server.go - Fake document-extraction server for testing
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// SamplePDF is the smallest body the portal accepts as a PDF.
var SamplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

// SampleResultJSON is an upload answer with two per-file entries and numeric
// aggregated fields, as the extraction server produces them.
const SampleResultJSON = `{
  "doc_type": "W-2",
  "confidence": 0.92,
  "fields": {"employer": "Acme Corp", "wages": "50,000.00"},
  "tax_estimate": {"taxable_income": 36150.0, "tax": 4118.5, "refund": 881.5},
  "per_file": [
    {"path": "w2.txt", "doc_type": "W-2", "confidence": 0.92,
     "fields": {"employer": "Acme Corp", "wages": "50,000.00", "federal_income_tax_withheld": "5,000.00"},
     "field_confidence": {"employer": 0.9}, "validation_issues": []},
    {"path": "1099.txt", "doc_type": "1099-NEC", "confidence": 0.81,
     "fields": {"payer": "Widgets LLC", "amount": "1,200.00"}}
  ],
  "aggregated_fields": {"wages": 51200.0, "withholding": 5000.0}
}`

// UploadCall is one request received on /upload.
type UploadCall struct {
	FileNames    []string
	FileContents []string
	ContentTypes []string
	FilingStatus string
	Withholding  string
}

// FinalizeCall is one request received on /finalize.
type FinalizeCall struct {
	Body    []byte
	Payload struct {
		PerFile []struct {
			Path   string            `json:"path"`
			Fields map[string]string `json:"fields"`
		} `json:"per_file"`
		FilingStatus string `json:"filing_status"`
	}
}

// ExtractionServer is an httptest server speaking the extraction contract.
type ExtractionServer struct {
	*httptest.Server

	mu           sync.Mutex
	uploads      []UploadCall
	finalizes    []FinalizeCall
	uploadStatus int
	uploadBody   string
	finalizeCode int
	finalizeBody []byte
	finalizeGate chan struct{}
}

// NewExtractionServer starts a fake server answering with SampleResultJSON
// and SamplePDF. Close it when done.
func NewExtractionServer() *ExtractionServer {
	s := &ExtractionServer{
		uploadStatus: http.StatusOK,
		uploadBody:   SampleResultJSON,
		finalizeCode: http.StatusOK,
		finalizeBody: SamplePDF,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/finalize", s.handleFinalize)
	s.Server = httptest.NewServer(mux)
	return s
}

// SetUploadResponse changes the /upload answer.
func (s *ExtractionServer) SetUploadResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadStatus = status
	s.uploadBody = body
}

// SetFinalizeResponse changes the /finalize answer.
func (s *ExtractionServer) SetFinalizeResponse(status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizeCode = status
	s.finalizeBody = body
}

// HoldFinalize makes /finalize block until the returned func is called.
func (s *ExtractionServer) HoldFinalize() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.finalizeGate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Uploads returns the recorded /upload calls.
func (s *ExtractionServer) Uploads() []UploadCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UploadCall(nil), s.uploads...)
}

// Finalizes returns the recorded /finalize calls.
func (s *ExtractionServer) Finalizes() []FinalizeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FinalizeCall(nil), s.finalizes...)
}

func (s *ExtractionServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "bad multipart", http.StatusBadRequest)
		return
	}

	call := UploadCall{
		FilingStatus: r.FormValue("filing_status"),
		Withholding:  r.FormValue("withholding"),
	}
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			continue
		}
		data, _ := io.ReadAll(f)
		f.Close()
		call.FileNames = append(call.FileNames, fh.Filename)
		call.FileContents = append(call.FileContents, string(data))
		call.ContentTypes = append(call.ContentTypes, fh.Header.Get("Content-Type"))
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, call)
	status, body := s.uploadStatus, s.uploadBody
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func (s *ExtractionServer) handleFinalize(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	call := FinalizeCall{Body: data}
	_ = json.Unmarshal(data, &call.Payload)

	s.mu.Lock()
	s.finalizes = append(s.finalizes, call)
	status, body, gate := s.finalizeCode, s.finalizeBody, s.finalizeGate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(status)
	w.Write(body)
}
