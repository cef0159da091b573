// mock_backend.go - Scriptable extraction backend for controller tests
package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/rosy-tax/reviewer/internal/models"
)

// MockBackend satisfies review.Backend with scripted answers.
type MockBackend struct {
	mu sync.Mutex

	UploadFunc   func(ctx context.Context, req models.UploadRequest) (*models.ExtractionResult, error)
	FinalizeFunc func(ctx context.Context, req models.FinalizeRequest) (io.ReadCloser, error)

	UploadCalls   []models.UploadRequest
	FinalizeCalls []models.FinalizeRequest
}

// NewMockBackend answers uploads with result and finalizes with SamplePDF.
func NewMockBackend(result *models.ExtractionResult) *MockBackend {
	return &MockBackend{
		UploadFunc: func(context.Context, models.UploadRequest) (*models.ExtractionResult, error) {
			return result.Clone(), nil
		},
		FinalizeFunc: func(context.Context, models.FinalizeRequest) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(SamplePDF)), nil
		},
	}
}

func (m *MockBackend) Upload(ctx context.Context, req models.UploadRequest) (*models.ExtractionResult, error) {
	m.mu.Lock()
	m.UploadCalls = append(m.UploadCalls, req)
	fn := m.UploadFunc
	m.mu.Unlock()
	return fn(ctx, req)
}

func (m *MockBackend) Finalize(ctx context.Context, req models.FinalizeRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	m.FinalizeCalls = append(m.FinalizeCalls, req)
	fn := m.FinalizeFunc
	m.mu.Unlock()
	return fn(ctx, req)
}

// UploadCount returns how many uploads were attempted.
func (m *MockBackend) UploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.UploadCalls)
}

// FinalizeCount returns how many finalizes were attempted.
func (m *MockBackend) FinalizeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.FinalizeCalls)
}
