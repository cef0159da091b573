package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/rosy-tax/reviewer/internal/models"
)

// Store defines the interface for finalized PDF storage.
type Store interface {
	Save(name string, r io.Reader) (*models.DownloadInfo, error)
	Get(id string) (*models.DownloadInfo, error)
	Open(id string) (io.ReadCloser, error)
	List(limit int) ([]*models.DownloadInfo, error)
	Delete(id string) error
	DeleteOlderThan(maxAge time.Duration) int
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu          sync.RWMutex
	downloadDir string
	files       map[string]*models.DownloadInfo
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(downloadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}

	return &LocalStore{
		downloadDir: downloadDir,
		files:       make(map[string]*models.DownloadInfo),
	}, nil
}

// Save writes a PDF to the local filesystem and records its metadata.
func (s *LocalStore) Save(name string, r io.Reader) (*models.DownloadInfo, error) {
	id := uuid.New().String()
	path := s.pathFor(id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.DownloadInfo{
		ID:        id,
		Name:      name,
		Size:      size,
		Pages:     countPages(path),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// Get retrieves download metadata by ID.
func (s *LocalStore) Get(id string) (*models.DownloadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("download not found: %s", id)
	}

	return info, nil
}

// Open returns a reader over the stored PDF.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	path, err := s.GetFilePath(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening download: %w", err)
	}
	return f, nil
}

// List returns the most recent downloads.
func (s *LocalStore) List(limit int) ([]*models.DownloadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*models.DownloadInfo
	for _, info := range s.files {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a download from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("download not found: %s", id)
	}

	if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// GetFilePath returns the absolute path to a stored PDF.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("download not found: %s", id)
	}

	return s.pathFor(id), nil
}

// DeleteOlderThan removes downloads created more than maxAge ago and returns
// how many were removed.
func (s *LocalStore) DeleteOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, info := range s.files {
		if info.CreatedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("download", id).Msg("failed to remove expired download")
			continue
		}
		delete(s.files, id)
		removed++
	}
	return removed
}

func (s *LocalStore) pathFor(id string) string {
	return filepath.Join(s.downloadDir, id+".pdf")
}

// countPages reports the page count of a stored PDF, or 0 when pdfcpu cannot
// read it. The count is informational only.
func countPages(path string) (pages int) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("path", path).Msg("pdf page count panicked")
			pages = 0
		}
	}()

	n, err := api.PageCountFile(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("pdf page count unavailable")
		return 0
	}
	return n
}
