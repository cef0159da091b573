package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/rosy-tax/reviewer/internal/models"
)

// dirSink writes finalized PDFs into a directory under their download name.
type dirSink struct {
	dir string
}

func (s dirSink) Save(name string, r io.Reader) (*models.DownloadInfo, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", s.dir, err)
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, ".draft-*.pdf")
	if err != nil {
		return nil, err
	}
	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	return &models.DownloadInfo{
		ID:        uuid.New().String(),
		Name:      name,
		Size:      size,
		CreatedAt: time.Now(),
	}, nil
}
