package review

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rosy-tax/reviewer/internal/models"
)

// UploadPolicy limits what a submission may contain. The zero value accepts
// everything.
type UploadPolicy struct {
	MaxFileSize       int64
	AllowedExtensions []string
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename strips directories and replaces characters outside
// [A-Za-z0-9._-] with underscores, keeping at most 200 bytes.
func SanitizeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" {
		base = "upload"
	}
	safe := unsafeNameChars.ReplaceAllString(base, "_")
	if len(safe) > 200 {
		safe = safe[:200]
	}
	return safe
}

// Check reports the first file the policy rejects.
func (p UploadPolicy) Check(files []models.UploadFile) error {
	for _, f := range files {
		if len(p.AllowedExtensions) > 0 && !p.allowed(f.Name) {
			return &ValidationError{Message: fmt.Sprintf("file type not allowed: %s", f.Name)}
		}
		if p.MaxFileSize > 0 && int64(len(f.Data)) > p.MaxFileSize {
			return &ValidationError{Message: fmt.Sprintf("file too large: %s", f.Name)}
		}
	}
	return nil
}

func (p UploadPolicy) allowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range p.AllowedExtensions {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}
