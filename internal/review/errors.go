package review

import "errors"

// ErrBusy is returned when an upload or finalize is started while another
// request of the same controller is still running.
var ErrBusy = errors.New("another request is already in progress")

// ValidationError blocks an action before any network call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

// DownloadError is a failure while turning a finalize response into a
// downloadable PDF.
type DownloadError struct {
	Message string
	Err     error
}

func (e *DownloadError) Error() string {
	return "download failed: " + e.Message
}

func (e *DownloadError) Unwrap() error { return e.Err }
