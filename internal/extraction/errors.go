package extraction

import "fmt"

// UploadError is a non-2xx answer from the upload endpoint. Message is the
// server's "error" field when present, otherwise the HTTP status text.
type UploadError struct {
	StatusCode int
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed (%d): %s", e.StatusCode, e.Message)
}

// NetworkError is a transport-level failure: the request never produced a
// usable response.
type NetworkError struct {
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Message
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FinalizeError is any failed finalize round-trip. The response body of a
// non-2xx answer is never inspected.
type FinalizeError struct {
	StatusCode int
	Err        error
}

func (e *FinalizeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("finalize failed: %v", e.Err)
	}
	return fmt.Sprintf("finalize failed (%d)", e.StatusCode)
}

func (e *FinalizeError) Unwrap() error { return e.Err }
