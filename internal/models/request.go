package models

import "strings"

// DefaultWithholding is sent when the withholding field is left blank.
const DefaultWithholding = "0"

// UploadFile is one named file of an upload.
type UploadFile struct {
	Name string
	Data []byte
}

// UploadRequest carries the files and taxpayer fields of a submission.
type UploadRequest struct {
	Files        []UploadFile
	FilingStatus string
	Withholding  string
}

// NormalizedWithholding returns the withholding value to send.
func (r UploadRequest) NormalizedWithholding() string {
	if strings.TrimSpace(r.Withholding) == "" {
		return DefaultWithholding
	}
	return r.Withholding
}

// FinalizeRequest is the JSON body posted to the finalize endpoint.
type FinalizeRequest struct {
	PerFile      []PerFileResult `json:"per_file"`
	FilingStatus string          `json:"filing_status"`
}
