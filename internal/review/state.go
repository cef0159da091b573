package review

import (
	"fmt"
	"sort"

	"github.com/rosy-tax/reviewer/internal/models"
)

// Phase is the coarse position of a session in the review workflow.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseUploading  Phase = "uploading"
	PhaseReviewing  Phase = "reviewing"
	PhaseFinalizing Phase = "finalizing"
	PhaseReady      Phase = "ready"
)

// Status lines shown to the user.
const (
	StatusPreparing      = "Preparing upload..."
	StatusNoFiles        = "Please select one or more files to upload."
	StatusUploading      = "Uploading..."
	StatusProcessed      = "Processing complete"
	StatusUploadFailed   = "Upload failed: "
	StatusNetworkError   = "Network error: "
	StatusUpdatedFields  = "Updated fields for "
	StatusGenerating     = "Generating final PDF..."
	StatusFinalizeFailed = "Finalize failed"
	StatusDownloadFailed = "Failed to retrieve PDF: "
	StatusReady          = "Final PDF ready"
	StatusNothingToFinal = "Upload documents before finalizing."
)

// State is an immutable snapshot of one review session. Transitions return
// a new State; a snapshot handed out is never modified afterwards.
type State struct {
	Phase          Phase
	Status         string
	FilingStatus   string
	Withholding    string
	Result         *models.ExtractionResult
	ShowAggregated bool
	Download       *models.DownloadInfo
}

// NewState returns the initial idle state.
func NewState() State {
	return State{Phase: PhaseIdle}
}

func (s State) cleared() State {
	s.Result = nil
	s.ShowAggregated = false
	s.Download = nil
	return s
}

func (s State) withResult(r *models.ExtractionResult) State {
	s.Result = r
	s.ShowAggregated = r != nil && r.AggregatedFields != nil
	s.Download = nil
	return s
}

// withFieldEdits writes values into the fields of entry index. Only that
// entry's FieldMap is copied; every other entry is shared untouched with the
// previous snapshot.
func (s State) withFieldEdits(index int, values map[string]string) (State, error) {
	if s.Result == nil || index < 0 || index >= len(s.Result.PerFile) {
		return s, &ValidationError{Message: fmt.Sprintf("no file at index %d", index)}
	}

	r := *s.Result
	r.PerFile = make([]models.PerFileResult, len(s.Result.PerFile))
	copy(r.PerFile, s.Result.PerFile)

	entry := r.PerFile[index]
	fields := entry.Fields.Clone()
	for _, k := range orderedKeys(fields, values) {
		fields.Set(k, values[k])
	}
	entry.Fields = fields
	r.PerFile[index] = entry

	s.Result = &r
	return s, nil
}

// orderedKeys lists the keys of values: existing field keys first in display
// order, then new keys sorted.
func orderedKeys(existing models.FieldMap, values map[string]string) []string {
	keys := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, k := range existing.Keys() {
		if _, ok := values[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var extra []string
	for k := range values {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

func (s State) payload(filingStatus string) models.FinalizeRequest {
	req := models.FinalizeRequest{FilingStatus: filingStatus}
	if s.Result != nil && s.Result.PerFile != nil {
		req.PerFile = make([]models.PerFileResult, len(s.Result.PerFile))
		for i, pf := range s.Result.PerFile {
			req.PerFile[i] = pf.Clone()
		}
	}
	return req
}
