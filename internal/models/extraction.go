// Package models contains domain types for the tax document review portal.
package models

import (
	"encoding/json"
)

// ExtractionResult is the document-extraction server's answer to an upload.
type ExtractionResult struct {
	DocType          string          `json:"doc_type"`
	Confidence       float64         `json:"confidence"`
	Fields           FieldMap        `json:"fields"`
	TaxEstimate      json.RawMessage `json:"tax_estimate,omitempty"`
	PerFile          []PerFileResult `json:"per_file,omitempty"`
	AggregatedFields *FieldMap       `json:"aggregated_fields,omitempty"`
}

// PerFileResult is the extraction outcome for a single uploaded file.
// Entries are identified by their position in ExtractionResult.PerFile.
type PerFileResult struct {
	Path             string          `json:"path"`
	DocType          string          `json:"doc_type"`
	Confidence       float64         `json:"confidence"`
	Fields           FieldMap        `json:"fields"`
	FieldConfidence  json.RawMessage `json:"field_confidence,omitempty"`
	ValidationIssues json.RawMessage `json:"validation_issues,omitempty"`
}

// HasPerFile reports whether the server sent a per_file list (possibly empty).
func (r *ExtractionResult) HasPerFile() bool {
	return r.PerFile != nil
}

// Clone returns a deep copy of the result.
func (r *ExtractionResult) Clone() *ExtractionResult {
	if r == nil {
		return nil
	}
	out := &ExtractionResult{
		DocType:     r.DocType,
		Confidence:  r.Confidence,
		Fields:      r.Fields.Clone(),
		TaxEstimate: cloneRaw(r.TaxEstimate),
	}
	if r.PerFile != nil {
		out.PerFile = make([]PerFileResult, len(r.PerFile))
		for i, pf := range r.PerFile {
			out.PerFile[i] = pf.Clone()
		}
	}
	if r.AggregatedFields != nil {
		agg := r.AggregatedFields.Clone()
		out.AggregatedFields = &agg
	}
	return out
}

// Clone returns a deep copy of the entry.
func (p PerFileResult) Clone() PerFileResult {
	p.Fields = p.Fields.Clone()
	p.FieldConfidence = cloneRaw(p.FieldConfidence)
	p.ValidationIssues = cloneRaw(p.ValidationIssues)
	return p
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
