package review

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rosy-tax/reviewer/internal/models"
)

// AggregatedAreaID marks the single aggregated-preview block of a page.
const AggregatedAreaID = "aggregated-area"

// View is everything a page or API client needs to draw a session.
type View struct {
	Phase        Phase       `json:"phase"`
	Status       string      `json:"status"`
	FilingStatus string      `json:"filingStatus"`
	Withholding  string      `json:"withholding"`
	Result       *ResultView `json:"result,omitempty"`
}

// ResultView is the rendered extraction result.
type ResultView struct {
	DocType         string          `json:"docType"`
	Confidence      string          `json:"confidence"`
	FieldsJSON      string          `json:"fieldsJson"`
	TaxEstimateJSON string          `json:"taxEstimateJson"`
	HasReview       bool            `json:"hasReview"`
	Files           []FileView      `json:"files,omitempty"`
	Aggregated      *AggregatedView `json:"aggregated,omitempty"`
}

// FileView is the editable review block of one per-file entry.
type FileView struct {
	Index      int         `json:"index"`
	Number     int         `json:"number"`
	Path       string      `json:"path"`
	DocType    string      `json:"docType"`
	Confidence string      `json:"confidence"`
	Inputs     []InputView `json:"inputs"`
}

// InputView is one labeled field input, pre-filled with its current value.
type InputView struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AggregatedView is the aggregated preview with the finalize action.
type AggregatedView struct {
	ID              string        `json:"id"`
	FieldsJSON      string        `json:"fieldsJson"`
	TaxEstimateJSON string        `json:"taxEstimateJson"`
	Download        *DownloadView `json:"download,omitempty"`
}

// DownloadView links to a finalized PDF.
type DownloadView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages,omitempty"`
}

// Render maps a state to its view. It has no side effects and produces the
// same output for the same state.
func Render(s State) View {
	v := View{
		Phase:        s.Phase,
		Status:       s.Status,
		FilingStatus: s.FilingStatus,
		Withholding:  s.Withholding,
	}
	if s.Result == nil {
		return v
	}

	r := s.Result
	rv := &ResultView{
		DocType:         r.DocType,
		Confidence:      formatConfidence(r.Confidence),
		FieldsJSON:      indentFields(r.Fields),
		TaxEstimateJSON: indentRaw(r.TaxEstimate),
		HasReview:       r.HasPerFile(),
	}

	for i, pf := range r.PerFile {
		fv := FileView{
			Index:      i,
			Number:     i + 1,
			Path:       pf.Path,
			DocType:    pf.DocType,
			Confidence: formatConfidence(pf.Confidence),
			Inputs:     make([]InputView, 0, pf.Fields.Len()),
		}
		for _, k := range pf.Fields.Keys() {
			val, _ := pf.Fields.Get(k)
			fv.Inputs = append(fv.Inputs, InputView{Name: k, Value: val})
		}
		rv.Files = append(rv.Files, fv)
	}

	if s.ShowAggregated {
		rv.Aggregated = renderAggregated(s)
	}

	v.Result = rv
	return v
}

func renderAggregated(s State) *AggregatedView {
	var agg models.FieldMap
	if s.Result.AggregatedFields != nil {
		agg = *s.Result.AggregatedFields
	}
	av := &AggregatedView{
		ID:              AggregatedAreaID,
		FieldsJSON:      indentFields(agg),
		TaxEstimateJSON: indentRaw(s.Result.TaxEstimate),
	}
	if d := s.Download; d != nil {
		av.Download = &DownloadView{ID: d.ID, Name: d.Name, Size: d.Size, Pages: d.Pages}
	}
	return av
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}

func indentFields(m models.FieldMap) string {
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}

func indentRaw(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
