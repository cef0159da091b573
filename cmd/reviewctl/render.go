package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rosy-tax/reviewer/internal/review"
)

// printView writes the rendered view as plain text.
func printView(w io.Writer, v review.View) {
	fmt.Fprintf(w, "Status: %s\n", v.Status)
	r := v.Result
	if r == nil {
		return
	}

	fmt.Fprintf(w, "\n%s (conf %s)\n", r.DocType, r.Confidence)
	fmt.Fprintf(w, "\nFields:\n%s\n", indent(r.FieldsJSON))
	fmt.Fprintf(w, "\nTax estimate:\n%s\n", indent(r.TaxEstimateJSON))

	for _, f := range r.Files {
		fmt.Fprintf(w, "\nFile %d: %s — %s (conf %s)\n", f.Number, f.Path, f.DocType, f.Confidence)
		for _, in := range f.Inputs {
			fmt.Fprintf(w, "  [%d] %s = %s\n", f.Index, in.Name, in.Value)
		}
	}

	if a := r.Aggregated; a != nil {
		fmt.Fprintf(w, "\nAggregated preview:\n%s\n", indent(a.FieldsJSON))
		if a.Download != nil {
			fmt.Fprintf(w, "\nDownload: %s (%d bytes)\n", a.Download.Name, a.Download.Size)
		}
	}
}

func printJSON(w io.Writer, v review.View) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
