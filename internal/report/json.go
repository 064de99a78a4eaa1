package report

import (
	"encoding/json"
	"io"

	"github.com/phobologic/convex-doctor/internal/model"
	"github.com/phobologic/convex-doctor/internal/scoring"
)

type jsonReport struct {
	Version     string             `json:"version"`
	Project     string             `json:"project"`
	Score       scoring.Result     `json:"score"`
	Summary     Summary            `json:"summary"`
	Diagnostics []model.Diagnostic `json:"diagnostics"`
}

// WriteJSON writes r as an indented JSON document.
func WriteJSON(w io.Writer, r *Report) error {
	diags := r.Diagnostics
	if diags == nil {
		diags = []model.Diagnostic{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		Version:     r.Version,
		Project:     r.Project,
		Score:       r.Score,
		Summary:     r.Summarize(),
		Diagnostics: diags,
	})
}
