// Package report renders analysis results for terminals and machines.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/phobologic/convex-doctor/internal/model"
	"github.com/phobologic/convex-doctor/internal/scoring"
)

// Report is everything a renderer needs from a run.
type Report struct {
	Project     string
	Version     string
	Files       int
	Diagnostics []model.Diagnostic
	Score       scoring.Result
}

// Summary counts diagnostics by severity.
type Summary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
	Files    int `json:"files"`
}

// Summarize counts the diagnostics in r.
func (r *Report) Summarize() Summary {
	s := Summary{Files: r.Files}
	for _, d := range r.Diagnostics {
		switch d.Severity {
		case model.Error:
			s.Errors++
		case model.Warning:
			s.Warnings++
		case model.Info:
			s.Infos++
		}
	}
	return s
}

// Formats lists the accepted --format values.
var Formats = []string{"cli", "json", "toon"}

// Options controls rendering.
type Options struct {
	Format  string
	Color   bool
	Verbose bool
}

// Write renders r to w in the requested format.
func Write(w io.Writer, r *Report, opts Options) error {
	switch opts.Format {
	case "", "cli":
		return WriteCLI(w, r, opts)
	case "json":
		return WriteJSON(w, r)
	case "toon":
		_, err := fmt.Fprintln(w, EncodeTOON(r))
		return err
	}
	return fmt.Errorf("unknown format %q (want cli, json or toon)", opts.Format)
}

// WriteScore prints only the score value.
func WriteScore(w io.Writer, r *Report) error {
	_, err := fmt.Fprintln(w, r.Score.Value)
	return err
}

// ColorEnabled reports whether output to w should be styled.
func ColorEnabled(w io.Writer, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
