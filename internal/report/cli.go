package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/phobologic/convex-doctor/internal/model"
	"github.com/phobologic/convex-doctor/internal/scoring"
)

var (
	colorPrimary = lipgloss.Color("#64b5f6")
	colorSuccess = lipgloss.Color("#66bb6a")
	colorError   = lipgloss.Color("#ef5350")
	colorWarning = lipgloss.Color("#fff59d")
	colorOrange  = lipgloss.Color("#ffa726")
	colorMuted   = lipgloss.Color("#888888")
)

type styles struct {
	header  lipgloss.Style
	bold    lipgloss.Style
	muted   lipgloss.Style
	error   lipgloss.Style
	warning lipgloss.Style
	info    lipgloss.Style
	labels  map[string]lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{
			header: plain, bold: plain, muted: plain,
			error: plain, warning: plain, info: plain,
			labels: map[string]lipgloss.Style{},
		}
	}
	return styles{
		header:  lipgloss.NewStyle().Foreground(colorPrimary).Bold(true),
		bold:    lipgloss.NewStyle().Bold(true),
		muted:   lipgloss.NewStyle().Foreground(colorMuted),
		error:   lipgloss.NewStyle().Foreground(colorError),
		warning: lipgloss.NewStyle().Foreground(colorWarning),
		info:    lipgloss.NewStyle().Foreground(colorPrimary),
		labels: map[string]lipgloss.Style{
			scoring.Healthy:        lipgloss.NewStyle().Foreground(colorSuccess).Bold(true),
			scoring.NeedsAttention: lipgloss.NewStyle().Foreground(colorWarning).Bold(true),
			scoring.Unhealthy:      lipgloss.NewStyle().Foreground(colorOrange).Bold(true),
			scoring.Critical:       lipgloss.NewStyle().Foreground(colorError).Bold(true),
		},
	}
}

func (s styles) severity(sev model.Severity) (lipgloss.Style, string) {
	switch sev {
	case model.Error:
		return s.error, "✗"
	case model.Warning:
		return s.warning, "!"
	}
	return s.info, "i"
}

func (s styles) label(label string) lipgloss.Style {
	if st, ok := s.labels[label]; ok {
		return st
	}
	return s.bold
}

// ruleGroup is every diagnostic of one rule, in report order.
type ruleGroup struct {
	rule  string
	diags []model.Diagnostic
}

// groupByCategory buckets diagnostics by category and then by rule, keeping
// the first-appearance order of rules.
func groupByCategory(diags []model.Diagnostic) map[model.Category][]*ruleGroup {
	out := make(map[model.Category][]*ruleGroup)
	index := make(map[string]*ruleGroup)
	for _, d := range diags {
		g, ok := index[d.Rule]
		if !ok {
			g = &ruleGroup{rule: d.Rule}
			index[d.Rule] = g
			out[d.Category] = append(out[d.Category], g)
		}
		g.diags = append(g.diags, d)
	}
	return out
}

// worst returns the most severe severity in the group.
func (g *ruleGroup) worst() model.Severity {
	sev := model.Info
	for _, d := range g.diags {
		switch {
		case d.Severity == model.Error:
			return model.Error
		case d.Severity == model.Warning:
			sev = model.Warning
		}
	}
	return sev
}

func location(d model.Diagnostic) string {
	if d.Line == 0 {
		return d.File
	}
	return fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)
}

// WriteCLI renders the human-readable report.
func WriteCLI(w io.Writer, r *Report, opts Options) error {
	st := newStyles(opts.Color)
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n\n", st.header.Render("convex-doctor"), st.muted.Render(r.Version))
	fmt.Fprintf(&b, "%s  %s\n", st.bold.Render(r.Project), st.muted.Render(fmt.Sprintf("%d files analyzed", r.Files)))
	fmt.Fprintf(&b, "Score: %s  %s\n",
		st.label(r.Score.Label).Render(fmt.Sprintf("%d/100", r.Score.Value)),
		st.label(r.Score.Label).Render(r.Score.Label))

	if len(r.Diagnostics) == 0 {
		fmt.Fprintf(&b, "\nNo issues found.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	groups := groupByCategory(r.Diagnostics)
	for _, cat := range model.Categories {
		rgs := groups[cat]
		if len(rgs) == 0 {
			continue
		}
		n := 0
		for _, g := range rgs {
			n += len(g.diags)
		}
		fmt.Fprintf(&b, "\n%s %s\n", st.header.Render(string(cat)), st.muted.Render(fmt.Sprintf("(%d)", n)))

		for _, g := range rgs {
			sevStyle, icon := st.severity(g.worst())
			first := g.diags[0]
			count := ""
			if len(g.diags) > 1 {
				count = st.muted.Render(fmt.Sprintf(" ×%d", len(g.diags)))
			}
			fmt.Fprintf(&b, "  %s %s%s\n", sevStyle.Render(icon), st.bold.Render(g.rule), count)

			if opts.Verbose {
				for _, d := range g.diags {
					fmt.Fprintf(&b, "    %s  %s\n", st.muted.Render(location(d)), d.Message)
				}
			} else {
				fmt.Fprintf(&b, "    %s\n", first.Message)
				loc := location(first)
				if more := len(g.diags) - 1; more > 0 {
					loc += fmt.Sprintf(" and %d more", more)
				}
				fmt.Fprintf(&b, "    %s\n", st.muted.Render(loc))
			}
			if first.Help != "" {
				fmt.Fprintf(&b, "    %s\n", st.muted.Render("→ "+first.Help))
			}
		}
	}

	s := r.Summarize()
	fmt.Fprintf(&b, "\n%s, %s, %s\n",
		st.error.Render(plural(s.Errors, "error")),
		st.warning.Render(plural(s.Warnings, "warning")),
		st.info.Render(plural(s.Infos, "info")))

	_, err := io.WriteString(w, b.String())
	return err
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
