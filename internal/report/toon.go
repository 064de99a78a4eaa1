package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TOON (Token-Oriented Object Notation) output.

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// EncodeTOON converts a report into TOON format.
func EncodeTOON(r *Report) string {
	var parts []string

	s := r.Summarize()
	parts = append(parts, fmt.Sprintf("project: %s", encodeValue(r.Project)))
	parts = append(parts, fmt.Sprintf("score: %d", r.Score.Value))
	parts = append(parts, fmt.Sprintf("label: %s", encodeValue(r.Score.Label)))
	parts = append(parts, formatTabular("summary", []string{"errors", "warnings", "infos", "files"}, [][]string{{
		strconv.Itoa(s.Errors),
		strconv.Itoa(s.Warnings),
		strconv.Itoa(s.Infos),
		strconv.Itoa(s.Files),
	}}))

	rows := make([][]string, 0, len(r.Diagnostics))
	for i := range r.Diagnostics {
		d := &r.Diagnostics[i]
		rows = append(rows, []string{
			d.Rule,
			string(d.Severity),
			string(d.Category),
			d.File,
			strconv.Itoa(d.Line),
			strconv.Itoa(d.Column),
			d.Message,
		})
	}
	parts = append(parts, formatTabular("diagnostics",
		[]string{"rule", "severity", "category", "file", "line", "column", "message"}, rows))

	return strings.Join(parts, "\n")
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
