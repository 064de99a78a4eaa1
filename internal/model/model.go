// Package model defines core data structures for convex-doctor.
package model

// Severity is the seriousness of a diagnostic.
type Severity string

const (
	Error   Severity = "error"
	Warning Severity = "warning"
	Info    Severity = "info"
)

// Category groups rules for reporting and weights them for scoring.
type Category string

const (
	Security      Category = "Security"
	Performance   Category = "Performance"
	Correctness   Category = "Correctness"
	Schema        Category = "Schema"
	Architecture  Category = "Architecture"
	Configuration Category = "Configuration"
	ClientSide    Category = "Client-Side"
)

// Categories lists every category in display order.
var Categories = []Category{
	Security,
	Performance,
	Correctness,
	Schema,
	Architecture,
	Configuration,
	ClientSide,
}

// Weight returns the scoring multiplier for the category.
func (c Category) Weight() float64 {
	switch c {
	case Security, Correctness:
		return 1.5
	case Performance:
		return 1.2
	case Architecture:
		return 0.8
	case Schema, Configuration, ClientSide:
		return 1.0
	}
	return 1.0
}

// Diagnostic is a single rule finding.
type Diagnostic struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
	Message  string   `json:"message"`
	Help     string   `json:"help"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
}

// Location is a 1-based line and column in a source file.
type Location struct {
	Line   int
	Column int
}
