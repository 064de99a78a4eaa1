// Package scoring turns a diagnostic list into a 0-100 health score.
package scoring

import (
	"maps"
	"math"
	"slices"

	"github.com/phobologic/convex-doctor/internal/model"
)

// Labels for score bands.
const (
	Healthy        = "Healthy"
	NeedsAttention = "Needs attention"
	Unhealthy      = "Unhealthy"
	Critical       = "Critical"
)

// Result is the computed score for a run.
type Result struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

func basePenalty(s model.Severity) float64 {
	switch s {
	case model.Error:
		return 3
	case model.Warning:
		return 1
	}
	return 0
}

func capBase(s model.Severity) float64 {
	switch s {
	case model.Error:
		return 15
	case model.Warning:
		return 5
	}
	return 0
}

type group struct {
	raw float64
	cap float64
}

// Compute scores diags. Each rule's deduction is capped so that one noisy
// rule cannot dominate; the result does not depend on the order of diags.
func Compute(diags []model.Diagnostic) Result {
	groups := make(map[string]*group)
	for _, d := range diags {
		g, ok := groups[d.Rule]
		if !ok {
			g = &group{}
			groups[d.Rule] = g
		}
		w := d.Category.Weight()
		g.raw += basePenalty(d.Severity) * w
		g.cap = math.Max(g.cap, capBase(d.Severity)*w)
	}

	// Sum in a fixed order so float rounding is reproducible.
	var total float64
	for _, id := range slices.Sorted(maps.Keys(groups)) {
		g := groups[id]
		total += math.Min(g.raw, g.cap)
	}

	value := int(math.Round(100 - total))
	value = max(0, min(100, value))
	return Result{Value: value, Label: Label(value)}
}

// Label returns the band name for a score value.
func Label(value int) string {
	switch {
	case value >= 85:
		return Healthy
	case value >= 70:
		return NeedsAttention
	case value >= 50:
		return Unhealthy
	default:
		return Critical
	}
}
