// Package rules holds the static rule catalog evaluated against extracted facts.
package rules

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/phobologic/convex-doctor/internal/model"
)

// FileParseError is the reserved rule reported when a file fails to parse.
const FileParseError = "correctness/file-parse-error"

// Rule is one check in the catalog. Rules are pure: they never fail and
// return no diagnostics when the facts are ambiguous.
type Rule interface {
	ID() string
	Category() model.Category
	Help() string
	// Check evaluates the rule against one file. Project rules return nil.
	Check(f *model.FileFacts) []model.Diagnostic
	// CheckProject evaluates the rule once against merged facts. File rules
	// return nil.
	CheckProject(p *model.ProjectFacts) []model.Diagnostic
}

type rule struct {
	id       string
	category model.Category
	help     string
	check    func(f *model.FileFacts, out *emitter)
	project  func(p *model.ProjectFacts, out *emitter)
}

func (r *rule) ID() string               { return r.id }
func (r *rule) Category() model.Category { return r.category }
func (r *rule) Help() string             { return r.help }

func (r *rule) Check(f *model.FileFacts) []model.Diagnostic {
	if r.check == nil || f == nil {
		return nil
	}
	out := &emitter{rule: r, file: f.Path}
	r.check(f, out)
	return out.diags
}

func (r *rule) CheckProject(p *model.ProjectFacts) []model.Diagnostic {
	if r.project == nil || p == nil {
		return nil
	}
	out := &emitter{rule: r, file: "convex/"}
	r.project(p, out)
	return out.diags
}

// emitter accumulates the diagnostics of one rule invocation.
type emitter struct {
	rule  *rule
	file  string
	diags []model.Diagnostic
}

func (e *emitter) add(sev model.Severity, loc model.Location, format string, args ...any) {
	e.addIn(e.file, sev, loc, format, args...)
}

func (e *emitter) addIn(file string, sev model.Severity, loc model.Location, format string, args ...any) {
	e.diags = append(e.diags, model.Diagnostic{
		Rule:     e.rule.id,
		Severity: sev,
		Category: e.rule.category,
		Message:  fmt.Sprintf(format, args...),
		Help:     e.rule.help,
		File:     file,
		Line:     loc.Line,
		Column:   loc.Column,
	})
}

var catalog = concat(
	securityRules,
	performanceRules,
	correctnessRules,
	schemaRules,
	architectureRules,
	configurationRules,
	clientRules,
)

var byID = func() map[string]Rule {
	m := make(map[string]Rule, len(catalog))
	for _, r := range catalog {
		m[r.ID()] = r
	}
	return m
}()

func concat(groups ...[]*rule) []Rule {
	var out []Rule
	for _, g := range groups {
		for _, r := range g {
			out = append(out, r)
		}
	}
	return out
}

// All returns every rule in catalog order.
func All() []Rule {
	out := make([]Rule, len(catalog))
	copy(out, catalog)
	return out
}

// IDs returns every rule ID in catalog order.
func IDs() []string {
	ids := make([]string, len(catalog))
	for i, r := range catalog {
		ids[i] = r.ID()
	}
	return ids
}

// Lookup finds a rule by ID.
func Lookup(id string) (Rule, bool) {
	r, ok := byID[id]
	return r, ok
}

// Run evaluates every enabled file rule against f. A nil enabled predicate
// enables every rule.
func Run(f *model.FileFacts, enabled func(id string) bool) []model.Diagnostic {
	var diags []model.Diagnostic
	for _, r := range catalog {
		if enabled != nil && !enabled(r.ID()) {
			continue
		}
		diags = append(diags, r.Check(f)...)
	}
	return diags
}

// RunProject evaluates every enabled project rule against p.
func RunProject(p *model.ProjectFacts, enabled func(id string) bool) []model.Diagnostic {
	var diags []model.Diagnostic
	for _, r := range catalog {
		if enabled != nil && !enabled(r.ID()) {
			continue
		}
		diags = append(diags, r.CheckProject(p)...)
	}
	return diags
}

// ParseFailure builds the diagnostic reported in place of a file's facts
// when the file does not parse.
func ParseFailure(path string, loc model.Location, err error) model.Diagnostic {
	msg := "File failed to parse"
	if err != nil {
		msg = fmt.Sprintf("File failed to parse: %v", err)
	}
	return model.Diagnostic{
		Rule:     FileParseError,
		Severity: model.Error,
		Category: model.Correctness,
		Message:  msg,
		Help:     byID[FileParseError].Help(),
		File:     path,
		Line:     loc.Line,
		Column:   loc.Column,
	}
}

// Suggest returns the catalog ID closest to id, or "" when nothing is close.
func Suggest(id string) string {
	if id == "" {
		return ""
	}
	if _, ok := byID[id]; ok {
		return id
	}
	matches := fuzzy.Find(id, IDs())
	if len(matches) > 0 {
		return matches[0].Str
	}
	// Fall back to the bare rule name so "unbounded-collect" finds
	// "perf/unbounded-collect".
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		if matches = fuzzy.Find(id[i+1:], IDs()); len(matches) > 0 {
			return matches[0].Str
		}
	}
	return ""
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func lastSegment(chain string) string {
	if i := strings.LastIndexByte(chain, '.'); i >= 0 {
		return chain[i+1:]
	}
	return chain
}

func receiver(chain string) string {
	if i := strings.LastIndexByte(chain, '.'); i >= 0 {
		return chain[:i]
	}
	return ""
}

// isDBChain reports whether chain is a database call, e.g. ctx.db.query.collect.
func isDBChain(chain string) bool {
	return strings.HasPrefix(chain, "ctx.db.")
}

func isRunQueryOrMutation(chain string) bool {
	return hasAnyPrefix(chain, "ctx.runQuery", "ctx.runMutation")
}

// groupCalls buckets the calls matching keep by enclosing declaration,
// preserving first-appearance order.
func groupCalls(calls []model.CallFact, keep func(c model.CallFact) bool) [][]model.CallFact {
	index := make(map[string]int)
	var groups [][]model.CallFact
	for _, c := range calls {
		if !keep(c) {
			continue
		}
		key := c.EnclosingID
		if key == "" {
			key = fmt.Sprintf("@%d:%d", c.Line, c.Column)
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], c)
	}
	return groups
}

func displayName(c model.CallFact) string {
	if c.EnclosingFunction != "" {
		return c.EnclosingFunction
	}
	return "<anonymous>"
}

var fileStart = model.Location{Line: 1, Column: 1}
