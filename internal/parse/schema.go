package parse

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/convex-doctor/internal/model"
)

// secretPrefixes are credential-token prefixes recognized in string literals.
var secretPrefixes = []string{
	"sk_live_",
	"sk_test_",
	"pk_live_",
	"pk_test_",
	"sk-",
	"pk-",
	"AKIA",
	"ghp_",
	"gho_",
}

const minSecretLength = 10

func (e *extractor) idValidator(n *sitter.Node, args []*sitter.Node, sc scope) {
	if len(args) == 0 {
		if sc.inArgs {
			e.facts.GenericIDValidators = append(e.facts.GenericIDValidators, model.Finding{
				Detail:   "v.id()",
				Location: location(n),
			})
		}
		return
	}
	ref, ok := e.stringValue(args[0])
	if !ok || sc.table == "" || sc.prop == "" {
		return
	}
	e.facts.References = append(e.facts.References, model.ReferenceField{
		File:            e.facts.Path,
		Table:           sc.table,
		Field:           sc.prop,
		ReferencedTable: ref,
		Location:        location(n),
	})
}

func (e *extractor) index(loc model.Location, args []*sitter.Node, sc scope) {
	if len(args) < 2 {
		return
	}
	name, ok := e.stringValue(args[0])
	if !ok {
		return
	}
	fields := unwrap(args[1])
	if fields.Type() != "array" {
		return
	}
	idx := model.IndexFact{
		File:     e.facts.Path,
		Table:    sc.table,
		Name:     name,
		Location: loc,
	}
	for i := 0; i < int(fields.NamedChildCount()); i++ {
		if f, ok := e.stringValue(fields.NamedChild(i)); ok {
			idx.Fields = append(idx.Fields, f)
		}
	}
	e.facts.Indexes = append(e.facts.Indexes, idx)
}

func (e *extractor) searchIndex(loc model.Location, args []*sitter.Node, sc scope) {
	if len(args) == 0 {
		return
	}
	name, ok := e.stringValue(args[0])
	if !ok {
		return
	}
	si := model.SearchIndexFact{Table: sc.table, Name: name, Location: loc}
	if len(args) > 1 {
		if cfg := unwrap(args[1]); cfg.Type() == "object" {
			for _, k := range e.objectKeys(cfg) {
				if k == "filterFields" {
					si.HasFilterFields = true
				}
			}
		}
	}
	e.facts.SearchIndexes = append(e.facts.SearchIndexes, si)
}

// route records http.route({ method, path | pathPrefix, handler }).
func (e *extractor) route(n *sitter.Node, arg *sitter.Node) {
	obj := unwrap(arg)
	if obj.Type() != "object" {
		return
	}
	method, ok := e.stringValue(e.objectValue(obj, "method"))
	if !ok {
		return
	}
	path, ok := e.stringValue(e.objectValue(obj, "path"))
	if !ok {
		if path, ok = e.stringValue(e.objectValue(obj, "pathPrefix")); !ok {
			return
		}
	}
	loc := location(n)
	webhook := e.lineHas(loc.Line, 3, "webhook")
	for _, seg := range strings.Split(path, "/") {
		if strings.EqualFold(seg, "webhook") {
			webhook = true
		}
	}
	e.facts.Routes = append(e.facts.Routes, model.HTTPRoute{
		Method:   strings.ToUpper(method),
		Path:     path,
		Webhook:  webhook,
		Location: loc,
	})
}

// filterFields records q.field("name") reads inside a .filter callback.
func (e *extractor) filterFields(n *sitter.Node, table string) {
	if n.Type() == "call_expression" {
		callee := n.ChildByFieldName("function")
		if callee != nil && callee.Type() == "member_expression" {
			prop := callee.ChildByFieldName("property")
			if prop != nil && e.text(prop) == "field" {
				if args := arguments(n); len(args) > 0 {
					if name, ok := e.stringValue(args[0]); ok {
						e.facts.FilterFields = append(e.facts.FilterFields, model.FilterField{
							File:     e.facts.Path,
							Table:    table,
							Field:    name,
							Location: location(n),
						})
					}
				}
			}
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		e.filterFields(n.NamedChild(i), table)
	}
}

func (e *extractor) secret(n *sitter.Node) {
	s, ok := e.stringValue(n)
	if !ok || len(s) <= minSecretLength {
		return
	}
	for _, p := range secretPrefixes {
		if strings.HasPrefix(s, p) {
			e.facts.Secrets = append(e.facts.Secrets, model.Finding{
				Detail:   fmt.Sprintf("string starting with %q (%d chars)", p, len(s)),
				Location: location(n),
			})
			return
		}
	}
}
