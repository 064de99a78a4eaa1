package parse

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/convex-doctor/internal/model"
)

const ignoreMarker = "convex-doctor-ignore"

// declaration handles a call to one of the function factories, e.g.
// `export const list = query({ args, handler })`.
func (e *extractor) declaration(n *sitter.Node, kind model.FunctionKind, args []*sitter.Node, sc scope) {
	loc := location(n)
	name := sc.exportName
	direct := name != ""
	if name == "" {
		name = sc.assignTo
	}

	d := &decl{
		fact: model.FunctionFact{Name: name, Kind: kind, Location: loc},
		id:   name,
	}
	if d.id == "" {
		d.id = fmt.Sprintf("%s@%d:%d", kind, loc.Line, loc.Column)
	}
	d.fact.IntentionallyPublic = e.lineHas(loc.Line, 2, ignoreMarker) ||
		strings.Contains(e.lineText(loc.Line), ignoreMarker)

	inner := sc.enterFunction()
	inner.fn = d

	var first *sitter.Node
	if len(args) > 0 {
		first = unwrap(args[0])
	}
	switch {
	case first != nil && first.Type() == "object":
		e.declarationConfig(first, d, inner)
		for _, a := range args[1:] {
			e.walk(a, inner)
		}
	default:
		if first != nil && kind != model.HTTPAction {
			e.facts.OldSyntax = append(e.facts.OldSyntax, model.Finding{
				Detail:   fmt.Sprintf("%s `%s` is declared with a bare function", kind, displayName(name)),
				Location: loc,
			})
		}
		if first != nil && isFunction(first) {
			d.fact.HandlerLineCount = lineSpan(first)
		}
		for _, a := range args {
			e.walk(a, inner)
		}
	}

	switch {
	case name == "":
	case direct:
		e.addFunction(d.fact)
	default:
		e.pending[name] = d.fact
	}
}

func (e *extractor) declarationConfig(obj *sitter.Node, d *decl, sc scope) {
	// Record validators before walking the handler so calls inside it see
	// the complete argument facts.
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		c := obj.NamedChild(i)
		switch c.Type() {
		case "pair":
			value := c.ChildByFieldName("value")
			switch e.propertyKey(c.ChildByFieldName("key")) {
			case "args":
				d.fact.HasArgsValidator = true
				if v := unwrap(value); v != nil && v.Type() == "object" {
					e.inspectArgs(v, d)
				}
			case "returns":
				d.fact.HasReturnValidator = true
			case "handler":
				if v := unwrap(value); v != nil && isFunction(v) {
					d.fact.HandlerLineCount = lineSpan(v)
				}
			}
		case "shorthand_property_identifier":
			switch e.text(c) {
			case "args":
				d.fact.HasArgsValidator = true
			case "returns":
				d.fact.HasReturnValidator = true
			}
		case "method_definition":
			if e.propertyKey(c.ChildByFieldName("name")) == "handler" {
				d.fact.HandlerLineCount = lineSpan(c)
			}
		}
	}

	for i := 0; i < int(obj.NamedChildCount()); i++ {
		c := obj.NamedChild(i)
		inner := sc
		if c.Type() == "pair" && e.propertyKey(c.ChildByFieldName("key")) == "args" {
			inner.inArgs = true
		}
		e.walk(c, inner)
	}
}

func (e *extractor) inspectArgs(obj *sitter.Node, d *decl) {
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		c := obj.NamedChild(i)
		if c.Type() != "pair" {
			continue
		}
		name := e.propertyKey(c.ChildByFieldName("key"))
		value := c.ChildByFieldName("value")
		d.fact.ArgNames = append(d.fact.ArgNames, name)
		if name == "internalSecret" || name == "internal_secret" {
			d.fact.HasInternalSecret = true
		}
		if value == nil {
			continue
		}
		if e.containsCall(value, "v.any") {
			d.fact.HasAnyArgValidator = true
		}
		if name == "paginationOpts" && strings.Contains(e.text(value), "paginationOptsValidator") {
			d.fact.HasPaginationValidator = true
		}
	}
}

// containsCall reports whether n contains a call whose callee chain is ch.
func (e *extractor) containsCall(n *sitter.Node, ch string) bool {
	if n.Type() == "call_expression" && e.chain(n.ChildByFieldName("function")) == ch {
		return true
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if e.containsCall(n.NamedChild(i), ch) {
			return true
		}
	}
	return false
}

func (e *extractor) addFunction(f model.FunctionFact) {
	e.facts.Functions = append(e.facts.Functions, f)
	e.facts.ExportedCount++
}

// promote exports a pending declaration under the given name.
func (e *extractor) promote(local, exported string) {
	f, ok := e.pending[local]
	if !ok {
		return
	}
	delete(e.pending, local)
	f.Name = exported
	e.addFunction(f)
}

func (e *extractor) exportStatement(n *sitter.Node, sc scope) {
	inner := sc
	inner.exported = true

	if d := n.ChildByFieldName("declaration"); d != nil {
		e.walk(d, inner)
		return
	}
	if v := n.ChildByFieldName("value"); v != nil {
		if id := unwrap(v); id.Type() == "identifier" {
			e.promote(e.text(id), "default")
			return
		}
		inner.exportName = "default"
		e.walk(v, inner)
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "export_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			spec := clause.NamedChild(j)
			if spec.Type() != "export_specifier" {
				continue
			}
			nameNode := spec.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			local := e.text(nameNode)
			exported := local
			if alias := spec.ChildByFieldName("alias"); alias != nil {
				exported = e.text(alias)
			}
			e.promote(local, exported)
		}
	}
}

// conditionalExport flags `export const f = process.env.X ? query(...) : other`.
func (e *extractor) conditionalExport(name string, value *sitter.Node) {
	v := unwrap(value)
	if v.Type() != "ternary_expression" {
		return
	}
	cond := v.ChildByFieldName("condition")
	if cond == nil || !strings.Contains(e.text(cond), "process.env") {
		return
	}
	for _, field := range []string{"consequence", "alternative"} {
		branch := unwrap(v.ChildByFieldName(field))
		if branch == nil || branch.Type() != "call_expression" {
			continue
		}
		callee := branch.ChildByFieldName("function")
		if callee == nil || callee.Type() != "identifier" {
			continue
		}
		if _, ok := model.KindForFactory(e.text(callee)); ok {
			e.facts.ConditionalExports = append(e.facts.ConditionalExports, model.Finding{
				Detail:   name,
				Location: location(v),
			})
			return
		}
	}
}

func (e *extractor) importStatement(n *sitter.Node) {
	src := n.ChildByFieldName("source")
	source, _ := e.stringValue(src)
	imp := model.ImportFact{Source: source, Location: location(n)}
	convexReact := strings.Contains(source, "convex/react")

	var visit func(c *sitter.Node)
	visit = func(c *sitter.Node) {
		switch c.Type() {
		case "import_specifier":
			nameNode := c.ChildByFieldName("name")
			if nameNode == nil {
				return
			}
			imported := e.text(nameNode)
			local := imported
			if alias := c.ChildByFieldName("alias"); alias != nil {
				local = e.text(alias)
			}
			imp.Names = append(imp.Names, local)
			if convexReact {
				switch {
				case imported == "useQuery" || imported == "useMutation" || imported == "useAction":
					e.hookAliases[local] = imported
				case strings.HasPrefix(imported, "ConvexProvider") || imported == "ConvexReactClient":
					e.facts.HasConvexProvider = true
				}
			}
			return
		case "identifier":
			imp.Names = append(imp.Names, e.text(c))
			return
		case "string":
			return
		}
		for i := 0; i < int(c.NamedChildCount()); i++ {
			visit(c.NamedChild(i))
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "import_clause" {
			visit(c)
		}
	}
	e.facts.Imports = append(e.facts.Imports, imp)
}

// directives scans the directive prologue for "use node".
func (e *extractor) directives(program *sitter.Node) {
	for i := 0; i < int(program.NamedChildCount()); i++ {
		c := program.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		if c.Type() != "expression_statement" || c.NamedChildCount() != 1 {
			return
		}
		s, ok := e.stringValue(c.NamedChild(0))
		if !ok || c.NamedChild(0).Type() != "string" {
			return
		}
		if s == "use node" {
			e.facts.UsesNode = true
		}
	}
}

func (e *extractor) lineText(line int) string {
	if line < 1 || line > len(e.lines) {
		return ""
	}
	return e.lines[line-1]
}

func lineSpan(n *sitter.Node) int {
	return int(n.EndPoint().Row) - int(n.StartPoint().Row) + 1
}

func displayName(name string) string {
	if name == "" {
		return "<anonymous>"
	}
	return name
}
