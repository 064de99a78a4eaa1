// Package parse extracts Convex facts from source files using tree-sitter.
package parse

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/convex-doctor/internal/model"
)

// SyntaxError reports the first error node tree-sitter produced for a file.
type SyntaxError struct {
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d", e.Line, e.Column)
}

// File parses source and extracts its facts. The parser must be created for
// the correct language. filePath is recorded in the facts and should be the
// project-relative path. A *SyntaxError is returned when the source does not
// parse cleanly; no facts are produced in that case.
func File(ctx context.Context, parser *sitter.Parser, source []byte, filePath string) (*model.FileFacts, error) {
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, firstError(root)
	}
	return Extract(root, source, filePath), nil
}

// Extract walks an already parsed syntax tree and returns the file's facts.
// The result is deterministic for identical input.
func Extract(root *sitter.Node, source []byte, filePath string) *model.FileFacts {
	e := &extractor{
		src:         source,
		lines:       strings.Split(string(source), "\n"),
		facts:       &model.FileFacts{Path: filePath},
		pending:     make(map[string]model.FunctionFact),
		collectVars: make(map[collectVar]bool),
		aliases:     make(map[string]string),
		awaited:     make(map[string]bool),
		hookAliases: make(map[string]string),
		tableVars:   make(map[string]bool),
		schemaKeys:  make(map[string]string),
	}
	e.walk(root, scope{})
	e.finish()
	return e.facts
}

func firstError(root *sitter.Node) *SyntaxError {
	var found *sitter.Node
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if found != nil {
			return
		}
		if n.IsError() || n.IsMissing() {
			found = n
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c.HasError() || c.IsMissing() {
				visit(c)
			}
		}
	}
	visit(root)
	if found == nil {
		return &SyntaxError{Line: 1, Column: 1}
	}
	p := found.StartPoint()
	return &SyntaxError{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

// extractor holds the per-file accumulators. Traversal context lives in the
// scope values passed down the recursion, never here.
type extractor struct {
	src   []byte
	lines []string
	facts *model.FileFacts

	// pending holds declarations bound to a local name that only become
	// exported through a later `export { name }` clause.
	pending map[string]model.FunctionFact

	// collectVars are variables assigned from a ctx.db ... .collect() chain,
	// keyed by the declaration they were assigned in.
	collectVars map[collectVar]bool
	aliases     map[string]string
	awaited     map[string]bool
	hookAliases map[string]string

	// tableVars are variables bound to defineTable(...) chains; schemaKeys
	// maps such a variable to the key it is registered under in defineSchema.
	tableVars  map[string]bool
	schemaKeys map[string]string
}

type collectVar struct {
	fn   *decl
	name string
}

// decl is the declaration currently being visited. Its fact is complete only
// once the declaration's subtree has been walked.
type decl struct {
	fact model.FunctionFact
	id   string
}

// scope is the traversal context. It is copied on every descent, so a
// change made for a subtree never leaks to siblings.
type scope struct {
	fn         *decl
	loopDepth  int
	awaited    bool
	returned   bool
	assignTo   string
	exportName string
	exported   bool
	prop       string
	table      string
	depth      int
	inArgs     bool
}

// enterFunction returns the scope for a nested function body.
func (s scope) enterFunction() scope {
	s.assignTo = ""
	s.exportName = ""
	s.exported = false
	s.prop = ""
	s.inArgs = false
	return s
}

func (e *extractor) text(n *sitter.Node) string {
	return string(e.src[n.StartByte():n.EndByte()])
}

func location(n *sitter.Node) model.Location {
	p := n.StartPoint()
	return model.Location{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func (e *extractor) walkChildren(n *sitter.Node, sc scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		e.walk(n.NamedChild(i), sc)
	}
}

func (e *extractor) walk(n *sitter.Node, sc scope) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "program":
		e.directives(n)
	case "comment":
		return
	case "import_statement":
		e.importStatement(n)
		return
	case "export_statement":
		e.exportStatement(n, sc)
		return
	case "variable_declarator":
		e.declarator(n, sc)
		return
	case "function_declaration", "generator_function_declaration":
		if sc.fn == nil && !sc.exported {
			e.facts.UnexportedCount++
		}
		e.walkChildren(n, sc.enterFunction())
		return
	case "function_expression", "function", "generator_function", "method_definition":
		e.walkChildren(n, sc.enterFunction())
		return
	case "arrow_function":
		e.arrowFunction(n, sc)
		return
	case "for_statement", "for_in_statement", "while_statement", "do_statement":
		e.loop(n, sc)
		return
	case "await_expression":
		sc.awaited = true
		e.awaitOperand(n)
	case "return_statement":
		sc.returned = true
	case "call_expression":
		e.call(n, sc)
		return
	case "new_expression":
		e.newExpression(n, sc)
	case "member_expression":
		e.authAccess(n, sc)
	case "pair":
		e.pair(n, sc)
		return
	case "string":
		e.secret(n)
		return
	case "throw_statement":
		e.throwStatement(n, sc)
	}
	e.walkChildren(n, sc)
}

func (e *extractor) arrowFunction(n *sitter.Node, sc scope) {
	inner := sc.enterFunction()
	body := n.ChildByFieldName("body")
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if body != nil && sameNode(c, body) && body.Type() != "statement_block" {
			implicit := inner
			implicit.returned = true
			e.walk(c, implicit)
			continue
		}
		e.walk(c, inner)
	}
}

func (e *extractor) loop(n *sitter.Node, sc scope) {
	body := n.ChildByFieldName("body")
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if body != nil && sameNode(c, body) {
			inner := sc
			inner.loopDepth++
			e.walk(c, inner)
			continue
		}
		e.walk(c, sc)
	}
}

func (e *extractor) declarator(n *sitter.Node, sc scope) {
	nameNode := n.ChildByFieldName("name")
	value := n.ChildByFieldName("value")
	if value == nil {
		return
	}
	inner := sc
	if nameNode != nil && nameNode.Type() == "identifier" {
		name := e.text(nameNode)
		inner.assignTo = name
		if sc.exported && sc.fn == nil {
			inner.exportName = name
			e.conditionalExport(name, value)
		}
		v := unwrap(value)
		if v.Type() == "identifier" {
			e.aliases[name] = e.text(v)
		}
		if sc.table == "" && e.isTableExpr(v) {
			inner.table = name
			e.tableVars[name] = true
		}
		if sc.fn == nil && !sc.exported && isFunction(v) {
			e.facts.UnexportedCount++
		}
	}
	e.walk(value, inner)
}

func (e *extractor) pair(n *sitter.Node, sc scope) {
	key := n.ChildByFieldName("key")
	value := n.ChildByFieldName("value")
	if key != nil && key.Type() == "computed_property_name" {
		e.walk(key, sc)
	}
	if value == nil {
		return
	}
	k := e.propertyKey(key)
	inner := sc
	inner.prop = k
	v := unwrap(value)
	if sc.table == "" && k != "" && e.isTableExpr(v) {
		inner.table = k
	}
	if v.Type() == "identifier" && k != "" && e.tableVars[e.text(v)] {
		e.schemaKeys[e.text(v)] = k
	}
	e.walk(value, inner)
}

func (e *extractor) awaitOperand(n *sitter.Node) {
	if n.NamedChildCount() == 0 {
		return
	}
	operand := unwrap(n.NamedChild(0))
	switch operand.Type() {
	case "identifier":
		e.awaited[e.text(operand)] = true
	case "call_expression":
		// await Promise.all([a, b])
		args := arguments(operand)
		for _, a := range args {
			if a.Type() != "array" {
				continue
			}
			for i := 0; i < int(a.NamedChildCount()); i++ {
				if el := unwrap(a.NamedChild(i)); el.Type() == "identifier" {
					e.awaited[e.text(el)] = true
				}
			}
		}
	}
}

func (e *extractor) throwStatement(n *sitter.Node, sc scope) {
	if sc.fn == nil || n.NamedChildCount() == 0 {
		return
	}
	arg := unwrap(n.NamedChild(0))
	if arg.Type() != "new_expression" {
		return
	}
	ctor := arg.ChildByFieldName("constructor")
	if ctor != nil && ctor.Type() == "identifier" && e.text(ctor) == "Error" {
		e.facts.GenericThrows = append(e.facts.GenericThrows, model.Finding{
			Detail:   "throw new Error(...)",
			Location: location(n),
		})
	}
}

func (e *extractor) newExpression(n *sitter.Node, sc scope) {
	if sc.fn == nil || !sc.fn.fact.Kind.IsQuery() {
		return
	}
	ctor := n.ChildByFieldName("constructor")
	if ctor == nil || ctor.Type() != "identifier" || e.text(ctor) != "Date" {
		return
	}
	if len(arguments(n)) > 0 {
		return
	}
	e.facts.NonDeterministic = append(e.facts.NonDeterministic, model.Finding{
		Detail:   "new Date()",
		Location: location(n),
	})
}

func (e *extractor) authAccess(n *sitter.Node, sc scope) {
	if sc.fn == nil {
		return
	}
	obj := n.ChildByFieldName("object")
	prop := n.ChildByFieldName("property")
	if obj == nil || prop == nil {
		return
	}
	if obj.Type() == "identifier" && e.text(obj) == "ctx" && e.text(prop) == "auth" {
		sc.fn.fact.HasAuthCheck = true
	}
}

// finish resolves cross-references that are only known after the whole
// file has been walked.
func (e *extractor) finish() {
	f := e.facts

	// const b = a; await b  =>  a is awaited too
	for changed := true; changed; {
		changed = false
		for name, target := range e.aliases {
			if e.awaited[name] && !e.awaited[target] {
				e.awaited[target] = true
				changed = true
			}
		}
	}
	for name := range e.awaited {
		f.AwaitedIdentifiers = append(f.AwaitedIdentifiers, name)
	}
	sort.Strings(f.AwaitedIdentifiers)

	rename := func(table string) string {
		if key, ok := e.schemaKeys[table]; ok {
			return key
		}
		return table
	}
	for i := range f.Indexes {
		f.Indexes[i].Table = rename(f.Indexes[i].Table)
	}
	for i := range f.SearchIndexes {
		f.SearchIndexes[i].Table = rename(f.SearchIndexes[i].Table)
	}
	for i := range f.References {
		f.References[i].Table = rename(f.References[i].Table)
	}

	// Builder chains are visited outermost call first; report in source order.
	sort.SliceStable(f.Indexes, func(i, j int) bool {
		return before(f.Indexes[i].Location, f.Indexes[j].Location)
	})
	sort.SliceStable(f.SearchIndexes, func(i, j int) bool {
		return before(f.SearchIndexes[i].Location, f.SearchIndexes[j].Location)
	})
}

func before(a, b model.Location) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Column < b.Column
}

// lineHas reports whether any of the n lines above line contains needle.
func (e *extractor) lineHas(line, n int, needle string) bool {
	for l := line - n; l < line; l++ {
		if l < 1 || l > len(e.lines) {
			continue
		}
		if strings.Contains(strings.ToLower(e.lines[l-1]), needle) {
			return true
		}
	}
	return false
}
