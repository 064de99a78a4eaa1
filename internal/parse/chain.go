package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// chain resolves a callee or argument expression to a dotted path such as
// "ctx.db.query.withIndex.collect". Calls along the way contribute their
// callee, so chained builder calls flatten into one path. Computed member
// access and any other expression shape resolve to "".
func (e *extractor) chain(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "identifier", "this":
		return e.text(n)
	case "member_expression":
		obj := n.ChildByFieldName("object")
		prop := n.ChildByFieldName("property")
		if obj == nil || prop == nil || prop.Type() != "property_identifier" {
			return ""
		}
		base := e.chain(obj)
		if base == "" {
			return ""
		}
		return base + "." + e.text(prop)
	case "call_expression":
		return e.chain(n.ChildByFieldName("function"))
	}
	return ""
}

// reference resolves an argument that names something: an identifier or a
// plain property path. Calls are not references.
func (e *extractor) reference(n *sitter.Node) string {
	n = unwrap(n)
	switch n.Type() {
	case "identifier", "member_expression":
		return e.chain(n)
	}
	return ""
}

// unwrap strips parentheses and TypeScript-only expression wrappers.
func unwrap(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "parenthesized_expression", "as_expression", "satisfies_expression", "non_null_expression":
			if n.NamedChildCount() == 0 {
				return n
			}
			n = n.NamedChild(0)
		default:
			return n
		}
	}
	return n
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func isFunction(n *sitter.Node) bool {
	switch n.Type() {
	case "arrow_function", "function_expression", "function", "generator_function":
		return true
	}
	return false
}

// arguments returns the argument expressions of a call or new expression.
func arguments(n *sitter.Node) []*sitter.Node {
	args := n.ChildByFieldName("arguments")
	if args == nil || args.Type() != "arguments" {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(args.NamedChildCount()); i++ {
		c := args.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// stringValue returns the contents of a string literal, or false when n is
// not a plain string.
func (e *extractor) stringValue(n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	n = unwrap(n)
	switch n.Type() {
	case "string":
	case "template_string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "template_substitution" {
				return "", false
			}
		}
	default:
		return "", false
	}
	t := e.text(n)
	if len(t) < 2 {
		return "", false
	}
	return t[1 : len(t)-1], true
}

// propertyKey returns the static name of an object key.
func (e *extractor) propertyKey(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "property_identifier", "shorthand_property_identifier", "identifier", "number", "private_property_identifier":
		return e.text(n)
	case "string":
		s, _ := e.stringValue(n)
		return s
	}
	return ""
}

// objectKeys lists the static keys of an object literal, including
// shorthand properties and method names.
func (e *extractor) objectKeys(obj *sitter.Node) []string {
	var keys []string
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		c := obj.NamedChild(i)
		switch c.Type() {
		case "pair":
			keys = append(keys, e.propertyKey(c.ChildByFieldName("key")))
		case "shorthand_property_identifier":
			keys = append(keys, e.text(c))
		case "method_definition":
			keys = append(keys, e.propertyKey(c.ChildByFieldName("name")))
		}
	}
	return keys
}

// objectValue returns the value of the first pair with the given key.
func (e *extractor) objectValue(obj *sitter.Node, key string) *sitter.Node {
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		c := obj.NamedChild(i)
		if c.Type() == "pair" && e.propertyKey(c.ChildByFieldName("key")) == key {
			return c.ChildByFieldName("value")
		}
	}
	return nil
}

// defineTableBase follows a builder chain such as
// defineTable({...}).index(...).searchIndex(...) down to its defineTable call.
func (e *extractor) defineTableBase(n *sitter.Node) *sitter.Node {
	for n != nil {
		n = unwrap(n)
		switch n.Type() {
		case "call_expression":
			callee := n.ChildByFieldName("function")
			if callee == nil {
				return nil
			}
			if callee.Type() == "identifier" && e.text(callee) == "defineTable" {
				return n
			}
			n = callee
		case "member_expression":
			n = n.ChildByFieldName("object")
		default:
			return nil
		}
	}
	return nil
}

func (e *extractor) isTableExpr(n *sitter.Node) bool {
	return e.defineTableBase(n) != nil
}

// queryTable finds the table name passed to ctx.db.query("table") at the
// root of a query builder chain.
func (e *extractor) queryTable(n *sitter.Node) string {
	for n != nil {
		n = unwrap(n)
		switch n.Type() {
		case "call_expression":
			callee := n.ChildByFieldName("function")
			if callee == nil {
				return ""
			}
			if e.chain(callee) == "ctx.db.query" {
				if args := arguments(n); len(args) > 0 {
					s, _ := e.stringValue(args[0])
					return s
				}
				return ""
			}
			n = callee
		case "member_expression":
			n = n.ChildByFieldName("object")
		default:
			return ""
		}
	}
	return ""
}

func lastSegment(chain string) string {
	if i := strings.LastIndexByte(chain, '.'); i >= 0 {
		return chain[i+1:]
	}
	return chain
}
