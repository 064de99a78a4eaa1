package parse

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/convex-doctor/internal/model"
)

// authHelpers are lower-cased helper names that always count as an auth check.
var authHelpers = map[string]bool{
	"requireadmin":         true,
	"requireauth":          true,
	"requireuser":          true,
	"verifytoken":          true,
	"verifyjwt":            true,
	"ensureauthenticated":  true,
	"assertauthenticated":  true,
	"getauthenticateduser": true,
	"parseauthheader":      true,
}

var (
	authHelperPrefixes = []string{"require", "ensure", "assert", "verify"}
	authHelperWords    = []string{"auth", "token", "user", "admin", "session"}
)

const largeWriteFields = 20

func (e *extractor) call(n *sitter.Node, sc scope) {
	callee := n.ChildByFieldName("function")
	if callee == nil {
		e.walkChildren(n, sc)
		return
	}
	args := arguments(n)

	if sc.table == "" {
		if base := e.defineTableBase(n); base != nil {
			sc.table = fmt.Sprintf("table@%d", base.StartByte())
		}
	}

	if callee.Type() == "identifier" {
		name := e.text(callee)
		if kind, ok := model.KindForFactory(name); ok {
			e.declaration(n, kind, args, sc)
			return
		}
		if hook, ok := e.hookAliases[name]; ok {
			e.hook(n, hook)
		}
	}

	ch := e.chain(callee)
	if ch != "" {
		e.recordCall(n, ch, args, sc)
		e.detect(n, callee, ch, args, sc)
		if sc.fn != nil && e.isAuthHelper(lastSegment(ch), args) {
			sc.fn.fact.HasAuthCheck = true
		}
	}

	argScope := sc
	if ch == "v.object" || ch == "v.array" {
		argScope.depth++
		if argScope.depth > e.facts.NestingDepth {
			e.facts.NestingDepth = argScope.depth
			e.facts.NestingLocation = location(n)
		}
	}
	e.walk(callee, sc)
	if a := n.ChildByFieldName("arguments"); a != nil {
		e.walk(a, argScope)
	}
}

func (e *extractor) recordCall(n *sitter.Node, ch string, args []*sitter.Node, sc scope) {
	refs := make([]string, len(args))
	for i, a := range args {
		refs[i] = e.reference(a)
	}
	target := 0
	if strings.HasPrefix(ch, "ctx.scheduler.runAfter") || strings.HasPrefix(ch, "ctx.scheduler.runAt") {
		target = 1
	}
	cf := model.CallFact{
		Chain:      ch,
		InLoop:     sc.loopDepth > 0,
		Awaited:    sc.awaited,
		Returned:   sc.returned,
		AssignedTo: sc.assignTo,
		Args:       refs,
		Location:   location(n),
	}
	if target < len(refs) {
		cf.TargetChain = refs[target]
	}
	if sc.fn != nil {
		cf.EnclosingKind = sc.fn.fact.Kind
		cf.EnclosingFunction = sc.fn.fact.Name
		cf.EnclosingID = sc.fn.id
		cf.EnclosingHasInternalSecret = sc.fn.fact.HasInternalSecret
	}
	e.facts.Calls = append(e.facts.Calls, cf)
}

// detect records the specialized facts layered on top of a call chain.
func (e *extractor) detect(n, callee *sitter.Node, ch string, args []*sitter.Node, sc scope) {
	f := e.facts
	method := lastSegment(ch)

	switch {
	case method == "collect" && strings.HasPrefix(ch, "ctx.db.") && sc.assignTo != "":
		e.collectVars[collectVar{sc.fn, sc.assignTo}] = true

	case method == "filter":
		if callee.Type() == "member_expression" {
			obj := unwrap(callee.ChildByFieldName("object"))
			if obj != nil && obj.Type() == "identifier" && e.collectVars[collectVar{sc.fn, e.text(obj)}] {
				f.CollectThenFilter = append(f.CollectThenFilter, model.Finding{
					Detail:   e.text(obj),
					Location: location(n),
				})
			}
		}
		if strings.HasPrefix(ch, "ctx.db.") && len(args) > 0 {
			e.filterFields(args[0], e.queryTable(callee))
		}

	case ch == "Math.random":
		if sc.fn != nil && sc.fn.fact.Kind.IsQuery() {
			f.NonDeterministic = append(f.NonDeterministic, model.Finding{
				Detail:   "Math.random()",
				Location: location(n),
			})
		}

	case ch == "v.id":
		e.idValidator(n, args, sc)

	case ch == "v.array":
		if len(args) > 0 {
			inner := unwrap(args[0])
			if inner.Type() == "call_expression" && e.chain(inner.ChildByFieldName("function")) == "v.id" {
				detail := e.text(n)
				if sc.prop != "" {
					detail = sc.prop + ": " + detail
				}
				f.ArrayReferences = append(f.ArrayReferences, model.Finding{Detail: detail, Location: location(n)})
			}
		}

	case ch == "v.optional":
		f.OptionalFields++

	case method == "index" && sc.table != "":
		e.index(propertyLocation(callee, n), args, sc)

	case method == "searchIndex" && sc.table != "":
		e.searchIndex(propertyLocation(callee, n), args, sc)

	case method == "route" && len(args) > 0:
		e.route(n, args[0])

	case ch == "ctx.db.insert" || ch == "ctx.db.replace":
		if len(args) > 1 {
			if obj := unwrap(args[1]); obj.Type() == "object" {
				if fields := len(e.objectKeys(obj)); fields > largeWriteFields {
					f.LargeWrites = append(f.LargeWrites, model.Finding{
						Detail:   fmt.Sprintf("`%s` with %d fields", ch, fields),
						Location: location(n),
					})
				}
			}
		}
	}
}

func (e *extractor) isAuthHelper(name string, args []*sitter.Node) bool {
	lower := strings.ToLower(name)
	if authHelpers[lower] {
		return true
	}
	if !hasAnyPrefix(lower, authHelperPrefixes) || !containsAny(lower, authHelperWords) {
		return false
	}
	for _, a := range args {
		if a = unwrap(a); a.Type() == "identifier" {
			switch e.text(a) {
			case "ctx", "request", "req":
				return true
			}
		}
	}
	return false
}

func (e *extractor) hook(n *sitter.Node, hook string) {
	inRender := false
	if hook == "useMutation" {
		// useMutation(api.x)(args) invokes the mutation on every render.
		if p := n.Parent(); p != nil && p.Type() == "call_expression" {
			if fn := p.ChildByFieldName("function"); fn != nil && sameNode(fn, n) {
				inRender = true
			}
		}
	}
	e.facts.Hooks = append(e.facts.Hooks, model.HookCall{
		Hook:     hook,
		InRender: inRender,
		Location: location(n),
	})
}

// propertyLocation locates the method name of a chained call, falling back
// to the call itself.
func propertyLocation(callee, call *sitter.Node) model.Location {
	if callee.Type() == "member_expression" {
		if prop := callee.ChildByFieldName("property"); prop != nil {
			return location(prop)
		}
	}
	return location(call)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
