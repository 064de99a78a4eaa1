package rules

import (
	"strings"

	"github.com/phobologic/convex-doctor/internal/model"
)

const (
	maxHandlerLines     = 50
	maxExportedPerFile  = 10
	duplicatedAuthCount = 3
	helperHandlerLines  = 15
	helperHandlerCount  = 3
	deepChainThreshold  = 4
)

var (
	complexNameHints = []string{"cache", "cached", "helper", "util", "service", "sync", "backfill", "batch", "process"}
	crudPrefixes     = []string{"get", "list", "create", "update", "delete", "remove", "upsert", "insert", "find", "fetch"}
	chunkKeywords    = []string{"sync", "backfill", "migrate", "reconcile", "reindex", "drain"}
)

// isCRUDName reports whether a function name looks like a thin data accessor.
func isCRUDName(name string) bool {
	n := strings.TrimLeft(strings.ToLower(name), "_")
	if n == "" {
		return false
	}
	for _, h := range complexNameHints {
		if strings.Contains(n, h) {
			return false
		}
	}
	return hasAnyPrefix(n, crudPrefixes...)
}

// isChunkedName reports whether an action name suggests batch processing,
// where many sequential run calls are expected.
func isChunkedName(name string) bool {
	n := strings.ToLower(name)
	for _, k := range chunkKeywords {
		if strings.Contains(n, k) {
			return true
		}
	}
	return false
}

var architectureRules = []*rule{
	{
		id:       "arch/large-handler",
		category: model.Architecture,
		help:     "Move logic into helper functions. Keep handlers to validation, auth and orchestration.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, fn := range f.Functions {
				if fn.HandlerLineCount > maxHandlerLines {
					out.add(model.Warning, fn.Location, "Handler `%s` is %d lines long", fn.Name, fn.HandlerLineCount)
				}
			}
		},
	},
	{
		id:       "arch/monolithic-file",
		category: model.Architecture,
		help:     "Split the file into smaller modules organized by feature.",
		check: func(f *model.FileFacts, out *emitter) {
			if f.ExportedCount > maxExportedPerFile {
				out.add(model.Warning, fileStart, "File has %d exported functions", f.ExportedCount)
			}
		},
	},
	{
		id:       "arch/duplicated-auth",
		category: model.Architecture,
		help:     "Extract the authentication logic into a shared helper instead of repeating it in every handler.",
		check: func(f *model.FileFacts, out *emitter) {
			var withAuth []model.FunctionFact
			for _, fn := range f.Functions {
				if fn.HasAuthCheck {
					withAuth = append(withAuth, fn)
				}
			}
			if len(withAuth) >= duplicatedAuthCount {
				out.add(model.Warning, withAuth[0].Location, "%d functions contain inline auth checks", len(withAuth))
			}
		},
	},
	{
		id:       "arch/action-without-scheduling",
		category: model.Architecture,
		help:     "If the action fails the mutation's writes are still committed. Use `ctx.scheduler.runAfter(0, ...)` to decouple it.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if strings.HasPrefix(c.Chain, "ctx.runAction") && c.EnclosingKind.IsMutation() {
					out.add(model.Info, c.Location, "`ctx.runAction` called directly from mutation `%s`", displayName(c))
				}
			}
		},
	},
	{
		id:       "arch/no-convex-error",
		category: model.Architecture,
		help:     "Generic errors are redacted to \"Server Error\" in production. Throw `ConvexError` to send structured data to clients.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, t := range f.GenericThrows {
				out.add(model.Info, t.Location, "`throw new Error(...)` in a Convex handler")
			}
		},
	},
	{
		id:       "arch/mixed-function-types",
		category: model.Architecture,
		help:     "Keep public and internal functions in separate files so access control is easy to audit.",
		check: func(f *model.FileFacts, out *emitter) {
			var public, internal bool
			for _, fn := range f.Functions {
				if fn.Kind.IsPublic() {
					public = true
				} else {
					internal = true
				}
			}
			if public && internal {
				out.add(model.Info, f.Functions[0].Location, "File exports both public and internal functions")
			}
		},
	},
	{
		id:       "arch/no-helper-functions",
		category: model.Architecture,
		help:     "Extract shared business logic into unexported helper functions.",
		check: func(f *model.FileFacts, out *emitter) {
			if f.UnexportedCount > 0 || len(f.Functions) == 0 {
				return
			}
			large := 0
			allCRUD := true
			for _, fn := range f.Functions {
				if fn.HandlerLineCount > helperHandlerLines {
					large++
				}
				if !isCRUDName(fn.Name) {
					allCRUD = false
				}
			}
			if large >= helperHandlerCount && !allCRUD {
				out.add(model.Info, fileStart, "%d handlers over %d lines and no helper functions", large, helperHandlerLines)
			}
		},
	},
	{
		id:       "arch/deep-function-chain",
		category: model.Architecture,
		help:     "Each `ctx.runQuery`/`ctx.runMutation` is a separate transaction. Batch related work into fewer mutations.",
		check: func(f *model.FileFacts, out *emitter) {
			groups := groupCalls(f.Calls, func(c model.CallFact) bool {
				return c.EnclosingKind.IsAction() &&
					!c.EnclosingHasInternalSecret &&
					!isChunkedName(c.EnclosingFunction) &&
					isRunQueryOrMutation(c.Chain)
			})
			for _, g := range groups {
				if len(g) >= deepChainThreshold {
					out.add(model.Warning, g[0].Location, "Action `%s` has %d ctx.run* calls", displayName(g[0]), len(g))
				}
			}
		},
	},
}
