package rules

import (
	"strings"

	"github.com/phobologic/convex-doctor/internal/model"
)

// awaitablePrefixes are ctx calls that return a promise that must settle
// before the handler returns.
var awaitablePrefixes = []string{
	"ctx.scheduler",
	"ctx.db.patch",
	"ctx.db.insert",
	"ctx.db.replace",
	"ctx.db.delete",
	"ctx.runMutation",
	"ctx.runQuery",
	"ctx.runAction",
}

var queryWritePrefixes = []string{
	"ctx.db.insert",
	"ctx.db.patch",
	"ctx.db.replace",
	"ctx.db.delete",
	"ctx.scheduler",
}

var nodeBuiltins = map[string]bool{
	"fs":            true,
	"path":          true,
	"crypto":        true,
	"child_process": true,
	"os":            true,
	"stream":        true,
}

var cronMethods = map[string]bool{
	"interval": true,
	"hourly":   true,
	"daily":    true,
	"weekly":   true,
	"monthly":  true,
	"cron":     true,
}

// isCronCall matches scheduling calls on a cron registry such as
// crons.interval("name", { minutes: 5 }, internal.jobs.run).
func isCronCall(c model.CallFact) bool {
	return cronMethods[lastSegment(c.Chain)] && strings.Contains(strings.ToLower(receiver(c.Chain)), "cron")
}

func isGeneratedRef(chain string) bool {
	return strings.HasPrefix(chain, "api.") || strings.HasPrefix(chain, "internal.")
}

var correctnessRules = []*rule{
	{
		id:       "correctness/unwaited-promise",
		category: model.Correctness,
		help:     "This call returns a Promise. Without `await` the operation may not complete before the function returns.",
		check: func(f *model.FileFacts, out *emitter) {
			awaited := make(map[string]bool, len(f.AwaitedIdentifiers))
			for _, name := range f.AwaitedIdentifiers {
				awaited[name] = true
			}
			for _, c := range f.Calls {
				if c.Awaited || c.Returned || !hasAnyPrefix(c.Chain, awaitablePrefixes...) {
					continue
				}
				if c.AssignedTo != "" && awaited[c.AssignedTo] {
					continue
				}
				out.add(model.Error, c.Location, "`%s` is not awaited", c.Chain)
			}
		},
	},
	{
		id:       "correctness/old-function-syntax",
		category: model.Correctness,
		help:     "Use `query({ args: ..., handler: async (ctx, args) => ... })` instead of `query(async (ctx) => ...)`.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, o := range f.OldSyntax {
				out.add(model.Warning, o.Location, "Old function syntax: %s", o.Detail)
			}
		},
	},
	{
		id:       "correctness/db-in-action",
		category: model.Correctness,
		help:     "Actions cannot access the database directly. Use `ctx.runQuery` or `ctx.runMutation`.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if isDBChain(c.Chain) && c.EnclosingKind.IsAction() {
					out.add(model.Error, c.Location, "`%s` used in an action", c.Chain)
				}
			}
		},
	},
	{
		id:       "correctness/deprecated-api",
		category: model.Correctness,
		help:     "Use `v.int64()` instead of `v.bigint()`.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if c.Chain == "v.bigint" {
					out.add(model.Warning, c.Location, "`v.bigint()` is deprecated")
				}
			}
		},
	},
	{
		id:       "correctness/wrong-runtime-import",
		category: model.Correctness,
		help:     "Add `\"use node\";` to files that need Node-only modules, and keep browser client packages out of Node files.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, imp := range f.Imports {
				loc := model.Location{Line: imp.Line, Column: 1}
				src := imp.Source
				switch {
				case !f.UsesNode && (src == "convex/node" || strings.HasPrefix(src, "node:") || nodeBuiltins[src]):
					out.add(model.Warning, loc, "Import `%s` requires the Node runtime", src)
				case f.UsesNode && (src == "convex/browser" || src == "convex/react"):
					out.add(model.Warning, loc, "Node runtime file imports browser package `%s`", src)
				}
			}
		},
	},
	{
		id:       "correctness/direct-function-ref",
		category: model.Correctness,
		help:     "Pass a generated reference such as `api.module.fn` or `internal.module.fn` instead of the function itself.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if !hasAnyPrefix(c.Chain, "ctx.runQuery", "ctx.runMutation", "ctx.runAction") {
					continue
				}
				if c.TargetChain != "" && !isGeneratedRef(c.TargetChain) {
					out.add(model.Warning, c.Location, "`%s` called with direct function reference `%s`", c.Chain, c.TargetChain)
				}
			}
		},
	},
	{
		id:       "correctness/missing-unique",
		category: model.Correctness,
		help:     "If exactly one result is expected, use `.unique()` so a duplicate raises an error instead of being ignored.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if isDBChain(c.Chain) && strings.Contains(c.Chain, ".withIndex.") && strings.HasSuffix(c.Chain, ".first") {
					out.add(model.Warning, c.Location, "`.first()` on an indexed query: %s", c.Chain)
				}
			}
		},
	},
	{
		id:       "correctness/query-side-effect",
		category: model.Correctness,
		help:     "Queries must be read-only. Move writes and scheduling to a mutation.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if c.EnclosingKind.IsQuery() && hasAnyPrefix(c.Chain, queryWritePrefixes...) {
					out.add(model.Error, c.Location, "`%s` in a query function, which must be read-only", c.Chain)
				}
			}
		},
	},
	{
		id:       "correctness/mutation-in-query",
		category: model.Correctness,
		help:     "Queries cannot call mutations. Move the call to a mutation or action.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if strings.HasPrefix(c.Chain, "ctx.runMutation") && c.EnclosingKind.IsQuery() {
					out.add(model.Error, c.Location, "`%s` called from a query function", c.Chain)
				}
			}
		},
	},
	{
		id:       "correctness/cron-uses-public-api",
		category: model.Correctness,
		help:     "Use `internal.*` instead of `api.*` in cron job definitions.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if !isCronCall(c) {
					continue
				}
				for _, arg := range c.Args {
					if strings.HasPrefix(arg, "api.") {
						out.add(model.Error, c.Location, "Cron job uses public API reference `%s`", arg)
					}
				}
			}
		},
	},
	{
		id:       "correctness/node-query-mutation",
		category: model.Correctness,
		help:     "Only actions can run in the Node.js runtime. Move queries and mutations to a file without \"use node\".",
		check: func(f *model.FileFacts, out *emitter) {
			if !f.UsesNode {
				return
			}
			for _, fn := range f.Functions {
				if fn.Kind.IsQuery() || fn.Kind.IsMutation() {
					out.add(model.Error, fn.Location, "%s `%s` in a \"use node\" file", fn.Kind, fn.Name)
				}
			}
		},
	},
	{
		id:       "correctness/scheduler-return-ignored",
		category: model.Correctness,
		help:     "Keep the returned scheduled function ID if you need to cancel or monitor the job.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if !hasAnyPrefix(c.Chain, "ctx.scheduler.runAfter", "ctx.scheduler.runAt") {
					continue
				}
				if c.AssignedTo == "" && !c.Returned {
					out.add(model.Info, c.Location, "`%s` return value not captured", c.Chain)
				}
			}
		},
	},
	{
		id:       "correctness/non-deterministic-in-query",
		category: model.Correctness,
		help:     "Queries must be deterministic. Pass the value as an argument or use a mutation.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, n := range f.NonDeterministic {
				out.add(model.Warning, n.Location, "`%s` in a query function breaks determinism", n.Detail)
			}
		},
	},
	{
		id:       "correctness/replace-vs-patch",
		category: model.Correctness,
		help:     "`replace` removes every field you omit. Use `patch` for partial updates.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if strings.HasPrefix(c.Chain, "ctx.db.replace") {
					out.add(model.Info, c.Location, "`ctx.db.replace` fully replaces the existing document")
				}
			}
		},
	},
	{
		id:       "correctness/unsupported-validator-type",
		category: model.Correctness,
		help:     "Convex does not support `v.map()` or `v.set()`. Use `v.record()` for map-like data.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if c.Chain == "v.map" || c.Chain == "v.set" {
					out.add(model.Error, c.Location, "Unsupported validator `%s()`", c.Chain)
				}
			}
		},
	},
	{
		id:       "correctness/query-delete-unsupported",
		category: model.Correctness,
		help:     "Collect the matching documents, then call `ctx.db.delete(doc._id)` for each one in a mutation.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if strings.HasPrefix(c.Chain, "ctx.db.query.") && strings.HasSuffix(c.Chain, ".delete") {
					out.add(model.Error, c.Location, "Query chain uses unsupported `.delete()`: %s", c.Chain)
				}
			}
		},
	},
	{
		id:       "correctness/cron-helper-method-usage",
		category: model.Correctness,
		help:     "Use `crons.interval(...)` or `crons.cron(...)` instead of the `hourly`/`daily`/`weekly` helpers.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if !isCronCall(c) {
					continue
				}
				switch m := lastSegment(c.Chain); m {
				case "hourly", "daily", "weekly":
					out.add(model.Warning, c.Location, "Avoid deprecated cron helper `crons.%s(...)`", m)
				}
			}
		},
	},
	{
		id:       "correctness/cron-direct-function-reference",
		category: model.Correctness,
		help:     "Cron schedules take a generated function reference such as `internal.jobs.run`, not the function itself.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if !isCronCall(c) || len(c.Args) < 3 {
					continue
				}
				if ref := c.Args[2]; ref != "" && !isGeneratedRef(ref) {
					out.add(model.Error, c.Location, "Cron schedule uses direct function reference `%s`", ref)
				}
			}
		},
	},
	{
		id:       "correctness/storage-get-metadata-deprecated",
		category: model.Correctness,
		help:     "Query the `_storage` system table with `ctx.db.system.get(id)` instead of `ctx.storage.getMetadata`.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if strings.HasPrefix(c.Chain, "ctx.storage.getMetadata") {
					out.add(model.Warning, c.Location, "Deprecated storage API call `%s`", c.Chain)
				}
			}
		},
	},
	{
		id:       "correctness/generated-code-modified",
		category: model.Correctness,
		help:     "Files in convex/_generated are overwritten by `npx convex dev`. Revert the manual changes.",
		project: func(p *model.ProjectFacts, out *emitter) {
			if p.GeneratedModified {
				out.addIn("convex/_generated/", model.Error, model.Location{}, "Modified files detected in convex/_generated/")
			}
		},
	},
	{
		// Reported by the engine in place of a file's facts.
		id:       FileParseError,
		category: model.Correctness,
		help:     "Fix the syntax error so the file can be analyzed. No other rules ran for this file.",
	},
}
