package rules

import (
	"strings"

	"github.com/phobologic/convex-doctor/internal/model"
)

const sequentialRunThreshold = 3

// isUnboundedCollect matches ctx.db chains ending in .collect() with no
// .take(n) bound along the way.
func isUnboundedCollect(chain string) bool {
	return isDBChain(chain) && strings.HasSuffix(chain, ".collect") && !strings.Contains(chain, ".take.")
}

var performanceRules = []*rule{
	{
		id:       "perf/unbounded-collect",
		category: model.Performance,
		help:     "Use `.take(n)` to limit results or paginate. Every returned document counts toward database bandwidth.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if isUnboundedCollect(c.Chain) {
					out.add(model.Error, c.Location, "Unbounded `.collect()` call")
				}
			}
		},
	},
	{
		id:       "perf/filter-without-index",
		category: model.Performance,
		help:     "Define an index on the filtered field and use `.withIndex()` instead.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if !isDBChain(c.Chain) || lastSegment(c.Chain) != "filter" {
					continue
				}
				if strings.Contains(c.Chain, ".withIndex.") || strings.Contains(c.Chain, ".withSearchIndex.") {
					continue
				}
				out.add(model.Warning, c.Location, "`.filter()` without an index scans the entire table")
			}
		},
	},
	{
		id:       "perf/date-now-in-query",
		category: model.Performance,
		help:     "Queries must be deterministic. Pass the timestamp as an argument or move the logic to a mutation.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if c.Chain == "Date.now" && c.EnclosingKind.IsQuery() {
					out.add(model.Error, c.Location, "`Date.now()` in a query function breaks caching")
				}
			}
		},
	},
	{
		id:       "perf/loop-run-mutation",
		category: model.Performance,
		help:     "Each call inside a loop is a separate round trip. Batch the work into one mutation or schedule it.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if c.InLoop && hasAnyPrefix(c.Chain, "ctx.runMutation", "ctx.runQuery", "ctx.runAction", "ctx.scheduler") {
					out.add(model.Error, c.Location, "ctx call `%s` inside a loop", c.Chain)
				}
			}
		},
	},
	{
		id:       "perf/sequential-run-calls",
		category: model.Performance,
		help:     "Each ctx.runQuery/ctx.runMutation starts a separate transaction. Combine related reads and writes into one mutation.",
		check: func(f *model.FileFacts, out *emitter) {
			groups := groupCalls(f.Calls, func(c model.CallFact) bool {
				return c.EnclosingKind.IsAction() && isRunQueryOrMutation(c.Chain)
			})
			for _, g := range groups {
				if len(g) >= sequentialRunThreshold {
					out.add(model.Warning, g[0].Location, "Action `%s` has %d sequential ctx.run* calls", displayName(g[0]), len(g))
				}
			}
		},
	},
	{
		id:       "perf/unnecessary-run-action",
		category: model.Performance,
		help:     "If both actions share a runtime, call the helper function directly instead of using ctx.runAction.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if strings.HasPrefix(c.Chain, "ctx.runAction") && c.EnclosingKind.IsAction() {
					out.add(model.Warning, c.Location, "`ctx.runAction` called from within an action")
				}
			}
		},
	},
	{
		id:       "perf/helper-vs-run",
		category: model.Performance,
		help:     "Call a plain helper function instead. Helpers share the caller's transaction.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				k := c.EnclosingKind
				if isRunQueryOrMutation(c.Chain) && (k.IsQuery() || k.IsMutation()) {
					out.add(model.Warning, c.Location, "`%s` used inside a query or mutation", c.Chain)
				}
			}
		},
	},
	{
		id:       "perf/missing-index-on-foreign-key",
		category: model.Performance,
		help:     "Fields holding `v.id()` references are usually queried. Add an index that starts with the field.",
		project: func(p *model.ProjectFacts, out *emitter) {
			type key struct {
				file, table, field string
				loc                model.Location
			}
			seen := make(map[key]bool)
			for _, ref := range p.References {
				if ref.Table == "" || ref.Field == "" || ref.File == "" {
					continue
				}
				if hasLeadingIndex(p.Indexes, ref.Table, ref.Field) {
					continue
				}
				k := key{ref.File, ref.Table, ref.Field, ref.Location}
				if seen[k] {
					continue
				}
				seen[k] = true
				out.addIn(ref.File, model.Warning, ref.Location,
					"Foreign key `%s.%s` referencing `%s` has no index", ref.Table, ref.Field, ref.ReferencedTable)
			}
		},
	},
	{
		id:       "perf/action-from-client",
		category: model.Performance,
		help:     "Calling actions from the browser is an anti-pattern. Use a mutation that schedules the action with `ctx.scheduler.runAfter(0, ...)`.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, fn := range f.Functions {
				if fn.Kind == model.Action {
					out.add(model.Warning, fn.Location, "Public action `%s` can be called directly from the client", fn.Name)
				}
			}
		},
	},
	{
		id:       "perf/collect-then-filter",
		category: model.Performance,
		help:     "Filtering collected results in JavaScript wastes bandwidth and breaks caching. Use `.withIndex()` on the query.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.CollectThenFilter {
				out.add(model.Warning, c.Location, "`%s.filter()` after `.collect()` filters in JavaScript instead of using an index", c.Detail)
			}
		},
	},
	{
		id:       "perf/large-document-write",
		category: model.Performance,
		help:     "Documents approaching the 1 MiB limit fail at runtime. Split large documents into related smaller ones.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, w := range f.LargeWrites {
				out.add(model.Info, w.Location, "Large inline document write: %s", w.Detail)
			}
		},
	},
	{
		id:       "perf/no-pagination-for-list",
		category: model.Performance,
		help:     "Use `.paginate()` or `.take(n)` in public queries to limit the data sent to clients.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if c.EnclosingKind == model.Query && isUnboundedCollect(c.Chain) {
					out.add(model.Warning, c.Location, "Public query with `.collect()` may return unbounded results to the client")
					return
				}
			}
		},
	},
	{
		id:       "perf/missing-pagination-opts-validator",
		category: model.Performance,
		help:     "Add `args: { paginationOpts: paginationOptsValidator, ... }` so clients pass typed pagination options.",
		check: func(f *model.FileFacts, out *emitter) {
			validated := make(map[string]bool)
			declared := make(map[string]bool)
			for _, fn := range f.Functions {
				declared[fn.Name] = true
				validated[fn.Name] = fn.HasPaginationValidator
			}
			seen := make(map[string]bool)
			for _, c := range f.Calls {
				name := c.EnclosingFunction
				if lastSegment(c.Chain) != "paginate" || !c.EnclosingKind.IsQuery() || name == "" {
					continue
				}
				if !declared[name] || validated[name] || seen[name] {
					continue
				}
				seen[name] = true
				out.add(model.Warning, c.Location, "Paginated query `%s` is missing `paginationOptsValidator` in args", name)
			}
		},
	},
}

// hasLeadingIndex reports whether table has an index whose first field is field.
func hasLeadingIndex(indexes []model.IndexFact, table, field string) bool {
	for _, idx := range indexes {
		if idx.Table == table && len(idx.Fields) > 0 && idx.Fields[0] == field {
			return true
		}
	}
	return false
}
