package rules

import (
	"strings"

	"github.com/phobologic/convex-doctor/internal/model"
)

const (
	maxNestingDepth        = 3
	maxIndexesPerTable     = 8
	optionalFieldThreshold = 5
)

// isPrefix reports whether short is a strict leading subsequence of long.
func isPrefix(short, long []string) bool {
	if len(short) >= len(long) {
		return false
	}
	for i := range short {
		if short[i] != long[i] {
			return false
		}
	}
	return true
}

var schemaRules = []*rule{
	{
		id:       "schema/missing-schema",
		category: model.Schema,
		help:     "Create convex/schema.ts to define your tables with validators and type safety.",
		project: func(p *model.ProjectFacts, out *emitter) {
			if !p.HasSchema {
				out.add(model.Warning, model.Location{}, "No schema.ts file found in convex/ directory")
			}
		},
	},
	{
		id:       "schema/deep-nesting",
		category: model.Schema,
		help:     "Flatten deeply nested validators by moving nested data into separate tables.",
		check: func(f *model.FileFacts, out *emitter) {
			if f.NestingDepth > maxNestingDepth {
				out.add(model.Warning, f.NestingLocation, "Schema validators nested %d levels deep", f.NestingDepth)
			}
		},
	},
	{
		id:       "schema/array-relationships",
		category: model.Schema,
		help:     "Arrays of `v.id()` grow without bound. Use a separate join table for the relationship.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, a := range f.ArrayReferences {
				out.add(model.Warning, a.Location, "Array of document references: %s", a.Detail)
			}
		},
	},
	{
		id:       "schema/redundant-index",
		category: model.Schema,
		help:     "A compound index serves queries on its leading fields. Remove the shorter index to save storage.",
		check: func(f *model.FileFacts, out *emitter) {
			for i, idx := range f.Indexes {
				for j, other := range f.Indexes {
					if i == j || idx.Table == "" || idx.Table != other.Table {
						continue
					}
					if isPrefix(idx.Fields, other.Fields) {
						out.add(model.Warning, idx.Location, "Index `%s` is redundant: it is a prefix of index `%s`", idx.Name, other.Name)
						break
					}
				}
			}
		},
	},
	{
		id:       "schema/too-many-indexes",
		category: model.Schema,
		help:     "Every index slows down writes. Remove indexes that no query uses.",
		check: func(f *model.FileFacts, out *emitter) {
			counts := make(map[string]int)
			var order []string
			first := make(map[string]model.Location)
			for _, idx := range f.Indexes {
				if idx.Table == "" {
					continue
				}
				if counts[idx.Table] == 0 {
					order = append(order, idx.Table)
					first[idx.Table] = idx.Location
				}
				counts[idx.Table]++
			}
			for _, table := range order {
				if n := counts[table]; n >= maxIndexesPerTable {
					out.add(model.Info, first[table], "Table `%s` declares %d indexes", table, n)
				}
			}
		},
	},
	{
		id:       "schema/missing-search-index-filter",
		category: model.Schema,
		help:     "Add `filterFields` to the search index so searches can be narrowed without scanning results.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, s := range f.SearchIndexes {
				if !s.HasFilterFields {
					out.add(model.Info, s.Location, "Search index `%s` has no filterFields", s.Name)
				}
			}
		},
	},
	{
		id:       "schema/optional-field-no-default-handling",
		category: model.Schema,
		help:     "Every reader must handle `undefined` for optional fields. Give fields defaults at write time where possible.",
		check: func(f *model.FileFacts, out *emitter) {
			if f.OptionalFields >= optionalFieldThreshold && strings.Contains(strings.ToLower(f.Path), "schema") {
				out.add(model.Warning, fileStart, "Schema declares %d optional fields", f.OptionalFields)
			}
		},
	},
	{
		id:       "schema/missing-index-for-query",
		category: model.Schema,
		help:     "Add an index that starts with the filtered field and query it with `.withIndex()`.",
		project: func(p *model.ProjectFacts, out *emitter) {
			if !p.HasSchema {
				return
			}
			if len(p.Indexes) == 0 {
				out.add(model.Warning, model.Location{}, "Schema declares no database indexes")
				return
			}
			type key struct{ table, field string }
			seen := make(map[key]bool)
			for _, ff := range p.FilterFields {
				if ff.Table == "" || ff.Field == "" || hasLeadingIndex(p.Indexes, ff.Table, ff.Field) {
					continue
				}
				k := key{ff.Table, ff.Field}
				if seen[k] {
					continue
				}
				seen[k] = true
				out.addIn(ff.File, model.Warning, ff.Location, "Query filters `%s` on `%s` but no index starts with that field", ff.Table, ff.Field)
			}
		},
	},
}
