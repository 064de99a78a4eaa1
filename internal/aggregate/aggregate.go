// Package aggregate merges per-file facts into the project-wide view used by
// cross-file rules.
package aggregate

import (
	"strings"

	"github.com/phobologic/convex-doctor/internal/model"
)

// Merge combines the facts of every analyzed file with the project flags.
// Files are merged in the order given; nil entries (files that failed to
// parse) are skipped. The result does not alias the input slices.
func Merge(files []*model.FileFacts, flags model.ProjectFlags) *model.ProjectFacts {
	p := &model.ProjectFacts{ProjectFlags: flags}
	for _, f := range files {
		if f == nil {
			continue
		}
		p.Indexes = append(p.Indexes, f.Indexes...)
		p.References = append(p.References, f.References...)
		p.FilterFields = append(p.FilterFields, f.FilterFields...)
		if !p.UsesAuth && usesAuth(f) {
			p.UsesAuth = true
		}
	}
	return p
}

func usesAuth(f *model.FileFacts) bool {
	for _, fn := range f.Functions {
		if fn.HasAuthCheck {
			return true
		}
	}
	for _, c := range f.Calls {
		if strings.HasPrefix(c.Chain, "ctx.auth.") {
			return true
		}
	}
	return false
}
