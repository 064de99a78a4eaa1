package rules

import (
	"strconv"
	"strings"

	"github.com/phobologic/convex-doctor/internal/model"
)

// maxOutdatedNode is the newest Node major that is no longer supported.
const maxOutdatedNode = 18

// nodeMajor parses the major version from values such as "18", "20.x" or "v22.1".
func nodeMajor(v string) (int, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexByte(v, '.'); i >= 0 {
		v = v[:i]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

var configurationRules = []*rule{
	{
		id:       "config/missing-convex-json",
		category: model.Configuration,
		help:     "Create convex.json to configure deployment settings such as the Node version.",
		project: func(p *model.ProjectFacts, out *emitter) {
			if !p.HasConvexJSON {
				out.addIn(".", model.Warning, model.Location{}, "No convex.json found in project root")
			}
		},
	},
	{
		id:       "config/missing-auth-config",
		category: model.Configuration,
		help:     "Create convex/auth.config.ts to configure authentication providers.",
		project: func(p *model.ProjectFacts, out *emitter) {
			if p.UsesAuth && !p.HasAuthConfig {
				out.add(model.Error, model.Location{}, "Functions use ctx.auth but no auth.config.ts found")
			}
		},
	},
	{
		id:       "config/missing-generated-code",
		category: model.Configuration,
		help:     "Run `npx convex dev` to generate type-safe API references.",
		project: func(p *model.ProjectFacts, out *emitter) {
			if !p.HasGeneratedDir {
				out.add(model.Warning, model.Location{}, "Missing convex/_generated/ directory")
			}
		},
	},
	{
		id:       "config/outdated-node-version",
		category: model.Configuration,
		help:     "Set Node 20 or later in convex.json.",
		project: func(p *model.ProjectFacts, out *emitter) {
			n, ok := nodeMajor(p.NodeVersion)
			if ok && n <= maxOutdatedNode {
				out.addIn("convex.json", model.Warning, model.Location{}, "convex.json specifies Node %d, which is no longer supported", n)
			}
		},
	},
	{
		id:       "config/missing-tsconfig",
		category: model.Configuration,
		help:     "Create convex/tsconfig.json so `npx convex dev` type-checks your functions.",
		project: func(p *model.ProjectFacts, out *emitter) {
			if p.HasSchema && !p.HasTSConfig {
				out.add(model.Info, model.Location{}, "No tsconfig.json found in convex/ directory")
			}
		},
	},
}
