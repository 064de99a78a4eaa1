package rules

import (
	"strings"

	"github.com/phobologic/convex-doctor/internal/model"
)

// spoofableArgs are argument names that identify the caller or its
// privileges and therefore must come from ctx.auth instead.
var spoofableArgs = map[string]bool{
	"userId":  true,
	"ownerId": true,
	"role":    true,
	"isAdmin": true,
}

// callableKind reports whether the function is public and takes validated
// arguments, which excludes HTTP actions.
func callableKind(k model.FunctionKind) bool {
	return k.IsPublic() && k != model.HTTPAction
}

var securityRules = []*rule{
	{
		id:       "security/missing-arg-validators",
		category: model.Security,
		help:     "Add `args: { ... }` with validators for all parameters. Public functions can be called by anyone.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, fn := range f.Functions {
				if callableKind(fn.Kind) && !fn.HasArgsValidator {
					out.add(model.Error, fn.Location, "Public %s `%s` has no argument validators", fn.Kind, fn.Name)
				}
			}
		},
	},
	{
		id:       "security/missing-return-validators",
		category: model.Security,
		help:     "Add `returns: v.object({...})` to validate the return type and prevent accidental data leaks.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, fn := range f.Functions {
				if fn.Kind != model.HTTPAction && !fn.HasReturnValidator {
					out.add(model.Warning, fn.Location, "%s `%s` has no return value validator", fn.Kind, fn.Name)
				}
			}
		},
	},
	{
		id:       "security/missing-auth-check",
		category: model.Security,
		help:     "Call `await ctx.auth.getUserIdentity()` to verify the caller, or add a `// convex-doctor-ignore` comment if the function is public on purpose.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, fn := range f.Functions {
				if callableKind(fn.Kind) && !fn.HasAuthCheck && !fn.IntentionallyPublic {
					out.add(model.Warning, fn.Location, "Public %s `%s` does not check authentication", fn.Kind, fn.Name)
				}
			}
		},
	},
	{
		id:       "security/internal-api-misuse",
		category: model.Security,
		help:     "Use `internal.` instead of `api.` for server-to-server calls. Public references expose endpoints that bypass internal access controls.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if !hasAnyPrefix(c.Chain, "ctx.scheduler", "ctx.runMutation", "ctx.runQuery", "ctx.runAction") {
					continue
				}
				if strings.HasPrefix(c.TargetChain, "api.") {
					out.add(model.Error, c.Location, "`%s` is called with public API reference `%s`", c.Chain, c.TargetChain)
				}
			}
		},
	},
	{
		id:       "security/hardcoded-secrets",
		category: model.Security,
		help:     "Read secrets from environment variables via `process.env.SECRET_NAME` instead of hardcoding them.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, s := range f.Secrets {
				out.add(model.Error, s.Location, "Hardcoded secret detected: %s", s.Detail)
			}
		},
	},
	{
		id:       "security/env-not-gitignored",
		category: model.Security,
		help:     "Add `.env.local` to your .gitignore to prevent committing secrets.",
		project: func(p *model.ProjectFacts, out *emitter) {
			if p.HasEnvLocal && !p.EnvGitignored {
				out.addIn(".env.local", model.Error, model.Location{}, ".env.local exists but is not in .gitignore")
			}
		},
	},
	{
		id:       "security/spoofable-access-control",
		category: model.Security,
		help:     "Derive the caller's identity and privileges from `ctx.auth.getUserIdentity()` instead of trusting client arguments.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, fn := range f.Functions {
				if !callableKind(fn.Kind) || fn.HasAuthCheck || fn.IntentionallyPublic {
					continue
				}
				for _, arg := range fn.ArgNames {
					if spoofableArgs[arg] {
						out.add(model.Warning, fn.Location, "Public %s `%s` trusts client-supplied `%s` without checking authentication", fn.Kind, fn.Name, arg)
						break
					}
				}
			}
		},
	},
	{
		id:       "security/missing-table-id",
		category: model.Security,
		help:     "Pass the table name, e.g. `v.id(\"users\")`, so the validator rejects IDs from other tables.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, g := range f.GenericIDValidators {
				out.add(model.Warning, g.Location, "`v.id()` argument validator does not name a table")
			}
		},
	},
	{
		id:       "security/missing-http-auth",
		category: model.Security,
		help:     "HTTP actions are reachable by anyone with the URL. Verify a token or signature from the request before doing work.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, fn := range f.Functions {
				if fn.Kind == model.HTTPAction && !fn.HasAuthCheck && !fn.IntentionallyPublic {
					out.add(model.Error, fn.Location, "httpAction `%s` does not check authentication", fn.Name)
				}
			}
		},
	},
	{
		id:       "security/conditional-function-export",
		category: model.Security,
		help:     "Export the function unconditionally and check the environment inside the handler. Conditional exports change the deployed API per environment.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.ConditionalExports {
				out.add(model.Error, c.Location, "Function `%s` is exported conditionally on an environment variable", c.Detail)
			}
		},
	},
	{
		id:       "security/generic-mutation-args",
		category: model.Security,
		help:     "Replace `v.any()` with a precise validator so callers cannot pass arbitrary data.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, fn := range f.Functions {
				if callableKind(fn.Kind) && fn.HasAnyArgValidator {
					out.add(model.Warning, fn.Location, "Public %s `%s` accepts `v.any()` arguments", fn.Kind, fn.Name)
				}
			}
		},
	},
	{
		id:       "security/overly-broad-patch",
		category: model.Security,
		help:     "Pick the fields to update explicitly instead of passing the whole `args` object to `ctx.db.patch`.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, c := range f.Calls {
				if c.Chain == "ctx.db.patch" && len(c.Args) > 1 && c.Args[1] == "args" {
					out.add(model.Warning, c.Location, "`ctx.db.patch` writes the raw `args` object")
				}
			}
		},
	},
	{
		id:       "security/http-missing-cors",
		category: model.Security,
		help:     "Register an OPTIONS route for the path that answers the CORS preflight request.",
		check: func(f *model.FileFacts, out *emitter) {
			preflight := make(map[string]bool)
			for _, r := range f.Routes {
				if r.Method == "OPTIONS" {
					preflight[r.Path] = true
				}
			}
			seen := make(map[string]bool)
			for _, r := range f.Routes {
				if r.Method == "OPTIONS" || r.Webhook || preflight[r.Path] || seen[r.Path] {
					continue
				}
				seen[r.Path] = true
				out.add(model.Warning, r.Location, "HTTP route `%s %s` has no OPTIONS route for CORS preflight", r.Method, r.Path)
			}
		},
	},
}
