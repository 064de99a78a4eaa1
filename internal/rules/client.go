package rules

import "github.com/phobologic/convex-doctor/internal/model"

var clientRules = []*rule{
	{
		id:       "client/mutation-in-render",
		category: model.ClientSide,
		help:     "Calling a mutation during render causes an infinite write loop. Call it from an event handler or useEffect.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, h := range f.Hooks {
				if h.Hook == "useMutation" && h.InRender {
					out.add(model.Error, h.Location, "`useMutation(...)` result is invoked during render")
				}
			}
		},
	},
	{
		id:       "client/unhandled-loading-state",
		category: model.ClientSide,
		help:     "`useQuery` returns `undefined` on the first render. Check for it before using the result.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, h := range f.Hooks {
				if h.Hook == "useQuery" {
					out.add(model.Warning, h.Location, "`useQuery` result may be undefined while loading")
					return
				}
			}
		},
	},
	{
		id:       "client/action-instead-of-mutation",
		category: model.ClientSide,
		help:     "Actions are not transactional. If the work only touches the database, `useMutation` is simpler and safer.",
		check: func(f *model.FileFacts, out *emitter) {
			for _, h := range f.Hooks {
				if h.Hook == "useAction" {
					out.add(model.Info, h.Location, "`useAction` used where `useMutation` may suffice")
				}
			}
		},
	},
	{
		id:       "client/missing-convex-provider",
		category: model.ClientSide,
		help:     "Convex hooks need a ConvexProvider ancestor, usually set up in the root layout.",
		check: func(f *model.FileFacts, out *emitter) {
			if len(f.Hooks) == 0 || f.HasConvexProvider {
				return
			}
			out.add(model.Info, f.Hooks[0].Location, "Convex hooks used; make sure a ConvexProvider wraps the component tree")
		},
	},
}
