package model

// FunctionFact is a Convex function declared through one of the factories.
type FunctionFact struct {
	Name               string
	Kind               FunctionKind
	HasArgsValidator   bool
	HasReturnValidator bool
	HasAuthCheck       bool
	HandlerLineCount   int
	ArgNames           []string
	// HasAnyArgValidator is set when an argument is validated with v.any().
	HasAnyArgValidator bool
	// HasInternalSecret is set when the args declare an internalSecret guard.
	HasInternalSecret bool
	// HasPaginationValidator is set when paginationOpts uses paginationOptsValidator.
	HasPaginationValidator bool
	// IntentionallyPublic is set by a convex-doctor-ignore comment above the declaration.
	IntentionallyPublic bool
	Location
}

// CallFact is a call expression whose callee resolves to a dotted chain.
type CallFact struct {
	// Chain is the dotted callee path, e.g. "ctx.db.query.withIndex.collect".
	Chain    string
	InLoop   bool
	Awaited  bool
	Returned bool
	// AssignedTo names the variable the call's value is bound to, if any.
	AssignedTo string
	// EnclosingKind is NoKind outside recognized declarations.
	EnclosingKind     FunctionKind
	EnclosingFunction string
	// EnclosingID distinguishes anonymous declarations from each other.
	EnclosingID                string
	EnclosingHasInternalSecret bool
	// TargetChain is the chain of the argument naming the called function:
	// the first argument, or the second for ctx.scheduler.runAfter/runAt.
	TargetChain string
	// Args holds the resolved chain of each argument, "" when unresolved.
	Args []string
	Location
}

// ImportFact is one import declaration.
type ImportFact struct {
	Source string
	Names  []string
	Location
}

// IndexFact is a `.index(name, fields)` declaration on a schema table.
type IndexFact struct {
	File   string
	Table  string
	Name   string
	Fields []string
	Location
}

// SearchIndexFact is a `.searchIndex(name, config)` declaration.
type SearchIndexFact struct {
	Table           string
	Name            string
	HasFilterFields bool
	Location
}

// ReferenceField is a schema field validated with v.id("table").
type ReferenceField struct {
	File            string
	Table           string
	Field           string
	ReferencedTable string
	Location
}

// FilterField is a `q.field("name")` read inside a database `.filter` callback.
type FilterField struct {
	File  string
	Table string
	Field string
	Location
}

// HTTPRoute is an `http.route({ method, path })` registration.
type HTTPRoute struct {
	Method  string
	Path    string
	Webhook bool
	Location
}

// HookCall is a Convex React hook invocation.
type HookCall struct {
	Hook     string
	InRender bool
	Location
}

// Finding is a located observation with a short detail string.
type Finding struct {
	Detail string
	Location
}

// FileFacts aggregates every fact extracted from one source file.
type FileFacts struct {
	Path            string
	UsesNode        bool
	ExportedCount   int
	UnexportedCount int

	Functions []FunctionFact
	Calls     []CallFact
	Imports   []ImportFact

	Indexes         []IndexFact
	SearchIndexes   []SearchIndexFact
	References      []ReferenceField
	ArrayReferences []Finding
	NestingDepth    int
	NestingLocation Location
	OptionalFields  int
	FilterFields    []FilterField

	Routes            []HTTPRoute
	Hooks             []HookCall
	HasConvexProvider bool

	Secrets             []Finding
	GenericIDValidators []Finding
	ConditionalExports  []Finding
	NonDeterministic    []Finding
	GenericThrows       []Finding
	CollectThenFilter   []Finding
	LargeWrites         []Finding
	OldSyntax           []Finding

	// AwaitedIdentifiers lists variables that appear as an await operand,
	// with simple `const a = b` aliases resolved.
	AwaitedIdentifiers []string
}

// ProjectFlags describes filesystem and configuration state of a project.
type ProjectFlags struct {
	HasSchema         bool
	HasAuthConfig     bool
	HasConvexJSON     bool
	HasEnvLocal       bool
	EnvGitignored     bool
	HasGeneratedDir   bool
	HasTSConfig       bool
	GeneratedModified bool
	NodeVersion       string
}

// ProjectFacts merges the facts cross-file rules need.
type ProjectFacts struct {
	ProjectFlags
	UsesAuth     bool
	Indexes      []IndexFact
	References   []ReferenceField
	FilterFields []FilterField
}
