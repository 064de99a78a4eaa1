package model

// FunctionKind identifies which Convex function factory declared a function.
// The zero value means "not inside a recognized declaration".
type FunctionKind uint8

const (
	NoKind FunctionKind = iota
	Query
	Mutation
	Action
	HTTPAction
	InternalQuery
	InternalMutation
	InternalAction
)

type kindTraits struct {
	factory  string
	public   bool
	query    bool
	mutation bool
	action   bool
}

var kindTable = [...]kindTraits{
	NoKind:           {},
	Query:            {factory: "query", public: true, query: true},
	Mutation:         {factory: "mutation", public: true, mutation: true},
	Action:           {factory: "action", public: true, action: true},
	HTTPAction:       {factory: "httpAction", public: true},
	InternalQuery:    {factory: "internalQuery", query: true},
	InternalMutation: {factory: "internalMutation", mutation: true},
	InternalAction:   {factory: "internalAction", action: true},
}

// KindForFactory maps a factory identifier such as "internalMutation" to its kind.
func KindForFactory(name string) (FunctionKind, bool) {
	for k := Query; k <= InternalAction; k++ {
		if kindTable[k].factory == name {
			return k, true
		}
	}
	return NoKind, false
}

// String returns the factory name for the kind.
func (k FunctionKind) String() string {
	if int(k) >= len(kindTable) {
		return ""
	}
	return kindTable[k].factory
}

func (k FunctionKind) traits() kindTraits {
	if int(k) >= len(kindTable) {
		return kindTraits{}
	}
	return kindTable[k]
}

// IsPublic reports whether any client may call functions of this kind.
func (k FunctionKind) IsPublic() bool { return k.traits().public }

// IsQuery reports whether the kind is a public or internal query.
func (k FunctionKind) IsQuery() bool { return k.traits().query }

// IsMutation reports whether the kind is a public or internal mutation.
func (k FunctionKind) IsMutation() bool { return k.traits().mutation }

// IsAction reports whether the kind is a public or internal action.
func (k FunctionKind) IsAction() bool { return k.traits().action }
