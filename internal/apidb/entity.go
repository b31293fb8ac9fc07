package apidb

import "github.com/jward/girder/decl"

// Kind discriminates what a database entity is.
type Kind int

const (
	KindAny Kind = iota // Iterate filter meaning "all kinds"
	KindNamespace
	KindClass
	KindFunction // free functions and methods, all overloads under one name
	KindEnum
	KindTypedef
	KindField
)

func (k Kind) String() string {
	switch k {
	case KindNamespace:
		return "namespace"
	case KindClass:
		return "class"
	case KindFunction:
		return "function"
	case KindEnum:
		return "enum"
	case KindTypedef:
		return "typedef"
	case KindField:
		return "field"
	}
	return "any"
}

// Entity is one native declaration of interest. Identity is the
// fully-qualified name; it is unique across all kinds. An Entity is
// immutable after ingestion — analysis results live in the FactTable,
// never on the entity itself.
type Entity struct {
	Name  string // fully-qualified: "ns::inner::Widget"
	Scope string // enclosing scope path, "" for global
	Kind  Kind
	Order int // insertion order, assigned by the DB

	// Exactly one of these is set, matching Kind. Function entities hold
	// every overload sharing the name, in ingestion order.
	Namespace *decl.Namespace
	Class     *decl.Class
	Funcs     []*decl.Function
	Enum      *decl.Enum
	Typedef   *decl.Typedef
	Field     *decl.Field

	// Owner is the owning class's qualified name for fields and methods.
	Owner string
}

// Local returns the entity's unqualified name.
func (e *Entity) Local() string {
	for i := len(e.Name) - 1; i > 0; i-- {
		if e.Name[i] == ':' && e.Name[i-1] == ':' {
			return e.Name[i+1:]
		}
	}
	return e.Name
}

// IsMethodSet reports whether a function entity holds class methods.
func (e *Entity) IsMethodSet() bool {
	return e.Kind == KindFunction && len(e.Funcs) > 0 && e.Funcs[0].IsMethod
}

// MethodEntityName returns the function-entity identity for a class
// method: the owning class's qualified name plus the method name (which is
// the class name itself for constructors and "~Class" for destructors).
func MethodEntityName(owner string, m *decl.Function) string {
	return owner + "::" + m.Name
}
