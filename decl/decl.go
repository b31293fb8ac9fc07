// Package decl defines the structured C++ declaration set that girder
// consumes. It is the ingestion boundary: a frontend (tree-sitter based or
// otherwise) produces a Set, and the engine normalizes it into the internal
// semantic model. Nothing in this package understands C++ syntax — type
// expressions are carried as raw strings and parsed later.
package decl

// Set is one parser run's worth of declarations, in source order.
type Set struct {
	Namespaces []*Namespace
	Classes    []*Class
	Functions  []*Function
	Enums      []*Enum
	Typedefs   []*Typedef
}

// Namespace is a C++ namespace. Scope is the enclosing namespace path
// ("a::b" or "" for the global namespace); the namespace's own qualified
// name is Scope + "::" + Name.
type Namespace struct {
	Scope string
	Name  string
}

// Class is a C++ class or struct declaration.
type Class struct {
	Scope   string
	Name    string
	Bases   []string // qualified base class names, declaration order
	Fields  []*Field
	Methods []*Function

	// Special member presence, as declared in the header. The classifier
	// derives constructibility and relocatability from these.
	HasUserCopyCtor  bool
	HasUserMoveCtor  bool
	HasUserDtor      bool
	HasDefaultCtor   bool // explicit default constructor or no ctors at all
	DeletedCopyCtor  bool
	DeletedMoveCtor  bool
	DeletedDefault   bool
	IsStruct         bool // declared with the struct keyword
}

// Function is a free function, a method, or a constructor/destructor.
// For methods, Scope is the enclosing class's qualified name.
type Function struct {
	Scope      string
	Name       string
	Params     []*Param
	ReturnType string // empty for constructors/destructors

	IsMethod      bool
	IsStatic      bool
	IsConst       bool // const member function
	IsVirtual     bool
	IsPureVirtual bool
	IsCtor        bool
	IsDtor        bool
	IsOperator    bool // Name holds the operator token, e.g. "operator=="
}

// Param is one function parameter. TypeExpr is the raw C++ type expression
// ("const std::string &", "Widget *", "int").
type Param struct {
	Name     string
	TypeExpr string
}

// Field is one non-static data member.
type Field struct {
	Name     string
	TypeExpr string
	Public   bool
}

// Enum is a C++ enum or enum class.
type Enum struct {
	Scope   string
	Name    string
	Scoped  bool // enum class
	Values  []EnumValue
}

// EnumValue is one enumerator with its resolved constant value.
type EnumValue struct {
	Name  string
	Value int64
}

// Typedef is a typedef or using-alias. Target is the raw aliased type
// expression.
type Typedef struct {
	Scope  string
	Name   string
	Target string
}

// Qualified returns the fully-qualified name for a scope/name pair.
func Qualified(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "::" + name
}
