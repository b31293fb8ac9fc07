package apidb

import "strings"

// TypeRef is a parsed C++ type expression: the named type plus the
// qualifiers that matter at the ABI boundary. References may be cyclic
// (a class pointing at itself through a pointer field); anything walking
// refs must carry a visited set.
type TypeRef struct {
	Name      string // qualified type name, "" for pure builtins like "int"
	Builtin   string // builtin token when the base type is fundamental
	Const     bool
	Pointers  int  // levels of * indirection
	Reference bool // lvalue reference
	RValueRef bool // rvalue reference
}

// builtinTypes maps fundamental C++ type tokens to the Rust primitive the
// host wrapper uses. Multi-word forms are normalized before lookup.
var builtinTypes = map[string]string{
	"void":               "()",
	"bool":               "bool",
	"char":               "i8",
	"signed char":        "i8",
	"unsigned char":      "u8",
	"short":              "i16",
	"unsigned short":     "u16",
	"int":                "i32",
	"unsigned":           "u32",
	"unsigned int":       "u32",
	"long":               "i64",
	"unsigned long":      "u64",
	"long long":          "i64",
	"unsigned long long": "u64",
	"float":              "f32",
	"double":             "f64",
	"int8_t":             "i8",
	"uint8_t":            "u8",
	"int16_t":            "i16",
	"uint16_t":           "u16",
	"int32_t":            "i32",
	"uint32_t":           "u32",
	"int64_t":            "i64",
	"uint64_t":           "u64",
	"size_t":             "usize",
	"std::size_t":        "usize",
	"std::string":        "string",
}

// ParseTypeRef breaks a raw C++ type expression into a TypeRef. It handles
// const qualification, pointer/reference indirection, and fundamental type
// normalization. Template expressions keep their full spelling as Name and
// will fail resolution unless a matching entity was ingested.
func ParseTypeRef(expr string) TypeRef {
	var ref TypeRef
	s := strings.TrimSpace(expr)

	// Strip trailing indirection tokens, innermost first.
	for {
		switch {
		case strings.HasSuffix(s, "&&"):
			ref.RValueRef = true
			s = strings.TrimSpace(strings.TrimSuffix(s, "&&"))
		case strings.HasSuffix(s, "&"):
			ref.Reference = true
			s = strings.TrimSpace(strings.TrimSuffix(s, "&"))
		case strings.HasSuffix(s, "*"):
			ref.Pointers++
			s = strings.TrimSpace(strings.TrimSuffix(s, "*"))
		case strings.HasSuffix(s, "const") && len(s) > 5:
			// Trailing const (east const) binds to the type to its left.
			ref.Const = true
			s = strings.TrimSpace(strings.TrimSuffix(s, "const"))
		default:
			goto done
		}
	}
done:
	if strings.HasPrefix(s, "const ") {
		ref.Const = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "const "))
	}
	s = strings.Join(strings.Fields(s), " ") // collapse interior whitespace

	if rust, ok := builtinTypes[s]; ok {
		ref.Builtin = rust
		if s == "std::string" {
			// std::string is named, not fundamental: it resolves through
			// the string shim rather than a database entity.
			ref.Name = s
		}
		return ref
	}
	ref.Name = s
	return ref
}

// IsVoid reports whether the ref is plain void with no indirection.
func (r TypeRef) IsVoid() bool {
	return r.Builtin == "()" && r.Pointers == 0 && !r.Reference && !r.RValueRef
}

// IsBuiltin reports whether the base type is fundamental (or std::string,
// which crosses the boundary via the string shim).
func (r TypeRef) IsBuiltin() bool { return r.Builtin != "" }

// Indirect reports whether the ref goes through any pointer or reference.
func (r TypeRef) Indirect() bool {
	return r.Pointers > 0 || r.Reference || r.RValueRef
}

// String reconstructs a normalized C++ spelling, used for signature
// hashing. Normalization keeps suffix churn out of generated names: the
// spelling depends only on const-ness, the base type, and indirection.
func (r TypeRef) String() string {
	var b strings.Builder
	if r.Const {
		b.WriteString("const ")
	}
	switch {
	case r.Name != "":
		b.WriteString(r.Name)
	case r.Builtin != "":
		b.WriteString(r.Builtin)
	}
	for i := 0; i < r.Pointers; i++ {
		b.WriteByte('*')
	}
	if r.Reference {
		b.WriteByte('&')
	}
	if r.RValueRef {
		b.WriteString("&&")
	}
	return b.String()
}
