// Package frontend parses C++ headers with tree-sitter and produces the
// declaration set the engine ingests. It is deliberately shallow: no
// preprocessing, no template instantiation, no overload resolution — it
// records what the header spells out and leaves semantics to the
// classifier. Constructs it does not model (templates, friend
// declarations, macros) are skipped without error.
package frontend

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/jward/girder/decl"
)

// Parser wraps a tree-sitter parser configured for C++.
type Parser struct {
	parser *sitter.Parser
}

// New returns a Parser ready for header parsing.
func New() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(cpp.GetLanguage())
	return &Parser{parser: p}
}

// ParseFile reads and parses one header file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*decl.Set, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("frontend: read %s: %w", path, err)
	}
	set, err := p.Parse(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("frontend: parse %s: %w", path, err)
	}
	return set, nil
}

// Parse parses header source into a declaration set.
func (p *Parser) Parse(ctx context.Context, src []byte) (*decl.Set, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("frontend: parse: %w", err)
	}
	w := &walker{src: src, set: &decl.Set{}}
	w.declarations(tree.RootNode(), "")
	return w.set, nil
}

// walker accumulates declarations while descending the syntax tree.
type walker struct {
	src []byte
	set *decl.Set
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.src[n.StartByte():n.EndByte()])
}

// declarations processes the children of a translation unit or namespace
// body under the given scope.
func (w *walker) declarations(n *sitter.Node, scope string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "namespace_definition":
			w.namespace(child, scope)
		case "class_specifier":
			w.class(child, scope, false)
		case "struct_specifier":
			w.class(child, scope, true)
		case "enum_specifier":
			w.enum(child, scope)
		case "alias_declaration":
			w.alias(child, scope)
		case "type_definition":
			w.typedef(child, scope)
		case "function_definition", "declaration":
			if fd := functionDeclarator(child); fd != nil {
				if fn := w.function(child, fd, scope, ""); fn != nil {
					w.set.Functions = append(w.set.Functions, fn)
				}
			}
		}
	}
}

func (w *walker) namespace(n *sitter.Node, scope string) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return // anonymous namespace: contents are not part of the public API
	}
	w.set.Namespaces = append(w.set.Namespaces, &decl.Namespace{Scope: scope, Name: name})
	if body := n.ChildByFieldName("body"); body != nil {
		w.declarations(body, decl.Qualified(scope, name))
	}
}

func (w *walker) class(n *sitter.Node, scope string, isStruct bool) {
	name := w.text(n.ChildByFieldName("name"))
	body := n.ChildByFieldName("body")
	if name == "" || body == nil {
		return // forward declaration
	}

	c := &decl.Class{Scope: scope, Name: name, IsStruct: isStruct}
	qualified := decl.Qualified(scope, name)

	for i := 0; i < int(n.ChildCount()); i++ {
		if ch := n.Child(i); ch.Type() == "base_class_clause" {
			for j := 0; j < int(ch.NamedChildCount()); j++ {
				b := ch.NamedChild(j)
				switch b.Type() {
				case "type_identifier", "qualified_identifier", "template_type":
					c.Bases = append(c.Bases, w.text(b))
				}
			}
		}
	}

	public := isStruct
	sawCtor := false
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "access_specifier":
			public = strings.HasPrefix(w.text(member), "public")

		case "field_declaration", "function_definition", "declaration":
			fd := functionDeclarator(member)
			if fd == nil {
				if member.Type() == "field_declaration" && !w.isStatic(member) {
					w.field(member, c, public)
				}
				continue
			}
			fn := w.function(member, fd, qualified, name)
			if fn == nil {
				continue
			}
			fn.IsMethod = true
			w.recordSpecials(c, fn, member, &sawCtor)
			if w.isDeleted(member) {
				continue // deleted members shape the facts but are never callable
			}
			c.Methods = append(c.Methods, fn)

		// Nested types keep their own top-level handling.
		case "class_specifier":
			w.class(member, qualified, false)
		case "struct_specifier":
			w.class(member, qualified, true)
		case "enum_specifier":
			w.enum(member, qualified)
		case "alias_declaration":
			w.alias(member, qualified)
		case "type_definition":
			w.typedef(member, qualified)
		}
	}

	if !sawCtor && !c.DeletedDefault {
		c.HasDefaultCtor = true
	}
	w.set.Classes = append(w.set.Classes, c)
}

// recordSpecials updates the class's special-member flags for one parsed
// member declaration.
func (w *walker) recordSpecials(c *decl.Class, fn *decl.Function, member *sitter.Node, sawCtor *bool) {
	deleted := w.isDeleted(member)
	switch {
	case fn.IsDtor:
		if !w.isDefaulted(member) {
			c.HasUserDtor = true
		}
	case fn.IsCtor:
		*sawCtor = true
		switch ctorFlavor(c.Name, fn) {
		case ctorDefault:
			if deleted {
				c.DeletedDefault = true
			} else {
				c.HasDefaultCtor = true
			}
		case ctorCopy:
			if deleted {
				c.DeletedCopyCtor = true
			} else if !w.isDefaulted(member) {
				c.HasUserCopyCtor = true
			}
		case ctorMove:
			if deleted {
				c.DeletedMoveCtor = true
			} else if !w.isDefaulted(member) {
				c.HasUserMoveCtor = true
			}
		}
	}
}

type ctorKind int

const (
	ctorOther ctorKind = iota
	ctorDefault
	ctorCopy
	ctorMove
)

// ctorFlavor classifies a constructor by its parameter list.
func ctorFlavor(className string, fn *decl.Function) ctorKind {
	if len(fn.Params) == 0 {
		return ctorDefault
	}
	if len(fn.Params) != 1 {
		return ctorOther
	}
	t := strings.Join(strings.Fields(fn.Params[0].TypeExpr), "")
	switch {
	case t == "const"+className+"&":
		return ctorCopy
	case t == className+"&&":
		return ctorMove
	}
	return ctorOther
}

func (w *walker) field(n *sitter.Node, c *decl.Class, public bool) {
	typ := w.text(n.ChildByFieldName("type"))
	if typ == "" {
		return
	}
	if w.hasQualifier(n, "const") {
		typ = "const " + typ
	}
	decls := n.ChildByFieldName("declarator")
	if decls == nil {
		return
	}
	name, wrap := unwrapDeclarator(w, decls)
	if name == "" {
		return
	}
	c.Fields = append(c.Fields, &decl.Field{
		Name:     name,
		TypeExpr: typ + wrap,
		Public:   public,
	})
}

// function parses one function-shaped declaration. className is non-empty
// inside a class body and enables constructor/destructor detection.
func (w *walker) function(n *sitter.Node, fd *sitter.Node, scope, className string) *decl.Function {
	name, _ := unwrapDeclarator(w, fd.ChildByFieldName("declarator"))
	if name == "" {
		return nil
	}

	fn := &decl.Function{Scope: scope, Name: name}
	switch {
	case className != "" && name == className:
		fn.IsCtor = true
	case className != "" && name == "~"+className:
		fn.IsDtor = true
	case strings.HasPrefix(name, "operator"):
		fn.IsOperator = true
	}

	fn.IsStatic = w.isStatic(n)
	fn.IsVirtual = w.hasKeyword(n, "virtual")
	if fn.IsVirtual && strings.HasSuffix(strings.TrimSuffix(strings.TrimSpace(w.text(n)), ";"), "= 0") {
		fn.IsPureVirtual = true
	}

	// Trailing const on the declarator makes a const member function.
	for i := 0; i < int(fd.ChildCount()); i++ {
		if ch := fd.Child(i); ch.Type() == "type_qualifier" && w.text(ch) == "const" {
			fn.IsConst = true
		}
	}

	if params := fd.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p.Type() != "parameter_declaration" {
				continue
			}
			fn.Params = append(fn.Params, w.param(p))
		}
	}

	if !fn.IsCtor && !fn.IsDtor {
		ret := w.text(n.ChildByFieldName("type"))
		if w.hasQualifier(n, "const") {
			ret = "const " + ret
		}
		// Pointer/reference wrappers sit between the declaration's
		// declarator and the function_declarator.
		ret += declaratorWrap(n.ChildByFieldName("declarator"), fd)
		fn.ReturnType = ret
	}
	return fn
}

// param reconstructs one parameter's name and type expression. The name is
// cut out of the parameter text by byte range, which keeps pointer and
// reference spelling intact without re-deriving it.
func (w *walker) param(n *sitter.Node) *decl.Param {
	d := n.ChildByFieldName("declarator")
	id := innermostIdentifier(d)
	if id == nil {
		return &decl.Param{TypeExpr: strings.TrimSpace(w.text(n))}
	}
	start := n.StartByte()
	typeExpr := string(w.src[start:id.StartByte()]) + string(w.src[id.EndByte():n.EndByte()])
	return &decl.Param{
		Name:     w.text(id),
		TypeExpr: strings.TrimSpace(typeExpr),
	}
}

func (w *walker) enum(n *sitter.Node, scope string) {
	name := w.text(n.ChildByFieldName("name"))
	body := n.ChildByFieldName("body")
	if name == "" || body == nil {
		return
	}
	e := &decl.Enum{Scope: scope, Name: name}
	head := w.text(n)
	if strings.HasPrefix(head, "enum class") || strings.HasPrefix(head, "enum struct") {
		e.Scoped = true
	}
	next := int64(0)
	for i := 0; i < int(body.NamedChildCount()); i++ {
		en := body.NamedChild(i)
		if en.Type() != "enumerator" {
			continue
		}
		val := next
		if v := en.ChildByFieldName("value"); v != nil {
			if parsed, err := strconv.ParseInt(strings.TrimSpace(w.text(v)), 0, 64); err == nil {
				val = parsed
			}
		}
		e.Values = append(e.Values, decl.EnumValue{Name: w.text(en.ChildByFieldName("name")), Value: val})
		next = val + 1
	}
	w.set.Enums = append(w.set.Enums, e)
}

func (w *walker) alias(n *sitter.Node, scope string) {
	name := w.text(n.ChildByFieldName("name"))
	target := w.text(n.ChildByFieldName("type"))
	if name == "" || target == "" {
		return
	}
	w.set.Typedefs = append(w.set.Typedefs, &decl.Typedef{Scope: scope, Name: name, Target: target})
}

func (w *walker) typedef(n *sitter.Node, scope string) {
	target := w.text(n.ChildByFieldName("type"))
	d := n.ChildByFieldName("declarator")
	name, wrap := unwrapDeclarator(w, d)
	if name == "" || target == "" {
		return
	}
	w.set.Typedefs = append(w.set.Typedefs, &decl.Typedef{Scope: scope, Name: name, Target: target + wrap})
}

// --- declarator helpers -------------------------------------------------

// functionDeclarator finds the function_declarator nested under a
// declaration's declarator, if any.
func functionDeclarator(n *sitter.Node) *sitter.Node {
	d := n.ChildByFieldName("declarator")
	for d != nil {
		switch d.Type() {
		case "function_declarator":
			return d
		case "pointer_declarator", "reference_declarator":
			d = d.ChildByFieldName("declarator")
			if d == nil {
				return nil
			}
		default:
			return nil
		}
	}
	return nil
}

// declaratorWrap collects the pointer/reference spelling between an outer
// declarator and an inner function_declarator, for return types like
// "int* f()".
func declaratorWrap(outer, inner *sitter.Node) string {
	wrap := ""
	d := outer
	for d != nil && !(d.StartByte() == inner.StartByte() && d.EndByte() == inner.EndByte()) {
		switch d.Type() {
		case "pointer_declarator":
			wrap += "*"
		case "reference_declarator":
			wrap += "&"
		default:
			return wrap
		}
		d = d.ChildByFieldName("declarator")
	}
	return wrap
}

// unwrapDeclarator returns the declared name and any pointer/reference
// wrapping accumulated on the way down.
func unwrapDeclarator(w *walker, d *sitter.Node) (name, wrap string) {
	for d != nil {
		switch d.Type() {
		case "pointer_declarator":
			wrap += "*"
			d = d.ChildByFieldName("declarator")
		case "reference_declarator":
			wrap += "&"
			d = d.ChildByFieldName("declarator")
		case "identifier", "field_identifier", "type_identifier", "destructor_name", "operator_name", "qualified_identifier":
			return w.text(d), wrap
		default:
			return "", wrap
		}
	}
	return "", wrap
}

// innermostIdentifier digs through declarator wrappers to the declared
// identifier node.
func innermostIdentifier(d *sitter.Node) *sitter.Node {
	for d != nil {
		switch d.Type() {
		case "pointer_declarator", "reference_declarator", "function_declarator":
			d = d.ChildByFieldName("declarator")
		case "identifier", "field_identifier":
			return d
		default:
			return nil
		}
	}
	return nil
}

func (w *walker) isStatic(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if ch := n.Child(i); ch.Type() == "storage_class_specifier" && w.text(ch) == "static" {
			return true
		}
	}
	return false
}

func (w *walker) hasKeyword(n *sitter.Node, kw string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		if ch.Type() == kw || (ch.Type() == "virtual_function_specifier" && w.text(ch) == kw) {
			return true
		}
	}
	return false
}

func (w *walker) hasQualifier(n *sitter.Node, q string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if ch := n.Child(i); ch.Type() == "type_qualifier" && w.text(ch) == q {
			return true
		}
	}
	return false
}

func (w *walker) isDeleted(n *sitter.Node) bool {
	return strings.Contains(w.text(n), "= delete")
}

func (w *walker) isDefaulted(n *sitter.Node) bool {
	return strings.Contains(w.text(n), "= default")
}
