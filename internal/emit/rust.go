package emit

import (
	"fmt"
	"strings"

	"github.com/jward/girder/internal/apidb"
	"github.com/jward/girder/internal/diag"
	"github.com/jward/girder/internal/naming"
	"github.com/jward/girder/internal/subclass"
)

// Rust renders the host wrapper artifact: one Rust module per emitted
// namespace, wrapper types per the classification facts, and a flat ffi
// block declaring every shim symbol. Every extern declaration counts as a
// reference on the Usage tracker.
func Rust(p *Plan, u *Usage) ([]byte, error) {
	r := &rustEmitter{p: p, u: u, w: &strings.Builder{}}
	if err := r.emit(); err != nil {
		return nil, err
	}
	return []byte(r.w.String()), nil
}

type rustEmitter struct {
	p *Plan
	u *Usage
	w *strings.Builder
}

func (r *rustEmitter) line(indent int, format string, args ...any) {
	r.w.WriteString(strings.Repeat("    ", indent))
	fmt.Fprintf(r.w, format, args...)
	r.w.WriteByte('\n')
}

func (r *rustEmitter) blank() { r.w.WriteByte('\n') }

// modNode is one level of the namespace module tree. Each namespace
// becomes a pub mod; entities stay in database insertion order within
// their module, and child modules come after entities in first-seen order.
type modNode struct {
	name     string
	path     string // qualified namespace path
	children map[string]*modNode
	order    []string
	entities []*apidb.Entity
	subs     []subclass.Class
}

func newModNode(name, path string) *modNode {
	return &modNode{name: name, path: path, children: make(map[string]*modNode)}
}

func (n *modNode) child(name string) *modNode {
	if c, ok := n.children[name]; ok {
		return c
	}
	path := name
	if n.path != "" {
		path = n.path + "::" + name
	}
	c := newModNode(name, path)
	n.children[name] = c
	n.order = append(n.order, name)
	return c
}

func (r *rustEmitter) buildTree() *modNode {
	root := newModNode("", "")
	place := func(scope string) *modNode {
		node := root
		if scope == "" {
			return node
		}
		for _, seg := range strings.Split(scope, "::") {
			node = node.child(seg)
		}
		return node
	}

	for _, e := range r.p.Reach.Order {
		switch e.Kind {
		case apidb.KindNamespace, apidb.KindField:
			continue // namespaces become modules implicitly; fields ride with their class
		case apidb.KindFunction:
			// Methods are emitted inside their class's impl block.
			if owner := r.p.DB.Lookup(e.Scope); owner != nil && owner.Kind == apidb.KindClass {
				continue
			}
		}
		place(e.Scope).entities = append(place(e.Scope).entities, e)
	}
	for _, c := range r.p.Subclasses {
		place(c.Entity.Scope).subs = append(place(c.Entity.Scope).subs, c)
	}
	return root
}

func (r *rustEmitter) emit() error {
	r.line(0, "// Generated by girder. Do not edit.")
	r.line(0, "//")
	r.line(0, "// Host-side wrapper: safe Rust over the flat shim symbols defined in")
	r.line(0, "// the companion C++ translation unit. The two files are generated")
	r.line(0, "// together and must be rebuilt together.")
	r.blank()

	if err := r.ffiBlock(); err != nil {
		return err
	}
	r.rtMod()

	tree := r.buildTree()
	return r.modBody(tree, 0)
}

// ffiBlock declares every shim symbol in one extern block, in symbol-record
// order. This is the host side's half of the link contract.
func (r *rustEmitter) ffiBlock() error {
	r.line(0, "#[allow(non_snake_case, dead_code)]")
	r.line(0, "pub(crate) mod ffi {")
	r.line(1, `#[link(name = "girder_shim")]`)
	r.line(1, `extern "C" {`)

	for _, rec := range r.p.Symbols.Records {
		sig, err := r.p.Signature(rec)
		if err != nil {
			return fmt.Errorf("rust emitter: %w", err)
		}
		r.line(2, "pub fn %s(%s)%s;", rec.Shim, r.externParams(sig, 1), r.externRet(sig, 1))
		r.u.Reference(rec.Shim)
	}

	// String helper pair.
	r.line(2, "pub fn %s(data: *const u8, len: usize) -> *mut core::ffi::c_void;", r.p.Symbols.MakeString)
	r.line(2, "pub fn %s(s: *mut core::ffi::c_void);", r.p.Symbols.StringDestroy)
	r.u.Reference(r.p.Symbols.MakeString)
	r.u.Reference(r.p.Symbols.StringDestroy)

	// Subclass plumbing: peers, upcasts, super-delegates, and bindings.
	for _, c := range r.p.Subclasses {
		r.line(2, "pub fn %s(ctx: *mut core::ffi::c_void) -> *mut core::ffi::c_void;", c.PeerNew)
		r.line(2, "pub fn %s(peer: *mut core::ffi::c_void);", c.PeerDestroy)
		r.line(2, "pub fn %s(peer: *mut core::ffi::c_void) -> *mut core::ffi::c_void;", c.Upcast)
		r.u.Reference(c.PeerNew)
		r.u.Reference(c.PeerDestroy)
		r.u.Reference(c.Upcast)
		for _, m := range c.Methods {
			sig := r.p.TrampolineSignature(m)
			r.line(2, "pub fn %s(f: *const core::ffi::c_void);", m.Binding)
			r.u.Reference(m.Binding)
			if m.SuperSymbol != "" {
				r.line(2, "pub fn %s(self_: *mut core::ffi::c_void%s)%s;",
					m.SuperSymbol, prefixComma(r.externParams(sig, 1)), r.externRet(sig, 1))
				r.u.Reference(m.SuperSymbol)
			}
		}
	}

	r.line(1, "}")
	r.line(0, "}")
	r.blank()
	return nil
}

// rtMod emits the small runtime the wrappers lean on: an owned C++ string
// handle built through the string shim.
func (r *rustEmitter) rtMod() {
	r.line(0, "#[allow(dead_code)]")
	r.line(0, "pub mod rt {")
	r.line(1, "/// Owned or borrowed handle to a native std::string.")
	r.line(1, "pub struct CppString {")
	r.line(2, "pub(crate) ptr: *mut core::ffi::c_void,")
	r.line(2, "owned: bool,")
	r.line(1, "}")
	r.blank()
	r.line(1, "impl CppString {")
	r.line(2, "pub fn new(s: &str) -> CppString {")
	r.line(3, "unsafe { CppString { ptr: super::ffi::%s(s.as_ptr(), s.len()), owned: true } }", r.p.Symbols.MakeString)
	r.line(2, "}")
	r.blank()
	r.line(2, "pub(crate) fn from_raw(ptr: *mut core::ffi::c_void, owned: bool) -> CppString {")
	r.line(3, "CppString { ptr, owned }")
	r.line(2, "}")
	r.blank()
	r.line(2, "/// Releases ownership; the native side becomes responsible.")
	r.line(2, "pub(crate) fn into_raw(self) -> *mut core::ffi::c_void {")
	r.line(3, "let ptr = self.ptr;")
	r.line(3, "core::mem::forget(self);")
	r.line(3, "ptr")
	r.line(2, "}")
	r.line(1, "}")
	r.blank()
	r.line(1, "impl Drop for CppString {")
	r.line(2, "fn drop(&mut self) {")
	r.line(3, "if self.owned {")
	r.line(4, "unsafe { super::ffi::%s(self.ptr) }", r.p.Symbols.StringDestroy)
	r.line(3, "}")
	r.line(2, "}")
	r.line(1, "}")
	r.line(0, "}")
	r.blank()
}

// modBody emits a module's entities, subclass sections, exclusion notes,
// and child modules. d is both the indent level and the module nesting
// depth; the two coincide because each namespace adds exactly one mod.
func (r *rustEmitter) modBody(n *modNode, d int) error {
	for _, e := range n.entities {
		switch e.Kind {
		case apidb.KindEnum:
			r.emitEnum(e, d)
		case apidb.KindTypedef:
			r.emitTypedef(e, d)
		case apidb.KindClass:
			if err := r.emitClass(e, d); err != nil {
				return err
			}
		case apidb.KindFunction:
			for _, rec := range r.p.Symbols.ForEntity(e.Name) {
				if err := r.emitFn(rec, d, d); err != nil {
					return err
				}
			}
		}
	}
	for _, c := range n.subs {
		if err := r.emitSubclass(c, d); err != nil {
			return err
		}
	}
	r.emitStubs(n, d)

	for _, name := range n.order {
		r.line(d, "#[allow(non_snake_case, dead_code)]")
		r.line(d, "pub mod %s {", name)
		if err := r.modBody(n.children[name], d+1); err != nil {
			return err
		}
		r.line(d, "}")
		r.blank()
	}
	return nil
}

// emitStubs documents excluded entities inside the module where they would
// have lived, so the generated artifact records its own gaps.
func (r *rustEmitter) emitStubs(n *modNode, d int) {
	for _, dg := range r.p.Diags.Items() {
		if dg.Code != diag.CodeEntityDropped && dg.Code != diag.CodeUnrepresentable {
			continue
		}
		if scopeOf(dg.Entity) != n.path {
			continue
		}
		r.line(d, "// not generated: %s (%s)", dg.Entity, dg.Message)
	}
}

func scopeOf(qualified string) string {
	if i := strings.LastIndex(qualified, "::"); i >= 0 {
		return qualified[:i]
	}
	return ""
}

func (r *rustEmitter) emitEnum(e *apidb.Entity, d int) {
	r.line(d, "#[repr(i32)]")
	r.line(d, "#[derive(Clone, Copy, PartialEq, Eq, Debug)]")
	r.line(d, "pub enum %s {", e.Local())
	for _, v := range e.Enum.Values {
		r.line(d+1, "%s = %d,", v.Name, v.Value)
	}
	r.line(d, "}")
	r.blank()
}

func (r *rustEmitter) emitTypedef(e *apidb.Entity, d int) {
	ref := apidb.ParseTypeRef(e.Typedef.Target)
	var target string
	switch {
	case ref.IsBuiltin() && !isString(ref):
		target = ref.Builtin
	default:
		if t, err := r.p.DB.Resolve(ref); err == nil && t != nil {
			target = r.path(d, t.Name)
		}
	}
	if target == "" {
		r.line(d, "// not generated: %s (alias target %q has no host representation)", e.Name, e.Typedef.Target)
		r.blank()
		return
	}
	r.line(d, "pub type %s = %s;", e.Local(), target)
	r.blank()
}

func (r *rustEmitter) emitClass(e *apidb.Entity, d int) error {
	if r.p.classKindOf(e.Name) == classPOD {
		return r.emitPODClass(e, d)
	}
	return r.emitHandleClass(e, d)
}

// emitPODClass renders a layout-compatible value struct: same fields, same
// order, repr(C). No lifetime shims at all.
func (r *rustEmitter) emitPODClass(e *apidb.Entity, d int) error {
	r.line(d, "#[repr(C)]")
	r.line(d, "#[derive(Clone, Copy, Debug)]")
	r.line(d, "pub struct %s {", e.Local())
	for _, f := range e.Class.Fields {
		vis := ""
		if f.Public {
			vis = "pub "
		}
		ty, err := r.fieldType(apidb.ParseTypeRef(f.TypeExpr), d)
		if err != nil {
			return fmt.Errorf("rust emitter: field %s::%s: %w", e.Name, f.Name, err)
		}
		r.line(d+1, "%s%s: %s,", vis, f.Name, ty)
	}
	r.line(d, "}")
	r.blank()
	return r.emitImplBlock(e, d)
}

// emitHandleClass renders an opaque heap handle. Construction and Drop go
// through the class's construct/destroy shims; borrowed views carry
// owned=false and never destroy.
func (r *rustEmitter) emitHandleClass(e *apidb.Entity, d int) error {
	r.line(d, "pub struct %s {", e.Local())
	r.line(d+1, "pub(crate) ptr: *mut core::ffi::c_void,")
	r.line(d+1, "owned: bool,")
	r.line(d, "}")
	r.blank()
	return r.emitImplBlock(e, d)
}

// emitImplBlock renders the impl with constructors, methods, and (for
// handles) from_raw plus the Drop impl.
func (r *rustEmitter) emitImplBlock(e *apidb.Entity, d int) error {
	handle := r.p.classKindOf(e.Name) == classHandle

	var recs []naming.Record
	recs = append(recs, r.p.Symbols.ForEntity(e.Name)...) // synthesized specials
	seen := map[string]bool{e.Name: true}
	for _, m := range e.Class.Methods {
		entity := apidb.MethodEntityName(e.Name, m)
		if seen[entity] {
			continue
		}
		seen[entity] = true
		recs = append(recs, r.p.Symbols.ForEntity(entity)...)
	}

	var destroy *naming.Record
	var body []naming.Record
	for i := range recs {
		if recs[i].Kind == naming.RecordDestroy {
			destroy = &recs[i]
		} else {
			body = append(body, recs[i])
		}
	}
	if len(body) > 0 || handle {
		r.line(d, "impl %s {", e.Local())
		if handle {
			r.line(d+1, "pub(crate) fn from_raw(ptr: *mut core::ffi::c_void, owned: bool) -> %s {", e.Local())
			r.line(d+2, "%s { ptr, owned }", e.Local())
			r.line(d+1, "}")
			r.blank()
		}
		for _, rec := range body {
			if err := r.emitFn(rec, d+1, d); err != nil {
				return err
			}
		}
		r.line(d, "}")
		r.blank()
	}

	if destroy != nil {
		r.line(d, "impl Drop for %s {", e.Local())
		r.line(d+1, "fn drop(&mut self) {")
		r.line(d+2, "if self.owned {")
		r.line(d+3, "unsafe { %s::%s(self.ptr) }", r.ffiPath(d), destroy.Shim)
		r.line(d+2, "}")
		r.line(d+1, "}")
		r.line(d, "}")
		r.blank()
	}
	return nil
}

// emitFn renders one wrapper function or method from its symbol record.
// indent is the textual indent; sup is the module nesting depth, which
// drives the super:: prefix on crate-root paths.
func (r *rustEmitter) emitFn(rec naming.Record, indent, sup int) error {
	sig, err := r.p.Signature(rec)
	if err != nil {
		return fmt.Errorf("rust emitter: %w", err)
	}

	var params []string
	if sig.Receiver != nil {
		if sig.Receiver.Const {
			params = append(params, "&self")
		} else {
			params = append(params, "&mut self")
		}
	}
	for _, pp := range sig.Params {
		ty, err := r.hostParamType(pp, sup)
		if err != nil {
			return fmt.Errorf("rust emitter: %s param %s: %w", rec.Shim, pp.Name, err)
		}
		params = append(params, fmt.Sprintf("%s: %s", pp.Name, ty))
	}

	ret := ""
	if sig.Ret != nil {
		ty, err := r.hostRetType(*sig.Ret, sig, sup)
		if err != nil {
			return fmt.Errorf("rust emitter: %s return: %w", rec.Shim, err)
		}
		ret = " -> " + ty
	}

	r.line(indent, "pub fn %s(%s)%s {", rec.Host, strings.Join(params, ", "), ret)

	// Prologue: owned string conversions.
	for _, pp := range sig.Params {
		if pp.Shape == apidb.ShapePointer && isString(pp.Ref) {
			r.line(indent+1, "let %s_cpp = %s::CppString::new(%s).into_raw();", pp.Name, r.rtPath(sup), pp.Name)
		}
	}

	var args []string
	if sig.Receiver != nil {
		if r.p.classKindOf(sig.Receiver.Class) == classPOD {
			args = append(args, "self as *const Self as *mut core::ffi::c_void")
		} else {
			args = append(args, "self.ptr")
		}
	}
	for _, pp := range sig.Params {
		args = append(args, r.argExpr(pp))
	}

	call := fmt.Sprintf("%s::%s(%s)", r.ffiPath(sup), rec.Shim, strings.Join(args, ", "))
	r.line(indent+1, "unsafe { %s }", r.retExpr(call, sig, sup))
	r.line(indent, "}")
	r.blank()
	return nil
}

// --- path and type rendering --------------------------------------------

// path renders a crate-root-relative path to a qualified entity name from
// a context sup modules deep.
func (r *rustEmitter) path(sup int, qualified string) string {
	return strings.Repeat("super::", sup) + qualified
}

func (r *rustEmitter) ffiPath(sup int) string { return strings.Repeat("super::", sup) + "ffi" }
func (r *rustEmitter) rtPath(sup int) string  { return strings.Repeat("super::", sup) + "rt" }

// fieldType renders a POD field's inline type.
func (r *rustEmitter) fieldType(ref apidb.TypeRef, sup int) (string, error) {
	if ref.Indirect() {
		if ref.Const {
			return "*const core::ffi::c_void", nil
		}
		return "*mut core::ffi::c_void", nil
	}
	if ref.IsBuiltin() && !isString(ref) {
		return ref.Builtin, nil
	}
	if e := r.p.resolveClass(ref); e != nil {
		return r.path(sup, e.Name), nil
	}
	if e := r.p.resolveEnum(ref); e != nil {
		return r.path(sup, e.Name), nil
	}
	return "", fmt.Errorf("no host representation for %q", ref.String())
}

// externParams renders the extern-block parameter list for a signature.
func (r *rustEmitter) externParams(sig SigPlan, sup int) string {
	var parts []string
	if sig.Receiver != nil {
		parts = append(parts, "self_: *mut core::ffi::c_void")
	}
	for _, pp := range sig.Params {
		parts = append(parts, fmt.Sprintf("%s: %s", pp.Name, r.externType(pp, sup)))
	}
	return strings.Join(parts, ", ")
}

func (r *rustEmitter) externRet(sig SigPlan, sup int) string {
	if sig.Ret == nil {
		return ""
	}
	pp := *sig.Ret
	if pp.Shape == apidb.ShapeValue {
		return " -> " + r.externValueType(pp, sup)
	}
	return " -> *mut core::ffi::c_void"
}

func (r *rustEmitter) externType(pp ParamPlan, sup int) string {
	switch pp.Shape {
	case apidb.ShapeValue:
		return r.externValueType(pp, sup)
	case apidb.ShapePointer:
		if isString(pp.Ref) {
			return "*mut core::ffi::c_void" // ownership transfers inward
		}
		return "*const core::ffi::c_void" // shim copy-constructs from this
	default: // ShapeReference
		if pp.Ref.Const {
			return "*const core::ffi::c_void"
		}
		return "*mut core::ffi::c_void"
	}
}

// externValueType is the raw crossing type of a by-value position:
// primitives as themselves, enums as i32, POD structs by layout.
func (r *rustEmitter) externValueType(pp ParamPlan, sup int) string {
	switch {
	case pp.Ref.IsBuiltin() && !isString(pp.Ref):
		return pp.Ref.Builtin
	case r.p.resolveEnum(pp.Ref) != nil:
		return "i32"
	default:
		return r.path(sup, mustClass(r.p, pp.Ref))
	}
}

func mustClass(p *Plan, ref apidb.TypeRef) string {
	if e := p.resolveClass(ref); e != nil {
		return e.Name
	}
	return ref.Name
}

// hostParamType renders the safe wrapper's parameter type.
func (r *rustEmitter) hostParamType(pp ParamPlan, sup int) (string, error) {
	switch pp.Shape {
	case apidb.ShapeValue:
		switch {
		case pp.Ref.IsBuiltin() && !isString(pp.Ref):
			return pp.Ref.Builtin, nil
		case r.p.resolveEnum(pp.Ref) != nil:
			return r.path(sup, r.p.resolveEnum(pp.Ref).Name), nil
		case r.p.resolveClass(pp.Ref) != nil:
			return r.path(sup, r.p.resolveClass(pp.Ref).Name), nil
		}
		return "", fmt.Errorf("no host type for by-value %q", pp.Ref.String())

	case apidb.ShapePointer:
		if isString(pp.Ref) {
			return "&str", nil
		}
		if e := r.p.resolveClass(pp.Ref); e != nil {
			return "&" + r.path(sup, e.Name), nil
		}
		return "", fmt.Errorf("no host type for opaque %q", pp.Ref.String())

	default: // ShapeReference
		mut := "&mut "
		if pp.Ref.Const {
			mut = "&"
		}
		switch {
		case isString(pp.Ref):
			return mut + r.rtPath(sup) + "::CppString", nil
		case pp.Ref.IsBuiltin():
			return mut + pp.Ref.Builtin, nil
		case r.p.resolveClass(pp.Ref) != nil:
			return mut + r.path(sup, r.p.resolveClass(pp.Ref).Name), nil
		case r.p.resolveEnum(pp.Ref) != nil:
			return mut + r.path(sup, r.p.resolveEnum(pp.Ref).Name), nil
		}
		return "", fmt.Errorf("no host type for reference %q", pp.Ref.String())
	}
}

// hostRetType renders the safe wrapper's return type. Owned returns become
// owning wrappers; reference returns become borrowed views for wrapped
// types and raw pointers for builtins and POD, where a view type would
// have nothing to hang the lifetime on.
func (r *rustEmitter) hostRetType(pp ParamPlan, sig SigPlan, sup int) (string, error) {
	switch pp.Shape {
	case apidb.ShapeValue:
		return r.hostParamType(pp, sup)
	case apidb.ShapePointer:
		if isString(pp.Ref) {
			return r.rtPath(sup) + "::CppString", nil
		}
		if sig.Rec.Kind == naming.RecordCtor || sig.Rec.Kind == naming.RecordDefaultCtor {
			return r.path(sup, sig.Owner), nil
		}
		if e := r.p.resolveClass(pp.Ref); e != nil {
			return r.path(sup, e.Name), nil
		}
		return "", fmt.Errorf("no host type for owned %q", pp.Ref.String())
	default: // ShapeReference
		if isString(pp.Ref) {
			return r.rtPath(sup) + "::CppString", nil
		}
		if pp.Ref.IsBuiltin() {
			if pp.Ref.Const {
				return "*const " + pp.Ref.Builtin, nil
			}
			return "*mut " + pp.Ref.Builtin, nil
		}
		if e := r.p.resolveClass(pp.Ref); e != nil {
			if r.p.classKindOf(e.Name) == classPOD {
				if pp.Ref.Const {
					return "*const " + r.path(sup, e.Name), nil
				}
				return "*mut " + r.path(sup, e.Name), nil
			}
			return r.path(sup, e.Name), nil
		}
		return "", fmt.Errorf("no host type for reference return %q", pp.Ref.String())
	}
}

// argExpr renders the expression passed to the shim for one parameter.
func (r *rustEmitter) argExpr(pp ParamPlan) string {
	switch pp.Shape {
	case apidb.ShapeValue:
		if r.p.resolveEnum(pp.Ref) != nil {
			return pp.Name + " as i32"
		}
		return pp.Name

	case apidb.ShapePointer:
		if isString(pp.Ref) {
			return pp.Name + "_cpp"
		}
		return pp.Name + ".ptr as *const core::ffi::c_void"

	default: // ShapeReference
		wrapped := isString(pp.Ref)
		if e := r.p.resolveClass(pp.Ref); e != nil && r.p.classKindOf(e.Name) == classHandle {
			wrapped = true
		}
		if wrapped {
			if pp.Ref.Const {
				return pp.Name + ".ptr as *const core::ffi::c_void"
			}
			return pp.Name + ".ptr"
		}
		if pp.Ref.Const {
			return pp.Name + " as *const _ as *const core::ffi::c_void"
		}
		return pp.Name + " as *mut _ as *mut core::ffi::c_void"
	}
}

// retExpr wraps the raw shim call into the host return value.
func (r *rustEmitter) retExpr(call string, sig SigPlan, sup int) string {
	if sig.Ret == nil {
		return call
	}
	pp := *sig.Ret
	switch pp.Shape {
	case apidb.ShapeValue:
		if r.p.resolveEnum(pp.Ref) != nil {
			return fmt.Sprintf("core::mem::transmute(%s)", call)
		}
		return call
	case apidb.ShapePointer:
		if isString(pp.Ref) {
			return fmt.Sprintf("%s::CppString::from_raw(%s, true)", r.rtPath(sup), call)
		}
		owner := mustClass(r.p, pp.Ref)
		if sig.Rec.Kind == naming.RecordCtor || sig.Rec.Kind == naming.RecordDefaultCtor {
			owner = sig.Owner
		}
		return fmt.Sprintf("%s::from_raw(%s, true)", r.path(sup, owner), call)
	default: // ShapeReference
		if isString(pp.Ref) {
			return fmt.Sprintf("%s::CppString::from_raw(%s, false)", r.rtPath(sup), call)
		}
		if pp.Ref.IsBuiltin() {
			if pp.Ref.Const {
				return fmt.Sprintf("%s as *const %s", call, pp.Ref.Builtin)
			}
			return fmt.Sprintf("%s as *mut %s", call, pp.Ref.Builtin)
		}
		if e := r.p.resolveClass(pp.Ref); e != nil && r.p.classKindOf(e.Name) == classPOD {
			if pp.Ref.Const {
				return fmt.Sprintf("%s as *const %s", call, r.path(sup, e.Name))
			}
			return fmt.Sprintf("%s as *mut %s", call, r.path(sup, e.Name))
		}
		return fmt.Sprintf("%s::from_raw(%s, false)", r.path(sup, mustClass(r.p, pp.Ref)), call)
	}
}

// --- subclass support ---------------------------------------------------

// emitSubclass renders the host half of cross-boundary subclassing: an
// overrides trait, a peer handle owning the native subclass instance, and
// a registration function that hands the trampoline thunks to the shim's
// callback table. Trait methods use shim-level types; the peer's context
// pointer carries the boxed implementation.
func (r *rustEmitter) emitSubclass(c subclass.Class, d int) error {
	local := c.Entity.Local()
	trait := local + "Overrides"
	peer := local + "Peer"

	r.line(d, "/// Override points for host-side subclasses of %s.", c.Entity.Name)
	r.line(d, "pub trait %s {", trait)
	for _, m := range c.Methods {
		sig := r.p.TrampolineSignature(m)
		r.line(d+1, "fn %s(&mut self%s)%s;", m.Fn.Name, prefixComma(r.externParams(sig, d)), r.externRet(sig, d))
	}
	r.line(d, "}")
	r.blank()

	r.line(d, "pub struct %s {", peer)
	r.line(d+1, "pub(crate) ptr: *mut core::ffi::c_void,")
	r.line(d+1, "ctx: *mut core::ffi::c_void,")
	r.line(d, "}")
	r.blank()

	r.line(d, "impl %s {", peer)
	r.line(d+1, "pub fn new<T: %s + 'static>(imp: T) -> %s {", trait, peer)
	r.line(d+2, "let boxed: Box<Box<dyn %s>> = Box::new(Box::new(imp));", trait)
	r.line(d+2, "let ctx = Box::into_raw(boxed) as *mut core::ffi::c_void;")
	r.line(d+2, "let ptr = unsafe { %s::%s(ctx) };", r.ffiPath(d), c.PeerNew)
	r.line(d+2, "%s { ptr, ctx }", peer)
	r.line(d+1, "}")
	r.blank()
	r.line(d+1, "/// Pointer to the native base-class subobject, for APIs taking the base.")
	r.line(d+1, "pub fn as_base_ptr(&self) -> *mut core::ffi::c_void {")
	r.line(d+2, "unsafe { %s::%s(self.ptr) }", r.ffiPath(d), c.Upcast)
	r.line(d+1, "}")
	for _, m := range c.Methods {
		if m.SuperSymbol == "" {
			continue
		}
		sig := r.p.TrampolineSignature(m)
		var names []string
		for _, pp := range sig.Params {
			names = append(names, pp.Name)
		}
		r.blank()
		r.line(d+1, "/// Delegates to the base implementation of %s.", m.Fn.Name)
		r.line(d+1, "pub fn %s_super(&mut self%s)%s {", m.Fn.Name, prefixComma(r.externParams(sig, d)), r.externRet(sig, d))
		args := append([]string{"self.ptr"}, names...)
		r.line(d+2, "unsafe { %s::%s(%s) }", r.ffiPath(d), m.SuperSymbol, strings.Join(args, ", "))
		r.line(d+1, "}")
	}
	r.line(d, "}")
	r.blank()

	r.line(d, "impl Drop for %s {", peer)
	r.line(d+1, "fn drop(&mut self) {")
	r.line(d+2, "unsafe {")
	r.line(d+3, "%s::%s(self.ptr);", r.ffiPath(d), c.PeerDestroy)
	r.line(d+3, "drop(Box::from_raw(self.ctx as *mut Box<dyn %s>));", trait)
	r.line(d+2, "}")
	r.line(d+1, "}")
	r.line(d, "}")
	r.blank()

	// Thunks: extern "C" functions the shim's callback table will invoke.
	for _, m := range c.Methods {
		sig := r.p.TrampolineSignature(m)
		var names []string
		for _, pp := range sig.Params {
			names = append(names, pp.Name)
		}
		r.line(d, `extern "C" fn %s(ctx: *mut core::ffi::c_void%s)%s {`,
			m.Symbol, prefixComma(r.externParams(sig, d)), r.externRet(sig, d))
		r.line(d+1, "let imp = unsafe { &mut *(ctx as *mut Box<dyn %s>) };", trait)
		r.line(d+1, "imp.%s(%s)", m.Fn.Name, strings.Join(names, ", "))
		r.line(d, "}")
		r.blank()
	}

	r.line(d, "/// Installs the %s trampolines. Call once before constructing peers.", local)
	r.line(d, "pub fn register_%s_overrides() {", strings.ToLower(local))
	r.line(d+1, "unsafe {")
	for _, m := range c.Methods {
		r.line(d+2, "%s::%s(%s as *const core::ffi::c_void);", r.ffiPath(d), m.Binding, m.Symbol)
	}
	r.line(d+1, "}")
	r.line(d, "}")
	r.blank()
	return nil
}

func prefixComma(s string) string {
	if s == "" {
		return ""
	}
	return ", " + s
}
