package emit

import (
	"fmt"
	"strings"

	"github.com/jward/girder/internal/apidb"
	"github.com/jward/girder/internal/naming"
	"github.com/jward/girder/internal/subclass"
)

// cppBuiltins maps the normalized builtin tokens back to fixed-width C++
// spellings. The shim compiles with <cstdint>, so width-exact names are
// always available and keep the crossing layout unambiguous.
var cppBuiltins = map[string]string{
	"()":    "void",
	"bool":  "bool",
	"i8":    "int8_t",
	"u8":    "uint8_t",
	"i16":   "int16_t",
	"u16":   "uint16_t",
	"i32":   "int32_t",
	"u32":   "uint32_t",
	"i64":   "int64_t",
	"u64":   "uint64_t",
	"f32":   "float",
	"f64":   "double",
	"usize": "size_t",
}

// Cxx renders the native shim translation unit: one extern "C" definition
// per symbol record, the string helper pair, and the subclass peers with
// their callback tables. Every definition counts on the Usage tracker.
func Cxx(p *Plan, u *Usage) ([]byte, error) {
	c := &cxxEmitter{p: p, u: u, w: &strings.Builder{}}
	if err := c.emit(); err != nil {
		return nil, err
	}
	return []byte(c.w.String()), nil
}

type cxxEmitter struct {
	p *Plan
	u *Usage
	w *strings.Builder
}

func (c *cxxEmitter) line(indent int, format string, args ...any) {
	c.w.WriteString(strings.Repeat("    ", indent))
	fmt.Fprintf(c.w, format, args...)
	c.w.WriteByte('\n')
}

func (c *cxxEmitter) blank() { c.w.WriteByte('\n') }

func (c *cxxEmitter) emit() error {
	c.line(0, "// Generated by girder. Do not edit.")
	c.line(0, "//")
	c.line(0, "// Native shim: extern \"C\" definitions for every symbol the host")
	c.line(0, "// wrapper declares. Compile this translation unit into the library")
	c.line(0, "// the host links against.")
	c.blank()
	for _, inc := range c.p.Includes {
		c.line(0, "#include %q", inc)
	}
	c.line(0, "#include <cstddef>")
	c.line(0, "#include <cstdint>")
	c.line(0, "#include <string>")
	c.line(0, "#include <utility>")
	c.blank()

	c.stringHelpers()

	for _, rec := range c.p.Symbols.Records {
		if err := c.emitRecord(rec); err != nil {
			return err
		}
	}

	for _, sc := range c.p.Subclasses {
		if err := c.emitSubclass(sc); err != nil {
			return err
		}
	}
	return nil
}

// stringHelpers defines the fixed std::string crossing pair.
func (c *cxxEmitter) stringHelpers() {
	c.line(0, "extern \"C\" void* %s(const uint8_t* data, size_t len) {", c.p.Symbols.MakeString)
	c.line(1, "return new std::string(reinterpret_cast<const char*>(data), len);")
	c.line(0, "}")
	c.u.Define(c.p.Symbols.MakeString)
	c.blank()
	c.line(0, "extern \"C\" void %s(void* s) {", c.p.Symbols.StringDestroy)
	c.line(1, "delete static_cast<std::string*>(s);")
	c.line(0, "}")
	c.u.Define(c.p.Symbols.StringDestroy)
	c.blank()
}

// emitRecord defines one shim function.
func (c *cxxEmitter) emitRecord(rec naming.Record) error {
	switch rec.Kind {
	case naming.RecordDefaultCtor:
		c.line(0, "extern \"C\" void* %s() {", rec.Shim)
		c.line(1, "return new %s();", rec.Entity)
		c.line(0, "}")
		c.u.Define(rec.Shim)
		c.blank()
		return nil
	case naming.RecordDestroy:
		c.line(0, "extern \"C\" void %s(void* self_) {", rec.Shim)
		c.line(1, "delete static_cast<%s*>(self_);", rec.Entity)
		c.line(0, "}")
		c.u.Define(rec.Shim)
		c.blank()
		return nil
	}

	sig, err := c.p.Signature(rec)
	if err != nil {
		return fmt.Errorf("cxx emitter: %w", err)
	}

	retType := "void"
	if sig.Ret != nil {
		retType = c.crossingRetType(*sig.Ret)
	}

	var params []string
	if sig.Receiver != nil {
		params = append(params, "void* self_")
	}
	for _, pp := range sig.Params {
		params = append(params, fmt.Sprintf("%s %s", c.crossingParamType(pp), pp.Name))
	}

	c.line(0, "extern \"C\" %s %s(%s) {", retType, rec.Shim, strings.Join(params, ", "))
	c.u.Define(rec.Shim)

	if sig.Receiver != nil {
		constQual := ""
		if sig.Receiver.Const {
			constQual = "const "
		}
		c.line(1, "auto* self = static_cast<%s%s*>(self_);", constQual, sig.Receiver.Class)
	}

	// Owned string parameters move off the heap handle before the call.
	for _, pp := range sig.Params {
		if pp.Shape == apidb.ShapePointer && isString(pp.Ref) {
			c.line(1, "auto* %s_p = static_cast<std::string*>(%s);", pp.Name, pp.Name)
			c.line(1, "std::string %s_v(std::move(*%s_p));", pp.Name, pp.Name)
			c.line(1, "delete %s_p;", pp.Name)
		}
	}

	var args []string
	for _, pp := range sig.Params {
		args = append(args, c.nativeArg(pp))
	}
	call := c.callExpr(rec, sig, args)

	switch {
	case sig.Ret == nil:
		c.line(1, "%s;", call)
	default:
		c.line(1, "return %s;", c.nativeToCrossing(call, *sig.Ret, rec, sig))
	}
	c.line(0, "}")
	c.blank()
	return nil
}

// callExpr builds the native call: virtual-capable member calls through
// self, qualified calls for statics and free functions, placement of new
// for constructors. Operators call through their operator spelling, which
// works uniformly for members.
func (c *cxxEmitter) callExpr(rec naming.Record, sig SigPlan, args []string) string {
	joined := strings.Join(args, ", ")
	switch {
	case rec.Fn != nil && rec.Fn.IsCtor:
		return fmt.Sprintf("new %s(%s)", sig.Owner, joined)
	case sig.Receiver != nil:
		return fmt.Sprintf("self->%s(%s)", rec.Fn.Name, joined)
	default:
		// Statics and free functions share the qualified form.
		return fmt.Sprintf("%s(%s)", rec.Entity, joined)
	}
}

// crossingParamType is the C ABI type of one parameter position.
func (c *cxxEmitter) crossingParamType(pp ParamPlan) string {
	switch pp.Shape {
	case apidb.ShapeValue:
		switch {
		case pp.Ref.IsBuiltin() && !isString(pp.Ref):
			return cppBuiltins[pp.Ref.Builtin]
		case c.p.resolveEnum(pp.Ref) != nil:
			return "int32_t"
		default:
			return mustClass(c.p, pp.Ref)
		}
	case apidb.ShapePointer:
		if isString(pp.Ref) {
			return "void*" // owned string, moved off the heap by the shim
		}
		return "const void*" // copy-construct source
	default: // ShapeReference
		if pp.Ref.Const {
			return "const void*"
		}
		return "void*"
	}
}

func (c *cxxEmitter) crossingRetType(pp ParamPlan) string {
	if pp.Shape == apidb.ShapeValue {
		return c.crossingParamType(pp)
	}
	return "void*"
}

// nativeArg converts one crossing parameter into the expression handed to
// the native callee.
func (c *cxxEmitter) nativeArg(pp ParamPlan) string {
	switch pp.Shape {
	case apidb.ShapeValue:
		if e := c.p.resolveEnum(pp.Ref); e != nil {
			return fmt.Sprintf("static_cast<%s>(%s)", e.Name, pp.Name)
		}
		return pp.Name

	case apidb.ShapePointer:
		if isString(pp.Ref) {
			return fmt.Sprintf("std::move(%s_v)", pp.Name)
		}
		return fmt.Sprintf("*static_cast<const %s*>(%s)", mustClass(c.p, pp.Ref), pp.Name)

	default: // ShapeReference
		base := c.nativeBaseType(pp.Ref)
		constQual := ""
		if pp.Ref.Const {
			constQual = "const "
		}
		if pp.Ref.Pointers > 0 {
			stars := strings.Repeat("*", pp.Ref.Pointers)
			return fmt.Sprintf("static_cast<%s%s%s>(%s)", constQual, base, stars, pp.Name)
		}
		return fmt.Sprintf("*static_cast<%s%s*>(%s)", constQual, base, pp.Name)
	}
}

// nativeBaseType is the native spelling of a type reference's base type.
func (c *cxxEmitter) nativeBaseType(ref apidb.TypeRef) string {
	if isString(ref) {
		return "std::string"
	}
	if ref.IsBuiltin() {
		return cppBuiltins[ref.Builtin]
	}
	if e, err := c.p.DB.Resolve(ref); err == nil && e != nil {
		return e.Name
	}
	return ref.Name
}

// nativeToCrossing converts the native call result into the crossing
// return expression.
func (c *cxxEmitter) nativeToCrossing(call string, pp ParamPlan, rec naming.Record, sig SigPlan) string {
	switch pp.Shape {
	case apidb.ShapeValue:
		if c.p.resolveEnum(pp.Ref) != nil {
			return fmt.Sprintf("static_cast<int32_t>(%s)", call)
		}
		return call

	case apidb.ShapePointer:
		if rec.Fn != nil && rec.Fn.IsCtor {
			return call // already new T(...)
		}
		if isString(pp.Ref) {
			return fmt.Sprintf("new std::string(%s)", call)
		}
		return fmt.Sprintf("new %s(%s)", c.nativeBaseType(pp.Ref), call)

	default: // ShapeReference: hand back the address, const stripped at the edge
		if pp.Ref.Pointers > 0 {
			return fmt.Sprintf("const_cast<void*>(static_cast<const void*>(%s))", call)
		}
		return fmt.Sprintf("const_cast<void*>(static_cast<const void*>(&(%s)))", call)
	}
}

// --- subclass peers -----------------------------------------------------

// emitSubclass defines the native peer class, its callback table, the
// bind/peer/upcast entry points, and the super-delegation shims. The peer
// derives from the requested class, stores the host context pointer, and
// overrides each planned virtual slot to call through the table.
func (c *cxxEmitter) emitSubclass(sc subclass.Class) error {
	peer := "GirderPeer_" + flatten(sc.Entity.Name)
	base := sc.Entity.Name

	// Callback table: one function pointer per trampoline slot, keyed by
	// the trampoline symbol name.
	c.line(0, "namespace girder_detail {")
	for _, m := range sc.Methods {
		sig := c.p.TrampolineSignature(m)
		c.line(0, "%s (*%s)(void*%s) = nullptr;",
			c.trampRetType(sig), m.Symbol, prefixComma(c.trampParamTypes(sig)))
	}
	c.blank()

	c.line(0, "class %s final : public %s {", peer, base)
	c.line(0, "public:")
	c.line(1, "explicit %s(void* ctx) : girder_ctx_(ctx) {}", peer)
	c.blank()
	for _, m := range sc.Methods {
		if err := c.emitOverride(sc, m); err != nil {
			return err
		}
	}
	c.line(0, "private:")
	c.line(1, "void* girder_ctx_;")
	c.line(0, "};")
	c.line(0, "} // namespace girder_detail")
	c.blank()

	for _, m := range sc.Methods {
		c.line(0, "extern \"C\" void %s(const void* f) {", m.Binding)
		sig := c.p.TrampolineSignature(m)
		c.line(1, "girder_detail::%s = reinterpret_cast<%s (*)(void*%s)>(f);",
			m.Symbol, c.trampRetType(sig), prefixComma(c.trampParamTypes(sig)))
		c.line(0, "}")
		c.u.Define(m.Binding)
		c.blank()
	}

	c.line(0, "extern \"C\" void* %s(void* ctx) {", sc.PeerNew)
	c.line(1, "return new girder_detail::%s(ctx);", peer)
	c.line(0, "}")
	c.u.Define(sc.PeerNew)
	c.blank()

	c.line(0, "extern \"C\" void %s(void* peer) {", sc.PeerDestroy)
	c.line(1, "delete static_cast<girder_detail::%s*>(peer);", peer)
	c.line(0, "}")
	c.u.Define(sc.PeerDestroy)
	c.blank()

	c.line(0, "extern \"C\" void* %s(void* peer) {", sc.Upcast)
	c.line(1, "return static_cast<%s*>(static_cast<girder_detail::%s*>(peer));", base, peer)
	c.line(0, "}")
	c.u.Define(sc.Upcast)
	c.blank()

	for _, m := range sc.Methods {
		if m.SuperSymbol == "" {
			continue
		}
		if err := c.emitSuper(sc, m, peer); err != nil {
			return err
		}
	}
	return nil
}

// emitOverride renders one virtual override calling through the callback
// table, converting native arguments to crossing form and the crossing
// result back.
func (c *cxxEmitter) emitOverride(sc subclass.Class, m subclass.Method) error {
	sig := c.p.TrampolineSignature(m)

	var params []string
	for _, pp := range sig.Params {
		params = append(params, fmt.Sprintf("%s %s", c.nativeParamType(pp), pp.Name))
	}
	retType := "void"
	if sig.Ret != nil {
		retType = c.nativeRetType(*sig.Ret)
	}
	constQual := ""
	if m.Fn.IsConst {
		constQual = " const"
	}
	c.line(1, "%s %s(%s)%s override {", retType, m.Fn.Name, strings.Join(params, ", "), constQual)

	args := []string{"girder_ctx_"}
	for _, pp := range sig.Params {
		args = append(args, c.nativeToCrossingArg(pp))
	}
	call := fmt.Sprintf("girder_detail::%s(%s)", m.Symbol, strings.Join(args, ", "))

	switch {
	case sig.Ret == nil:
		c.line(2, "%s;", call)
	default:
		c.emitCrossingReturn(call, *sig.Ret)
	}
	c.line(1, "}")
	c.blank()
	return nil
}

// emitSuper renders the base-implementation delegate for one slot: a flat
// function the host's peer wrapper calls to reach Base::method directly,
// bypassing the override.
func (c *cxxEmitter) emitSuper(sc subclass.Class, m subclass.Method, peer string) error {
	sig := c.p.TrampolineSignature(m)

	retType := "void"
	if sig.Ret != nil {
		retType = c.crossingRetType(*sig.Ret)
	}
	params := []string{"void* self_"}
	for _, pp := range sig.Params {
		params = append(params, fmt.Sprintf("%s %s", c.crossingParamType(pp), pp.Name))
	}
	c.line(0, "extern \"C\" %s %s(%s) {", retType, m.SuperSymbol, strings.Join(params, ", "))
	c.u.Define(m.SuperSymbol)

	c.line(1, "auto* self = static_cast<girder_detail::%s*>(self_);", peer)
	for _, pp := range sig.Params {
		if pp.Shape == apidb.ShapePointer && isString(pp.Ref) {
			c.line(1, "auto* %s_p = static_cast<std::string*>(%s);", pp.Name, pp.Name)
			c.line(1, "std::string %s_v(std::move(*%s_p));", pp.Name, pp.Name)
			c.line(1, "delete %s_p;", pp.Name)
		}
	}
	var args []string
	for _, pp := range sig.Params {
		args = append(args, c.nativeArg(pp))
	}
	call := fmt.Sprintf("self->%s::%s(%s)", m.Owner, m.Fn.Name, strings.Join(args, ", "))

	switch {
	case sig.Ret == nil:
		c.line(1, "%s;", call)
	default:
		c.line(1, "return %s;", c.nativeToCrossing(call, *sig.Ret, naming.Record{}, sig))
	}
	c.line(0, "}")
	c.blank()
	return nil
}

// nativeParamType renders the override's native parameter spelling,
// reconstructed from the type reference.
func (c *cxxEmitter) nativeParamType(pp ParamPlan) string {
	base := c.nativeBaseType(pp.Ref)
	var b strings.Builder
	if pp.Ref.Const {
		b.WriteString("const ")
	}
	b.WriteString(base)
	b.WriteString(strings.Repeat("*", pp.Ref.Pointers))
	if pp.Ref.Reference {
		b.WriteString("&")
	}
	if pp.Ref.RValueRef {
		b.WriteString("&&")
	}
	return b.String()
}

func (c *cxxEmitter) nativeRetType(pp ParamPlan) string {
	return c.nativeParamType(pp)
}

// trampParamTypes renders the callback table's parameter type list, after
// the leading context pointer.
func (c *cxxEmitter) trampParamTypes(sig SigPlan) string {
	var parts []string
	for _, pp := range sig.Params {
		parts = append(parts, c.crossingParamType(pp))
	}
	return strings.Join(parts, ", ")
}

func (c *cxxEmitter) trampRetType(sig SigPlan) string {
	if sig.Ret == nil {
		return "void"
	}
	return c.crossingRetType(*sig.Ret)
}

// nativeToCrossingArg converts one native override argument into crossing
// form for the callback table.
func (c *cxxEmitter) nativeToCrossingArg(pp ParamPlan) string {
	switch pp.Shape {
	case apidb.ShapeValue:
		if c.p.resolveEnum(pp.Ref) != nil {
			return fmt.Sprintf("static_cast<int32_t>(%s)", pp.Name)
		}
		return pp.Name
	case apidb.ShapePointer:
		if isString(pp.Ref) {
			return fmt.Sprintf("new std::string(std::move(%s))", pp.Name)
		}
		return fmt.Sprintf("static_cast<const void*>(&%s)", pp.Name)
	default: // ShapeReference
		if pp.Ref.Pointers > 0 {
			return fmt.Sprintf("const_cast<void*>(static_cast<const void*>(%s))", pp.Name)
		}
		return fmt.Sprintf("const_cast<void*>(static_cast<const void*>(&%s))", pp.Name)
	}
}

// emitCrossingReturn converts the callback's crossing result back into the
// override's native return value.
func (c *cxxEmitter) emitCrossingReturn(call string, pp ParamPlan) {
	switch pp.Shape {
	case apidb.ShapeValue:
		if e := c.p.resolveEnum(pp.Ref); e != nil {
			c.line(2, "return static_cast<%s>(%s);", e.Name, call)
			return
		}
		c.line(2, "return %s;", call)

	case apidb.ShapePointer:
		base := c.nativeBaseType(pp.Ref)
		c.line(2, "auto* r = static_cast<%s*>(%s);", base, call)
		c.line(2, "%s v(std::move(*r));", base)
		c.line(2, "delete r;")
		c.line(2, "return v;")

	default: // ShapeReference
		base := c.nativeBaseType(pp.Ref)
		constQual := ""
		if pp.Ref.Const {
			constQual = "const "
		}
		if pp.Ref.Pointers > 0 {
			c.line(2, "return static_cast<%s%s*>(%s);", constQual, base, call)
			return
		}
		c.line(2, "return *static_cast<%s%s*>(%s);", constQual, base, call)
	}
}

func flatten(qualified string) string {
	return strings.ReplaceAll(qualified, "::", "_")
}
