// Package emit renders the two coordinated artifacts: the Rust wrapper
// module and the C++ shim translation unit. Both emitters are driven from
// the same frozen Plan and the same per-record signature model, so they
// cannot disagree on a symbol name, a parameter count, or a parameter
// representation. Neither emitter may introduce an entity or a name — the
// Plan is complete before the first byte is written.
package emit

import (
	"fmt"

	"github.com/jward/girder/internal/apidb"
	"github.com/jward/girder/internal/diag"
	"github.com/jward/girder/internal/naming"
	"github.com/jward/girder/internal/reach"
	"github.com/jward/girder/internal/subclass"
)

// Plan is everything emission needs, frozen.
type Plan struct {
	DB         *apidb.DB
	Facts      *apidb.Table
	Reach      *reach.Result
	Symbols    *naming.Set
	Subclasses []subclass.Class
	Includes   []string // extra includes for the shim, in request order
	Diags      *diag.List
}

// ParamPlan is one parameter position in a signature, classified.
type ParamPlan struct {
	Name  string
	Ref   apidb.TypeRef
	Shape apidb.Shape
}

// SigPlan is the full calling plan for one symbol record: the single
// source of truth both emitters render from.
type SigPlan struct {
	Rec      naming.Record
	Receiver *Receiver // nil for free functions, statics, and synthesized records
	Params   []ParamPlan
	Ret      *ParamPlan // nil when nothing is returned
	Owner    string     // owning class FQN for methods and synthesized records
}

// Receiver describes the implicit object parameter of a method.
type Receiver struct {
	Class string // qualified class name
	Const bool
}

// Signature expands a record into its calling plan. The shapes come from
// the classification table; by the time emission runs every live record
// has them.
func (p *Plan) Signature(rec naming.Record) (SigPlan, error) {
	sig := SigPlan{Rec: rec, Owner: rec.Entity}

	// Synthesized lifetime records have no declaration to expand, but both
	// emitters still render from this plan: the construct shim returns the
	// new object's opaque storage, the destroy shim takes it back.
	switch rec.Kind {
	case naming.RecordDefaultCtor:
		sig.Ret = &ParamPlan{Ref: apidb.TypeRef{Name: rec.Entity}, Shape: apidb.ShapePointer}
		return sig, nil
	case naming.RecordDestroy:
		sig.Receiver = &Receiver{Class: rec.Entity}
		return sig, nil
	}

	fn := rec.Fn
	e := p.DB.Lookup(rec.Entity)
	if e == nil {
		return sig, fmt.Errorf("signature: entity %q not in database", rec.Entity)
	}
	sig.Owner = e.Scope
	shapes, ok := p.Facts.Shapes(rec.Entity)
	if !ok || rec.Overload >= len(shapes) {
		return sig, fmt.Errorf("signature: no shapes for %q overload %d", rec.Entity, rec.Overload)
	}
	fs := shapes[rec.Overload]
	if !fs.OK {
		return sig, fmt.Errorf("signature: record for dropped overload %q/%d", rec.Entity, rec.Overload)
	}

	if fn.IsMethod && !fn.IsStatic && !fn.IsCtor {
		sig.Receiver = &Receiver{Class: e.Scope, Const: fn.IsConst}
	}
	for i, par := range fn.Params {
		name := par.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		sig.Params = append(sig.Params, ParamPlan{
			Name:  name,
			Ref:   apidb.ParseTypeRef(par.TypeExpr),
			Shape: fs.Params[i],
		})
	}
	switch {
	case fn.IsCtor:
		// Constructors return the new object's opaque storage.
		sig.Ret = &ParamPlan{Ref: apidb.TypeRef{Name: e.Scope}, Shape: apidb.ShapePointer}
		sig.Owner = e.Scope
	case fn.ReturnType != "":
		ref := apidb.ParseTypeRef(fn.ReturnType)
		if !ref.IsVoid() {
			sig.Ret = &ParamPlan{Ref: ref, Shape: fs.Return}
		}
	}
	return sig, nil
}

// TrampolineSignature builds the calling plan for one subclass trampoline
// slot. There is no receiver: the context pointer takes its place at the
// shim level.
func (p *Plan) TrampolineSignature(m subclass.Method) SigPlan {
	sig := SigPlan{Owner: m.Owner}
	for i, par := range m.Fn.Params {
		name := par.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		sig.Params = append(sig.Params, ParamPlan{
			Name:  name,
			Ref:   apidb.ParseTypeRef(par.TypeExpr),
			Shape: m.Shapes.Params[i],
		})
	}
	if m.Fn.ReturnType != "" {
		ref := apidb.ParseTypeRef(m.Fn.ReturnType)
		if !ref.IsVoid() {
			sig.Ret = &ParamPlan{Ref: ref, Shape: m.Shapes.Return}
		}
	}
	return sig
}

// classKind classifies how a reachable class is represented on the host
// side.
type classKind int

const (
	classPOD    classKind = iota // inline #[repr(C)] value struct
	classHandle                  // opaque heap handle with explicit lifetime shims
)

func (p *Plan) classKindOf(name string) classKind {
	if pod, _ := p.Facts.POD(name); pod {
		return classPOD
	}
	return classHandle
}

// resolveClass maps a type reference to the reachable class entity it
// names, or nil.
func (p *Plan) resolveClass(ref apidb.TypeRef) *apidb.Entity {
	e, err := p.DB.Resolve(ref)
	if err != nil || e == nil || e.Kind != apidb.KindClass {
		return nil
	}
	return e
}

// resolveEnum is the enum counterpart of resolveClass.
func (p *Plan) resolveEnum(ref apidb.TypeRef) *apidb.Entity {
	e, err := p.DB.Resolve(ref)
	if err != nil || e == nil || e.Kind != apidb.KindEnum {
		return nil
	}
	return e
}

func isString(ref apidb.TypeRef) bool { return ref.Name == "std::string" }
