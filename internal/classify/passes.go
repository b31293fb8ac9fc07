package classify

import (
	"errors"
	"fmt"

	"github.com/jward/girder/decl"
	"github.com/jward/girder/internal/apidb"
)

// specialsPass reads constructibility straight off the declaration. It
// never defers and is the root every later pass builds on.
func specialsPass(e *apidb.Entity, _ *apidb.DB, t *apidb.Table, _ Config) ([]apidb.Delta, bool) {
	if e.Kind != apidb.KindClass {
		return nil, false
	}
	if _, ok := t.Specials(e.Name); ok {
		return nil, false
	}
	c := e.Class

	hasVirtual := false
	for _, m := range c.Methods {
		if m.IsVirtual || m.IsPureVirtual {
			hasVirtual = true
			break
		}
	}

	f := apidb.SpecialFacts{
		DefaultConstructible: c.HasDefaultCtor && !c.DeletedDefault,
		// An implicit copy constructor exists unless deleted or suppressed
		// by a user-declared move constructor.
		CopyConstructible: c.HasUserCopyCtor || (!c.DeletedCopyCtor && !c.HasUserMoveCtor),
		// Implicit move is suppressed by a user copy constructor or
		// destructor.
		MoveConstructible: c.HasUserMoveCtor || (!c.DeletedMoveCtor && !c.HasUserCopyCtor && !c.HasUserDtor),
		HasDestructor:     c.HasUserDtor,
		UserCopyOrMove:    c.HasUserCopyCtor || c.HasUserMoveCtor,
		HasVirtual:        hasVirtual,
	}
	return []apidb.Delta{apidb.SetSpecials{Entity: e.Name, Facts: f}}, false
}

// abstractPass marks classes with unimplemented pure virtual methods.
// Walks the base hierarchy directly (visited-set guarded), so it never
// defers; a base missing from the database contributes nothing and the
// reachability stage will report it.
func abstractPass(e *apidb.Entity, db *apidb.DB, t *apidb.Table, _ Config) ([]apidb.Delta, bool) {
	if e.Kind != apidb.KindClass {
		return nil, false
	}
	if _, ok := t.Abstract(e.Name); ok {
		return nil, false
	}
	pure := pendingPureMethods(e.Class, db, make(map[string]bool))
	return []apidb.Delta{apidb.SetAbstract{Entity: e.Name, Abstract: len(pure) > 0}}, false
}

// pendingPureMethods returns the names of pure virtual methods a class
// inherits or declares and does not override with an implementation.
func pendingPureMethods(c *decl.Class, db *apidb.DB, visited map[string]bool) map[string]bool {
	pure := make(map[string]bool)
	for _, baseName := range c.Bases {
		if visited[baseName] {
			continue
		}
		visited[baseName] = true
		base := db.Lookup(baseName)
		if base == nil || base.Kind != apidb.KindClass {
			continue
		}
		for name := range pendingPureMethods(base.Class, db, visited) {
			pure[name] = true
		}
	}
	for _, m := range c.Methods {
		if m.IsPureVirtual {
			pure[m.Name] = true
		} else {
			// Any non-pure declaration with the same name implements the
			// inherited slot.
			delete(pure, m.Name)
		}
	}
	return pure
}

// relocatablePass decides whether a type may be moved by raw byte copy: no
// user copy/move constructor or destructor, and every base and field
// relocatable in turn. Defers until the facts for field and base types are
// available, which is what drives the fixed-point loop.
func relocatablePass(e *apidb.Entity, db *apidb.DB, t *apidb.Table, _ Config) ([]apidb.Delta, bool) {
	switch e.Kind {
	case apidb.KindClass:
		if _, ok := t.Relocatable(e.Name); ok {
			return nil, false
		}
		f, ok := t.Specials(e.Name)
		if !ok {
			return nil, true
		}
		if f.UserCopyOrMove || f.HasDestructor {
			return []apidb.Delta{apidb.SetRelocatable{Entity: e.Name, Relocatable: false}}, false
		}

		reloc := true
		for _, baseName := range e.Class.Bases {
			v, known, deferred := typeRelocatable(apidb.TypeRef{Name: baseName}, db, t)
			if deferred {
				return nil, true
			}
			if !known || !v {
				reloc = false
				break
			}
		}
		if reloc {
			for _, field := range e.Class.Fields {
				ref := apidb.ParseTypeRef(field.TypeExpr)
				v, known, deferred := typeRelocatable(ref, db, t)
				if deferred {
					return nil, true
				}
				if !known || !v {
					reloc = false
					break
				}
			}
		}
		return []apidb.Delta{apidb.SetRelocatable{Entity: e.Name, Relocatable: reloc}}, false

	case apidb.KindTypedef:
		if _, ok := t.Relocatable(e.Name); ok {
			return nil, false
		}
		ref := apidb.ParseTypeRef(e.Typedef.Target)
		v, known, deferred := typeRelocatable(ref, db, t)
		if deferred {
			return nil, true
		}
		return []apidb.Delta{apidb.SetRelocatable{Entity: e.Name, Relocatable: known && v}}, false
	}
	return nil, false
}

// typeRelocatable reports whether a referenced type is relocatable.
// known=false means the reference does not resolve; deferred=true means the
// fact is not computed yet.
func typeRelocatable(ref apidb.TypeRef, db *apidb.DB, t *apidb.Table) (v, known bool, deferred bool) {
	if ref.Indirect() {
		return true, true, false // pointers and references are raw addresses
	}
	if ref.Name == "std::string" {
		return false, true, false // non-trivial destructor
	}
	if ref.IsBuiltin() {
		return true, true, false
	}
	target, err := db.Resolve(ref)
	if err != nil {
		return false, false, false
	}
	if target == nil {
		return true, true, false // alias of a fundamental type
	}
	switch target.Kind {
	case apidb.KindEnum:
		return true, true, false
	case apidb.KindClass:
		r, ok := t.Relocatable(target.Name)
		if !ok {
			return false, true, true
		}
		return r, true, false
	}
	return false, false, false
}

// podPass marks layout-transparent types: relocatable, default
// constructible, and virtual-free through the whole base chain. POD types
// cross the boundary as bit-identical value structs with no
// constructor/destructor shims at all. pod_overrides short-circuit the
// derivation — the caller asserts layout transparency.
func podPass(e *apidb.Entity, db *apidb.DB, t *apidb.Table, cfg Config) ([]apidb.Delta, bool) {
	if e.Kind != apidb.KindClass {
		return nil, false
	}
	if _, ok := t.POD(e.Name); ok {
		return nil, false
	}
	if cfg.PODOverrides[e.Name] {
		return []apidb.Delta{apidb.SetPOD{Entity: e.Name, POD: true}}, false
	}

	reloc, ok := t.Relocatable(e.Name)
	if !ok {
		return nil, true
	}
	f, ok := t.Specials(e.Name)
	if !ok {
		return nil, true
	}
	pod := reloc && f.DefaultConstructible && !f.HasVirtual
	if pod {
		v, deferred := hierarchyHasVirtual(e.Class, db, t, make(map[string]bool))
		if deferred {
			return nil, true
		}
		pod = !v
	}
	return []apidb.Delta{apidb.SetPOD{Entity: e.Name, POD: pod}}, false
}

func hierarchyHasVirtual(c *decl.Class, db *apidb.DB, t *apidb.Table, visited map[string]bool) (has, deferred bool) {
	for _, baseName := range c.Bases {
		if visited[baseName] {
			continue
		}
		visited[baseName] = true
		base := db.Lookup(baseName)
		if base == nil || base.Kind != apidb.KindClass {
			continue
		}
		f, ok := t.Specials(base.Name)
		if !ok {
			return false, true
		}
		if f.HasVirtual {
			return true, false
		}
		v, d := hierarchyHasVirtual(base.Class, db, t, visited)
		if d || v {
			return v, d
		}
	}
	return false, false
}

// shapesPass decides, per overload, how each parameter and the return value
// cross the boundary: by value (relocatable only), by pointer to opaque
// storage (non-relocatable), or by reference (aliasing). Signatures that
// cannot be represented are marked not-OK with a reason; the run drops just
// that overload.
func shapesPass(e *apidb.Entity, db *apidb.DB, t *apidb.Table, _ Config) ([]apidb.Delta, bool) {
	if e.Kind != apidb.KindFunction {
		return nil, false
	}
	if _, ok := t.Shapes(e.Name); ok {
		return nil, false
	}

	shapes := make([]apidb.FnShape, len(e.Funcs))
	for i, fn := range e.Funcs {
		var fs apidb.FnShape
		fs.OK = true

		for _, p := range fn.Params {
			ref := apidb.ParseTypeRef(p.TypeExpr)
			shape, ok, reason, deferred := valueShape(ref, false, db, t)
			if deferred {
				return nil, true
			}
			if !ok {
				fs = apidb.FnShape{OK: false, Reason: reason}
				break
			}
			fs.Params = append(fs.Params, shape)
		}
		if fs.OK && fn.ReturnType != "" {
			ref := apidb.ParseTypeRef(fn.ReturnType)
			shape, ok, reason, deferred := valueShape(ref, true, db, t)
			if deferred {
				return nil, true
			}
			if !ok {
				fs = apidb.FnShape{OK: false, Reason: reason}
			} else {
				fs.Return = shape
			}
		}
		shapes[i] = fs
	}
	return []apidb.Delta{apidb.SetShapes{Entity: e.Name, Shapes: shapes}}, false
}

// valueShape classifies one type position in a signature.
func valueShape(ref apidb.TypeRef, isReturn bool, db *apidb.DB, t *apidb.Table) (shape apidb.Shape, ok bool, reason string, deferred bool) {
	if ref.IsVoid() {
		return apidb.ShapeValue, true, "", false
	}
	if ref.Indirect() {
		return apidb.ShapeReference, true, "", false
	}
	if ref.Name == "std::string" {
		// Crosses as an owned heap string through the string shim.
		return apidb.ShapePointer, true, "", false
	}
	if ref.IsBuiltin() {
		return apidb.ShapeValue, true, "", false
	}

	target, err := db.Resolve(ref)
	if err != nil {
		var unknown *apidb.UnknownTypeError
		if errors.As(err, &unknown) {
			return 0, false, fmt.Sprintf("references unknown type %q", unknown.Name), false
		}
		return 0, false, err.Error(), false
	}
	if target == nil {
		return apidb.ShapeValue, true, "", false // alias of a fundamental type
	}

	switch target.Kind {
	case apidb.KindEnum:
		return apidb.ShapeValue, true, "", false
	case apidb.KindClass:
		abstract, haveAbstract := t.Abstract(target.Name)
		pod, havePOD := t.POD(target.Name)
		if !haveAbstract || !havePOD {
			return 0, false, "", true
		}
		if abstract {
			return 0, false, fmt.Sprintf("abstract type %q passed by value", target.Name), false
		}
		if pod {
			// Layout-transparent: crosses as raw bytes, host holds it inline.
			return apidb.ShapeValue, true, "", false
		}
		// Anything else crosses through opaque heap storage: the host never
		// sees the layout, so even relocatable types with a vtable or
		// private state go by pointer, with the shim copy-constructing.
		f, haveSpecials := t.Specials(target.Name)
		if !haveSpecials {
			return 0, false, "", true
		}
		if isReturn {
			if !f.CopyConstructible && !f.MoveConstructible {
				return 0, false, fmt.Sprintf("type %q returned by value is neither copy- nor move-constructible", target.Name), false
			}
		} else if !f.CopyConstructible {
			return 0, false, fmt.Sprintf("move-only type %q passed by value", target.Name), false
		}
		return apidb.ShapePointer, true, "", false
	}
	return 0, false, fmt.Sprintf("type %q (%s) cannot appear in a signature", target.Name, target.Kind), false
}
