// Package reach computes the closure of entities that must be emitted:
// everything the caller requested plus everything those entities depend on
// (parameter, return, base, and field types). The closure is bulk-walked
// with BFS over an explicit visited set, and partial success is the
// default: an entity that cannot be emitted is dropped with a diagnostic
// while the rest of the closure proceeds.
package reach

import (
	"strings"

	"github.com/jward/girder/internal/apidb"
	"github.com/jward/girder/internal/diag"
)

// Result is the frozen reachable set. Order lists reachable entities in
// database insertion order, which is what makes emission deterministic.
type Result struct {
	Requested map[string]bool
	Reachable map[string]bool
	Order     []*apidb.Entity
}

// Excluded reports whether an entity is present in the database but not
// part of the frozen set.
func (r *Result) Excluded(name string) bool {
	return !r.Reachable[name]
}

// Resolve expands the allow-list, walks dependencies, and freezes the
// reachable set. Allow-list entries are exact fully-qualified names or
// trailing namespace wildcards ("audio::*"). A requested name that matches
// nothing records a warning; a matched entity that cannot be emitted is
// dropped with a warning. Neither aborts the run.
func Resolve(db *apidb.DB, t *apidb.Table, allow []string, diags *diag.List) *Result {
	res := &Result{
		Requested: make(map[string]bool),
		Reachable: make(map[string]bool),
	}

	var queue []*apidb.Entity
	enqueue := func(e *apidb.Entity) {
		if e == nil || res.Reachable[e.Name] {
			return
		}
		res.Reachable[e.Name] = true
		queue = append(queue, e)
	}
	// vet runs the admissibility check at most once per entity, so an
	// entity reached both by request and by ride-along is diagnosed once.
	checked := make(map[string]bool)
	vet := func(e *apidb.Entity) bool {
		if checked[e.Name] {
			return res.Reachable[e.Name]
		}
		checked[e.Name] = true
		return admissible(e, t, diags)
	}
	// enqueueType pulls in everything a type expression names: the spelled
	// entity (a typedef, say) and whatever it resolves to underneath.
	enqueueType := func(typeExpr string) {
		ref := apidb.ParseTypeRef(typeExpr)
		if ref.Name != "" && ref.Name != "std::string" {
			enqueue(db.Lookup(ref.Name))
		}
		if e, err := db.Resolve(ref); err == nil {
			enqueue(e)
		}
	}

	// Seed from the allow-list.
	for _, pattern := range allow {
		if ns, ok := strings.CutSuffix(pattern, "::*"); ok {
			matched := false
			for _, e := range db.Iterate(apidb.KindAny) {
				if e.Scope == ns || strings.HasPrefix(e.Scope, ns+"::") {
					if vet(e) {
						res.Requested[e.Name] = true
						enqueue(e)
					}
					matched = true
				}
			}
			if !matched {
				diags.Warnf(diag.CodeEntityDropped, pattern, "wildcard matched no entities")
			}
			continue
		}
		e := db.Lookup(pattern)
		if e == nil {
			diags.Warnf(diag.CodeEntityDropped, pattern, "requested name not found in declaration set")
			continue
		}
		if !vet(e) {
			continue
		}
		res.Requested[e.Name] = true
		enqueue(e)
	}

	// BFS over used-by edges.
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		switch e.Kind {
		case apidb.KindFunction:
			// A method needs its owning class emitted to have anywhere to
			// hang the wrapper.
			if e.Owner != "" {
				enqueue(db.Lookup(e.Owner))
			}
			for i, fn := range e.Funcs {
				shapes, ok := t.Shapes(e.Name)
				if ok && i < len(shapes) && !shapes[i].OK {
					continue // dropped overload pulls in nothing
				}
				for _, p := range fn.Params {
					enqueueType(p.TypeExpr)
				}
				if fn.ReturnType != "" {
					enqueueType(fn.ReturnType)
				}
			}

		case apidb.KindClass:
			for _, baseName := range e.Class.Bases {
				enqueue(db.Lookup(baseName))
			}
			// Methods ride along with their class, through the same
			// admissibility gate as requested functions so a dropped
			// method never vanishes without a diagnostic.
			for _, m := range e.Class.Methods {
				me := db.Lookup(apidb.MethodEntityName(e.Name, m))
				if me == nil || !vet(me) {
					continue
				}
				enqueue(me)
			}
			// POD classes are emitted field-for-field, so their field
			// types must come too. Handle types stay opaque.
			if pod, ok := t.POD(e.Name); ok && pod {
				for _, f := range e.Class.Fields {
					enqueueType(f.TypeExpr)
					enqueue(db.Lookup(e.Name + "::" + f.Name))
				}
			}

		case apidb.KindTypedef:
			enqueueType(e.Typedef.Target)
		}
	}

	for _, e := range db.Iterate(apidb.KindAny) {
		if res.Reachable[e.Name] {
			res.Order = append(res.Order, e)
		}
	}
	return res
}

// admissible reports whether a requested entity can be emitted at all
// under the current classification, recording a drop diagnostic when not.
// A function entity needs at least one representable overload; everything
// else is always admissible (handles exist even for abstract classes).
func admissible(e *apidb.Entity, t *apidb.Table, diags *diag.List) bool {
	if e.Kind != apidb.KindFunction {
		return true
	}
	shapes, ok := t.Shapes(e.Name)
	if !ok {
		return true
	}
	anyOK := false
	for i, fs := range shapes {
		if fs.OK {
			anyOK = true
		} else {
			diags.Warnf(diag.CodeUnrepresentable, e.Name, "overload %d dropped: %s", i, fs.Reason)
		}
	}
	if !anyOK {
		diags.Warnf(diag.CodeEntityDropped, e.Name, "no representable overloads")
	}
	return anyOK
}
