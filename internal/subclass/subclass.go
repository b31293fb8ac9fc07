// Package subclass synthesizes what it takes to extend a native class from
// the host side: one trampoline per overridable virtual method, so a
// virtual call originating in native code lands in host logic. The runtime
// model is a callback table indexed by trampoline symbol — the host
// registers function pointers at init, and the generated native subclass's
// vtable overrides call through them. Native code never learns anything
// about host dispatch.
package subclass

import (
	"github.com/jward/girder/decl"
	"github.com/jward/girder/internal/apidb"
	"github.com/jward/girder/internal/diag"
	"github.com/jward/girder/internal/naming"
)

// Method is one trampoline descriptor: a vtable slot the generated
// subclass overrides, plus the three symbols that wire it up.
type Method struct {
	Slot   int            // vtable slot: inherited slots keep the base index, new ones append
	Fn     *decl.Function // the virtual method being overridden
	Owner  string         // qualified name of the class that declared the slot
	Shapes apidb.FnShape

	Symbol      string // called by the native override to reach host logic
	SuperSymbol string // calls Base::method, for overrides that delegate up
	Binding     string // registration entry point the host fills at init
}

// Class is the full subclass plan for one requested class.
type Class struct {
	Entity  *apidb.Entity
	Methods []Method

	PeerNew     string // constructs the native peer subclass with a host context pointer
	PeerDestroy string
	Upcast      string // converts a peer pointer to a base-class pointer
}

// Plan builds trampoline descriptors for every subclass-requested class.
// A method whose signature cannot cross the boundary is skipped with a
// diagnostic — subclassing stays available for the rest of the class.
// All minted symbols are registered on the naming set so a collision
// anywhere in the run surfaces as one fatal error.
func Plan(db *apidb.DB, t *apidb.Table, requests []string, set *naming.Set, diags *diag.List) ([]Class, error) {
	var out []Class
	for _, name := range requests {
		e := db.Lookup(name)
		if e == nil || e.Kind != apidb.KindClass {
			diags.Warnf(diag.CodeEntityDropped, name, "subclass request names no known class")
			continue
		}
		if len(e.Class.Bases) > 1 {
			diags.Warnf(diag.CodeTrampolineSkip, name, "multiple inheritance is not supported; subclassing disabled")
			continue
		}

		c := Class{
			Entity:      e,
			PeerNew:     naming.Symbol(e.Name, "peer_new", ""),
			PeerDestroy: naming.Symbol(e.Name, "peer_destroy", ""),
			Upcast:      naming.Symbol(e.Name, "upcast", ""),
		}
		for _, sym := range []string{c.PeerNew, c.PeerDestroy, c.Upcast} {
			if err := set.Register(sym, "subclass "+e.Name); err != nil {
				return nil, err
			}
		}

		slots := virtualSlots(e.Class, db, make(map[string]bool))
		for _, slot := range slots {
			shapes, ok := methodShapes(db, t, slot)
			if !ok || !shapes.OK {
				reason := shapes.Reason
				if reason == "" {
					reason = "signature not classified"
				}
				diags.Warnf(diag.CodeTrampolineSkip, e.Name,
					"virtual method %q not overridable: %s", slot.fn.Name, reason)
				continue
			}
			m := Method{
				Slot:    slot.index,
				Fn:      slot.fn,
				Owner:   slot.owner,
				Shapes:  shapes,
				Symbol:  naming.Symbol(e.Name, slot.fn.Name+"_tramp", ""),
				Binding: naming.Symbol(e.Name, slot.fn.Name+"_bind", ""),
			}
			if !slot.fn.IsPureVirtual {
				// Pure slots have no base implementation to delegate to.
				m.SuperSymbol = naming.Symbol(e.Name, slot.fn.Name+"_super", "")
			}
			syms := []string{m.Symbol, m.Binding}
			if m.SuperSymbol != "" {
				syms = append(syms, m.SuperSymbol)
			}
			for _, sym := range syms {
				if err := set.Register(sym, "trampoline "+e.Name+"::"+slot.fn.Name); err != nil {
					return nil, err
				}
			}
			c.Methods = append(c.Methods, m)
		}
		out = append(out, c)
	}
	return out, nil
}

// slotEntry pairs a vtable index with the declaration occupying it.
type slotEntry struct {
	index int
	fn    *decl.Function
	owner string
}

// virtualSlots enumerates the class's vtable in native layout order:
// inherited slots first (base order preserved), then newly declared
// virtual methods appended. An override replaces the declaration in its
// inherited slot without moving it.
func virtualSlots(c *decl.Class, db *apidb.DB, visited map[string]bool) []slotEntry {
	var slots []slotEntry
	if len(c.Bases) == 1 && !visited[c.Bases[0]] {
		visited[c.Bases[0]] = true
		if base := db.Lookup(c.Bases[0]); base != nil && base.Kind == apidb.KindClass {
			slots = virtualSlots(base.Class, db, visited)
		}
	}
	owner := decl.Qualified(c.Scope, c.Name)
	for _, m := range c.Methods {
		if !m.IsVirtual && !m.IsPureVirtual {
			continue
		}
		// A virtual destructor is not an override point: peers always
		// destroy through the peer_destroy shim.
		if m.IsDtor {
			continue
		}
		replaced := false
		for i := range slots {
			if slots[i].fn.Name == m.Name {
				slots[i].fn = m
				slots[i].owner = owner
				replaced = true
				break
			}
		}
		if !replaced {
			slots = append(slots, slotEntry{index: len(slots), fn: m, owner: owner})
		}
	}
	return slots
}

// methodShapes finds the classified calling shape for a slot's current
// declaration, looking it up under the class that declared it.
func methodShapes(db *apidb.DB, t *apidb.Table, slot slotEntry) (apidb.FnShape, bool) {
	entityName := apidb.MethodEntityName(slot.owner, slot.fn)
	e := db.Lookup(entityName)
	if e == nil {
		return apidb.FnShape{}, false
	}
	shapes, ok := t.Shapes(e.Name)
	if !ok {
		return apidb.FnShape{}, false
	}
	for i, fn := range e.Funcs {
		if fn == slot.fn && i < len(shapes) {
			return shapes[i], true
		}
	}
	// Overload set changed shape between ingestion and planning would be a
	// bug; fall back to the first overload's shape.
	if len(shapes) > 0 {
		return shapes[0], true
	}
	return apidb.FnShape{}, false
}
